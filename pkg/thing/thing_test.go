package thing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThingString(t *testing.T) {
	tt := New("person", "alice")
	assert.Equal(t, "person:alice", tt.String())
}

func TestThingLess(t *testing.T) {
	cases := []struct {
		name string
		a, b Thing
		want bool
	}{
		{"different table", New("a", "1"), New("b", "1"), true},
		{"same table, different id", New("t", "1"), New("t", "2"), true},
		{"equal", New("t", "1"), New("t", "1"), false},
		{"reverse table order", New("b", "1"), New("a", "1"), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, c.a.Less(c.b))
		})
	}
}

func TestThingAsMapKey(t *testing.T) {
	m := map[Thing]bool{New("t", "1"): true}
	assert.True(t, m[New("t", "1")])
	assert.False(t, m[New("t", "2")])
}
