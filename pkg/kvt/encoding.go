package kvt

import (
	"bytes"
	"encoding/binary"

	"github.com/orneryd/iqe/pkg/thing"
)

// EncodeThing serialises a Thing for storage as an index entry's value:
// len-prefixed table followed by id, so it round-trips exactly regardless
// of characters either field contains.
func EncodeThing(t thing.Thing) []byte {
	var buf bytes.Buffer
	writeLenPrefixed(&buf, t.Table)
	writeLenPrefixed(&buf, t.ID)
	return buf.Bytes()
}

// DecodeThing is the inverse of EncodeThing.
func DecodeThing(b []byte) (thing.Thing, bool) {
	r := bytes.NewReader(b)
	table, ok := readLenPrefixed(r)
	if !ok {
		return thing.Thing{}, false
	}
	id, ok := readLenPrefixed(r)
	if !ok {
		return thing.Thing{}, false
	}
	return thing.New(table, id), true
}

func writeLenPrefixed(buf *bytes.Buffer, s string) {
	var lb [4]byte
	binary.BigEndian.PutUint32(lb[:], uint32(len(s)))
	buf.Write(lb[:])
	buf.WriteString(s)
}

func readLenPrefixed(r *bytes.Reader) (string, bool) {
	var lb [4]byte
	if _, err := r.Read(lb[:]); err != nil {
		return "", false
	}
	n := binary.BigEndian.Uint32(lb[:])
	out := make([]byte, n)
	if _, err := r.Read(out); err != nil && n > 0 {
		return "", false
	}
	return string(out), true
}
