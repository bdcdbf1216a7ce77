package catalogue

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/iqe/pkg/thing"
)

func TestGetIndexDefBoundedLookup(t *testing.T) {
	cat := New(
		IndexDef{Name: "by_n", Table: "t", Kind: KindIdx},
		IndexDef{Name: "by_text", Table: "t", Kind: KindSearch},
	)

	def, ok := cat.GetIndexDef(0)
	require.True(t, ok)
	assert.Equal(t, "by_n", def.Name)

	_, ok = cat.GetIndexDef(99)
	assert.False(t, ok)

	var nilCat *Catalogue
	_, ok = nilCat.GetIndexDef(0)
	assert.False(t, ok)
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalogue.yaml")
	content := `
indexes:
  - name: by_n
    table: t
    fields: [n]
    kind: idx
  - name: by_text
    table: t
    fields: [body]
    kind: search
    search:
      analyzer: default
      bm25_k1: 1.2
      bm25_b: 0.75
  - name: by_vec
    table: t
    fields: [vec]
    kind: hnsw
    hnsw:
      dimension: 2
      distance: cosine
      m: 16
      ef_construction: 200
      ef_search: 100
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cat, err := LoadYAML(path)
	require.NoError(t, err)
	require.Len(t, cat.Definitions, 3)

	assert.Equal(t, KindIdx, cat.Definitions[0].Kind)
	assert.Equal(t, KindSearch, cat.Definitions[1].Kind)
	require.NotNil(t, cat.Definitions[1].Search)
	assert.Equal(t, 1.2, cat.Definitions[1].Search.BM25K1)

	assert.Equal(t, KindHnsw, cat.Definitions[2].Kind)
	require.NotNil(t, cat.Definitions[2].Hnsw)
	assert.Equal(t, 2, cat.Definitions[2].Hnsw.Dimension)
}

func TestLoadYAMLUnknownKind(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indexes:\n  - name: x\n    kind: bogus\n"), 0o644))

	_, err := LoadYAML(path)
	assert.Error(t, err)
}

func TestIndexOptionExplain(t *testing.T) {
	defs := []IndexDef{{Name: "by_n", Table: "t", Kind: KindIdx}}

	eq := IndexOption{IxRef: 0, Op: Equality(5)}
	e := eq.Explain(defs)
	assert.Equal(t, "by_n", e["index"])
	assert.Equal(t, 5, e["equality"])

	rangeOpt := IndexOption{IxRef: 0, Op: Range(RangeValue{Value: 2, Inclusive: true}, RangeValue{Value: 5, Inclusive: false})}
	e = rangeOpt.Explain(defs)
	assert.Contains(t, e, "from")
	assert.Contains(t, e, "to")

	ref := thing.MatchRef(1)
	matches := IndexOption{IxRef: 0, Op: Matches("quick dog", &ref)}
	e = matches.Explain(defs)
	assert.Equal(t, "quick dog", e["matches"])

	join := IndexOption{IxRef: 0, Op: Join([]IndexOption{eq, rangeOpt})}
	e = join.Explain(defs)
	joins, ok := e["join"].([]map[string]any)
	require.True(t, ok)
	assert.Len(t, joins, 2)
}
