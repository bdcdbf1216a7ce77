// Package catalogue holds the read-only table of index definitions the
// query executor resolves IndexRef handles against, plus the plan-level
// IndexOption/IndexOperator types that bind one predicate to one index.
//
// Definitions are addressed by dense integer handle (thing.IndexRef) and are
// immutable for the lifetime of a compiled plan, following spec.md §3.
//
// Grounded on pkg/index/index.go's HNSWConfig/BleveIndex shape for the
// per-kind parameter structs, and pkg/cypher/index_hints.go's
// ValidateIndexHints for the "no index found" failure mode.
package catalogue

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/orneryd/iqe/pkg/thing"
)

// IndexKind identifies which concrete index structure a definition backs.
type IndexKind int

const (
	// KindIdx is a plain (non-unique) ordered secondary index.
	KindIdx IndexKind = iota
	// KindUniq is a unique ordered secondary index.
	KindUniq
	// KindSearch is a full-text index.
	KindSearch
	// KindMTree is a metric-tree exact k-NN index.
	KindMTree
	// KindHnsw is an HNSW approximate k-NN index.
	KindHnsw
)

func (k IndexKind) String() string {
	switch k {
	case KindIdx:
		return "idx"
	case KindUniq:
		return "uniq"
	case KindSearch:
		return "search"
	case KindMTree:
		return "mtree"
	case KindHnsw:
		return "hnsw"
	default:
		return "unknown"
	}
}

// SearchParams configures a full-text index definition.
type SearchParams struct {
	Analyzer string `yaml:"analyzer"`
	BM25K1   float64 `yaml:"bm25_k1"`
	BM25B    float64 `yaml:"bm25_b"`
}

// MTreeParams configures a metric-tree index definition.
type MTreeParams struct {
	Dimension int    `yaml:"dimension"`
	Distance  string `yaml:"distance"`
}

// HnswParams configures an HNSW index definition.
type HnswParams struct {
	Dimension      int    `yaml:"dimension"`
	Distance       string `yaml:"distance"`
	M              int    `yaml:"m"`
	EfConstruction int    `yaml:"ef_construction"`
	EfSearch       int    `yaml:"ef_search"`
}

// IndexDef is one entry in the catalogue: a named index over a table's
// key fields, with kind-specific parameters.
type IndexDef struct {
	Name   string    `yaml:"name"`
	Table  string    `yaml:"table"`
	Fields []string  `yaml:"fields"`
	Kind   IndexKind `yaml:"-"`

	Search *SearchParams `yaml:"search,omitempty"`
	MTree  *MTreeParams  `yaml:"mtree,omitempty"`
	Hnsw   *HnswParams   `yaml:"hnsw,omitempty"`
}

// yamlIndexDef is the on-disk shape; Kind is a string there, resolved to
// IndexKind on load.
type yamlIndexDef struct {
	Name   string        `yaml:"name"`
	Table  string        `yaml:"table"`
	Fields []string      `yaml:"fields"`
	Kind   string        `yaml:"kind"`
	Search *SearchParams `yaml:"search,omitempty"`
	MTree  *MTreeParams  `yaml:"mtree,omitempty"`
	Hnsw   *HnswParams   `yaml:"hnsw,omitempty"`
}

type yamlCatalogue struct {
	Indexes []yamlIndexDef `yaml:"indexes"`
}

func parseKind(s string) (IndexKind, error) {
	switch s {
	case "idx", "":
		return KindIdx, nil
	case "uniq", "unique":
		return KindUniq, nil
	case "search":
		return KindSearch, nil
	case "mtree":
		return KindMTree, nil
	case "hnsw":
		return KindHnsw, nil
	default:
		return 0, fmt.Errorf("catalogue: unknown index kind %q", s)
	}
}

// Catalogue is a read-only, ordered table of index definitions, addressed
// by thing.IndexRef (its position in Definitions).
type Catalogue struct {
	Definitions []IndexDef
}

// LoadYAML reads a catalogue from a YAML file shaped like:
//
//	indexes:
//	  - name: by_n
//	    table: t
//	    fields: [n]
//	    kind: idx
//	  - name: by_text
//	    table: t
//	    fields: [body]
//	    kind: search
//	    search:
//	      analyzer: default
//	      bm25_k1: 1.2
//	      bm25_b: 0.75
//
// This is the static, build-time counterpart of the runtime DEFINE INDEX
// statements an embedding database would otherwise execute; out of scope
// here per spec.md §1 (plan construction is an external collaborator).
func LoadYAML(path string) (*Catalogue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalogue: read %s: %w", path, err)
	}
	var raw yamlCatalogue
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("catalogue: parse %s: %w", path, err)
	}
	defs := make([]IndexDef, 0, len(raw.Indexes))
	for _, d := range raw.Indexes {
		kind, err := parseKind(d.Kind)
		if err != nil {
			return nil, err
		}
		defs = append(defs, IndexDef{
			Name:   d.Name,
			Table:  d.Table,
			Fields: d.Fields,
			Kind:   kind,
			Search: d.Search,
			MTree:  d.MTree,
			Hnsw:   d.Hnsw,
		})
	}
	return &Catalogue{Definitions: defs}, nil
}

// New builds a catalogue directly from definitions, bypassing YAML — used
// by tests and by callers that build plans programmatically.
func New(defs ...IndexDef) *Catalogue {
	return &Catalogue{Definitions: defs}
}

// GetIndexDef performs the bounded lookup named in spec.md §4.5. Unknown
// refs render as (zero IndexDef, false) rather than an error.
func (c *Catalogue) GetIndexDef(ref thing.IndexRef) (IndexDef, bool) {
	if c == nil || int(ref) >= len(c.Definitions) {
		return IndexDef{}, false
	}
	return c.Definitions[ref], true
}
