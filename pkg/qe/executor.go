// Package qe implements the Query Executor of spec.md §4.1: the component
// that composes the catalogue, thing iterators, FT/MTree/HNSW sessions and
// the BFK accumulator into a single handle the scan driver consults once
// per IteratorRef and once per candidate record.
//
// Grounded on pkg/cypher/executor.go's Executor: a long-lived, immutable-
// after-build struct holding references to collaborating subsystems,
// walked by a driver loop that calls back into it per row. it_entries here
// plays the role of that file's compiled plan steps; FtEntry/MtEntry/
// HnswEntry play the role of its per-clause evaluation state.
package qe

import (
	"fmt"
	"log"
	"sync"

	"github.com/orneryd/iqe/pkg/bfk"
	"github.com/orneryd/iqe/pkg/catalogue"
	"github.com/orneryd/iqe/pkg/dberr"
	"github.com/orneryd/iqe/pkg/ftindex"
	"github.com/orneryd/iqe/pkg/kvt"
	"github.com/orneryd/iqe/pkg/thing"
	"github.com/orneryd/iqe/pkg/vectorindex"
)

// OptionEntry pairs a plan expression (an opaque string id the driver
// already knows how to correlate to an AST node) with the IndexOption it
// was bound to.
type OptionEntry struct {
	Expression string
	Option     catalogue.IndexOption
}

// IndexesMap is the QE construction input of spec.md §4.1: the full set of
// (expression, IndexOption) bindings plus the catalogue definitions they
// reference.
type IndexesMap struct {
	Options     []OptionEntry
	Definitions []catalogue.IndexDef
}

// ComputeIdiom reads the vector field a BFK expression scores against, out
// of an opaque record value. Out of scope to implement generically here
// (spec.md §1 treats idiom evaluation as external); callers supply one per
// expression.
type ComputeIdiom func(doc any) ([]float64, error)

// BfkExpr is one brute-force k-NN expression's construction parameters
// (spec.md §4.1: "for each brute-force k-NN expression, allocate an empty
// priority list of capacity k").
type BfkExpr struct {
	Expression string
	K          int
	Vector     []float64
	Distance   vectorindex.DistanceFunc
	Idiom      ComputeIdiom
}

// IteratorEntry is either Single(expression, IndexOption) or
// Range(expressions, IndexRef, from, to), per spec.md §3. Modelled as a
// tagged struct (not an interface) for the same inspectability reason as
// pkg/iterator's ThingIterator (spec.md §9).
type IteratorEntry struct {
	Single bool

	// Single
	Expression string
	Option     catalogue.IndexOption

	// Range
	Expressions []string
	IxRef       thing.IndexRef
	From        catalogue.RangeValue
	To          catalogue.RangeValue
}

// Explain renders the structured description of spec.md §4.5: {index,
// from, to} for ranges, delegating to IndexOption.Explain for singles.
func (e IteratorEntry) Explain(defs []catalogue.IndexDef) map[string]any {
	if e.Single {
		return e.Option.Explain(defs)
	}
	out := map[string]any{"from": e.From, "to": e.To}
	if int(e.IxRef) < len(defs) {
		out["index"] = defs[e.IxRef].Name
	}
	return out
}

type ftEntry struct {
	option    catalogue.IndexOption
	index     *ftindex.Index
	termsList []string
	termsSet  map[string]bool
	termsDocs []ftindex.TermDocs
	scorer    *ftindex.Scorer
}

type mtEntry struct {
	option  catalogue.IndexOption
	session *vectorindex.MTreeSession
	results []vectorindex.MTreeResult
}

type hnswEntry struct {
	option  catalogue.IndexOption
	session *vectorindex.HnswSession
	results []vectorindex.HnswResult
}

type bfkEntry struct {
	expr vectorindex.DistanceFunc
	idiom ComputeIdiom
	vector []float64
	acc   *bfk.Accumulator
}

// QueryExecutor composes the Index Catalogue, Thing Iterators, FT/MTree/
// HNSW sessions and the BFK accumulator (spec.md §2's components 2-6).
// Reference-shared by design: built once via New, then immutable except for
// it_entries, which is append-only during plan attach and frozen before any
// iterator runs (spec.md §5). Callers needing clone semantics simply share
// the pointer; there is no internal copy-on-write.
type QueryExecutor struct {
	mu sync.RWMutex

	table string
	ns    string
	db    string
	cat   *catalogue.Catalogue
	tx    kvt.Transaction

	itEntries []IteratorEntry
	frozen    bool

	ftSessions   map[thing.IndexRef]*ftindex.Index
	ftEntries    map[string]*ftEntry // by expression
	matchRefs    map[thing.MatchRef]string // MatchRef -> expression, for dup detection + score/highlight dispatch

	mtSessions map[thing.IndexRef]*vectorindex.MTreeSession
	mtEntries  map[string]*mtEntry

	hnswSessions map[thing.IndexRef]*vectorindex.HnswSession
	hnswEntries  map[string]*hnswEntry

	bfk   map[string]*bfkEntry
	stage bfk.IterationStage
}

// Config bundles the collaborators New needs beyond the plan itself: the
// owning transaction and namespace/database, which feed every index key
// built through pkg/kvt (spec.md §6's "Index key layout").
type Config struct {
	Namespace string
	Database  string
	Tx        kvt.Transaction

	// FTSessions/HnswSessions pre-bind populated sessions by IndexRef before
	// New runs its eager attach pass, the seam a real driver uses to hand QE
	// an index whose documents were already ingested (spec.md §1's index
	// *build* path is external).
	FTSessions   map[thing.IndexRef]*ftindex.Index
	HnswSessions map[thing.IndexRef]*vectorindex.HnswSession
}

// New constructs a QueryExecutor for one table, wiring up FT/MTree/HNSW
// entries eagerly per spec.md §4.1's construction contract, and allocating
// one empty BFK accumulator per brute-force k-NN expression. Fails with
// dberr.DuplicatedMatchRefError if two Matches options share a MatchRef.
func New(table string, idx IndexesMap, bfkExprs []BfkExpr, cat *catalogue.Catalogue, cfg Config) (*QueryExecutor, error) {
	qe := &QueryExecutor{
		table:        table,
		ns:           cfg.Namespace,
		db:           cfg.Database,
		cat:          cat,
		tx:           cfg.Tx,
		ftSessions:   map[thing.IndexRef]*ftindex.Index{},
		ftEntries:    map[string]*ftEntry{},
		matchRefs:    map[thing.MatchRef]string{},
		mtSessions:   map[thing.IndexRef]*vectorindex.MTreeSession{},
		mtEntries:    map[string]*mtEntry{},
		hnswSessions: map[thing.IndexRef]*vectorindex.HnswSession{},
		hnswEntries:  map[string]*hnswEntry{},
		bfk:          map[string]*bfkEntry{},
	}
	for ref, s := range cfg.FTSessions {
		qe.ftSessions[ref] = s
	}
	for ref, s := range cfg.HnswSessions {
		qe.hnswSessions[ref] = s
	}

	for _, oe := range idx.Options {
		def, ok := cat.GetIndexDef(oe.Option.IxRef)
		if !ok {
			continue // spec.md I2: unresolvable IndexRef is a build-time concern of the caller, not QE.
		}
		switch {
		case def.Kind == catalogue.KindSearch && oe.Option.Op.Kind == catalogue.OpMatches:
			if err := qe.attachFT(oe, def); err != nil {
				return nil, err
			}
		case def.Kind == catalogue.KindMTree && oe.Option.Op.Kind == catalogue.OpKnn:
			if err := qe.attachMTree(oe, def); err != nil {
				return nil, err
			}
		case def.Kind == catalogue.KindHnsw && oe.Option.Op.Kind == catalogue.OpAnn:
			if err := qe.attachHnsw(oe, def); err != nil {
				return nil, err
			}
		default:
			// Plain Idx/Uniq: deferred, resolved at iterator creation
			// (spec.md §4.1).
		}
	}

	for _, be := range bfkExprs {
		qe.bfk[be.Expression] = &bfkEntry{expr: be.Distance, idiom: be.Idiom, vector: be.Vector, acc: bfk.New(be.K)}
	}

	return qe, nil
}

// BindFTSession registers an FT session for an IndexRef on an executor
// that New has already built. New attaches every Matches entry before it
// returns, so a session bound here is not used by any existing entry;
// Config.FTSessions is the way to hand New a populated index before
// attachFT runs.
func (qe *QueryExecutor) BindFTSession(ref thing.IndexRef, idx *ftindex.Index) {
	qe.ftSessions[ref] = idx
}

func (qe *QueryExecutor) ftSessionFor(ref thing.IndexRef, def catalogue.IndexDef) *ftindex.Index {
	if s, ok := qe.ftSessions[ref]; ok {
		return s
	}
	var analyzerName string
	var k1, b float64
	if def.Search != nil {
		analyzerName = def.Search.Analyzer
		k1 = def.Search.BM25K1
		b = def.Search.BM25B
	}
	s := ftindex.New(ftindex.NewAnalyzer(analyzerName), k1, b)
	qe.ftSessions[ref] = s
	return s
}

func (qe *QueryExecutor) attachFT(oe OptionEntry, def catalogue.IndexDef) error {
	idx := qe.ftSessionFor(oe.Option.IxRef, def)
	list, set := idx.ExtractQueryingTerms(oe.Option.Op.Query)
	termsDocs := idx.GetTermsDocs(list)

	if oe.Option.Op.MatchRef != nil {
		ref := *oe.Option.Op.MatchRef
		if _, dup := qe.matchRefs[ref]; dup {
			return fmt.Errorf("qe: %w", &dberr.DuplicatedMatchRefError{MatchRef: int(ref)})
		}
		qe.matchRefs[ref] = oe.Expression
	}

	e := &ftEntry{option: oe.Option, index: idx, termsList: list, termsSet: set, termsDocs: termsDocs}
	e.scorer = idx.NewScorer(termsDocs)
	qe.ftEntries[oe.Expression] = e
	return nil
}

func (qe *QueryExecutor) mtSessionFor(ref thing.IndexRef, def catalogue.IndexDef) *vectorindex.MTreeSession {
	if s, ok := qe.mtSessions[ref]; ok {
		return s
	}
	dim, distName := 0, ""
	if def.MTree != nil {
		dim = def.MTree.Dimension
		distName = def.MTree.Distance
	}
	s := vectorindex.NewMTreeSession(dim, vectorindex.ByName(distName))
	qe.mtSessions[ref] = s
	return s
}

func (qe *QueryExecutor) attachMTree(oe OptionEntry, def catalogue.IndexDef) error {
	session := qe.mtSessionFor(oe.Option.IxRef, def)
	results, err := session.KnnSearch(oe.Option.Op.Vector, oe.Option.Op.K)
	if err != nil {
		return fmt.Errorf("qe: mtree knn_search: %w", err)
	}
	qe.mtEntries[oe.Expression] = &mtEntry{option: oe.Option, session: session, results: results}
	return nil
}

func (qe *QueryExecutor) hnswSessionFor(ref thing.IndexRef, def catalogue.IndexDef) *vectorindex.HnswSession {
	if s, ok := qe.hnswSessions[ref]; ok {
		return s
	}
	dim, distName := 0, ""
	cfg := vectorindex.DefaultHnswConfig()
	if def.Hnsw != nil {
		dim = def.Hnsw.Dimension
		distName = def.Hnsw.Distance
		if def.Hnsw.M > 0 {
			cfg.M = def.Hnsw.M
		}
		if def.Hnsw.EfConstruction > 0 {
			cfg.EfConstruction = def.Hnsw.EfConstruction
		}
		if def.Hnsw.EfSearch > 0 {
			cfg.EfSearch = def.Hnsw.EfSearch
		}
	}
	s := vectorindex.NewHnswSession(dim, vectorindex.ByName(distName), cfg)
	qe.hnswSessions[ref] = s
	return s
}

// BindHnswSession registers a shared HNSW session for an IndexRef on an
// already-built executor. As with BindFTSession, Ann entries are attached
// inside New, so a session bound here is not used by any existing entry;
// Config.HnswSessions is the pre-New seam.
func (qe *QueryExecutor) BindHnswSession(ref thing.IndexRef, s *vectorindex.HnswSession) {
	qe.hnswSessions[ref] = s
}

func (qe *QueryExecutor) attachHnsw(oe OptionEntry, def catalogue.IndexDef) error {
	session := qe.hnswSessionFor(oe.Option.IxRef, def)
	// Per-query ef override (SPEC_FULL supplemented feature #3, resolving
	// spec.md §9's HNSW ef open question): a positive Op.Ef wins over the
	// session/index default; Op.Ef <= 0 falls back to the session's EfSearch.
	results, err := session.KnnSearch(oe.Option.Op.Vector, oe.Option.Op.N, oe.Option.Op.Ef)
	if err != nil {
		return fmt.Errorf("qe: hnsw knn_search: %w", err)
	}
	qe.hnswEntries[oe.Expression] = &hnswEntry{option: oe.Option, session: session, results: results}
	return nil
}

// AddIteratorEntry appends one IteratorEntry, returning its dense
// IteratorRef. Mutates the executor during plan build (spec.md §9's "plan
// attach mutability" note); panics if called after Freeze.
func (qe *QueryExecutor) AddIteratorEntry(e IteratorEntry) thing.IteratorRef {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	if qe.frozen {
		panic("qe: AddIteratorEntry called after Freeze")
	}
	qe.itEntries = append(qe.itEntries, e)
	return thing.IteratorRef(len(qe.itEntries) - 1)
}

// Freeze stops further plan mutation: "no readers during build, no
// mutation after" (spec.md §5).
func (qe *QueryExecutor) Freeze() {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	qe.frozen = true
}

// IsTable reports whether name is the table this executor was built for.
func (qe *QueryExecutor) IsTable(name string) bool { return qe.table == name }

// HasBruteforceKnn reports whether any BFK expression was registered.
func (qe *QueryExecutor) HasBruteforceKnn() bool { return len(qe.bfk) > 0 }

// SetIterationStage sets the per-query IterationStage the driver threads
// through the two BFK phases (spec.md §6's "Iteration-stage channel").
func (qe *QueryExecutor) SetIterationStage(stage bfk.IterationStage) {
	qe.mu.Lock()
	defer qe.mu.Unlock()
	qe.stage = stage
	if stage == bfk.StageIterate {
		log.Printf("[qe %s.%s] bfk: collect -> iterate, freezing %d accumulator(s)", qe.ns, qe.db, len(qe.bfk))
		for _, e := range qe.bfk {
			e.acc.Freeze()
		}
	}
}

// Explain renders IteratorEntry(ref)'s structured description, or
// (nil, false) for an out-of-range ref (spec.md §4.5).
func (qe *QueryExecutor) Explain(ref thing.IteratorRef) (map[string]any, bool) {
	qe.mu.RLock()
	defer qe.mu.RUnlock()
	if int(ref) >= len(qe.itEntries) {
		return nil, false
	}
	return qe.itEntries[ref].Explain(qe.cat.Definitions), true
}

// IsIteratorExpression reports whether ref's entry was built for
// expression — used by the driver to short-circuit re-evaluation of a
// predicate the iterator already encodes (spec.md §4.1).
func (qe *QueryExecutor) IsIteratorExpression(ref thing.IteratorRef, expression string) bool {
	qe.mu.RLock()
	defer qe.mu.RUnlock()
	if int(ref) >= len(qe.itEntries) {
		return false
	}
	e := qe.itEntries[ref]
	if e.Single {
		return e.Expression == expression
	}
	for _, ex := range e.Expressions {
		if ex == expression {
			return true
		}
	}
	return false
}
