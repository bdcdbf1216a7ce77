// Package ftindex implements the FT Index Session (FTS) of spec.md §4.4: a
// per-index handle over the full-text structures — document-id map,
// postings (terms→docs+positions), analyzer, and BM25 scorer factory.
//
// Grounded on pkg/search/fulltext_index.go: the same bm25K1/bm25B
// constants, the same inverted-index/avgDocLength bookkeeping and the same
// Lucene/Elasticsearch IDF variant, generalised from a single
// map[string]string document store to a per-IndexRef session keyed by
// thing.Thing and addressed by dense thing.DocId, since the FT session here
// must answer the doc-id-based matches() path spec.md §4.1 describes.
package ftindex

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/orneryd/iqe/pkg/thing"
)

// Default BM25 parameters, identical to the teacher's fulltext_index.go.
const (
	DefaultK1 = 1.2
	DefaultB  = 0.75
)

// stopWords mirrors the teacher's minimal stop-word list.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "for": true, "from": true, "has": true, "he": true,
	"in": true, "is": true, "it": true, "its": true, "of": true, "on": true,
	"that": true, "the": true, "to": true, "was": true, "were": true, "will": true,
	"with": true,
}

func isStopWord(w string) bool { return stopWords[w] }

// Analyzer tokenizes free text into query/index terms: lowercase, split on
// non-alphanumeric runes, drop stop words and tokens shorter than two
// characters. Matches fulltext_index.go's tokenize.
type Analyzer struct {
	name string
}

// NewAnalyzer returns the default analyzer, named for the catalogue's
// SearchParams.Analyzer field.
func NewAnalyzer(name string) *Analyzer {
	if name == "" {
		name = "default"
	}
	return &Analyzer{name: name}
}

func (a *Analyzer) Name() string { return a.name }

// Tokenize splits text into indexable/queryable terms.
func (a *Analyzer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if len(f) < 2 || isStopWord(f) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// posting is one term's occurrence in one document: frequency plus ordered
// positional offsets, used for highlighting (spec.md §4.4's
// extract_offsets).
type posting struct {
	freq      int
	positions []int
}

// Index is a per-IndexRef full-text session: documents, postings, the
// dense doc-id map and the BM25 parameters drawn from the index's
// catalogue.SearchParams.
type Index struct {
	mu sync.RWMutex

	analyzer *Analyzer
	k1, b    float64

	nextDocID thing.DocId
	docOf     map[thing.Thing]thing.DocId
	thingOf   map[thing.DocId]thing.Thing
	text      map[thing.DocId]string
	postings  map[string]map[thing.DocId]posting // term -> docId -> posting
	docLen    map[thing.DocId]int
	totalLen  int
}

// New creates an empty FT session for one index.
func New(analyzer *Analyzer, k1, b float64) *Index {
	if k1 <= 0 {
		k1 = DefaultK1
	}
	if b <= 0 {
		b = DefaultB
	}
	return &Index{
		analyzer: analyzer,
		k1:       k1,
		b:        b,
		docOf:    map[thing.Thing]thing.DocId{},
		thingOf:  map[thing.DocId]thing.Thing{},
		text:     map[thing.DocId]string{},
		postings: map[string]map[thing.DocId]posting{},
		docLen:   map[thing.DocId]int{},
	}
}

// IndexDocument assigns (or reuses) a DocId for t and (re)indexes text,
// the index *build* path spec.md §1 treats as an external collaborator;
// kept here because the query executor's tests need a way to seed data.
func (idx *Index) IndexDocument(t thing.Thing, text string) thing.DocId {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id, exists := idx.docOf[t]
	if !exists {
		id = idx.nextDocID
		idx.nextDocID++
		idx.docOf[t] = id
		idx.thingOf[id] = t
	} else {
		idx.removeLocked(id)
	}

	idx.text[id] = text
	terms := idx.analyzer.Tokenize(text)
	idx.docLen[id] = len(terms)
	idx.totalLen += len(terms)

	freq := map[string][]int{}
	for pos, term := range terms {
		freq[term] = append(freq[term], pos)
	}
	for term, positions := range freq {
		bucket, ok := idx.postings[term]
		if !ok {
			bucket = map[thing.DocId]posting{}
			idx.postings[term] = bucket
		}
		bucket[id] = posting{freq: len(positions), positions: positions}
	}
	return id
}

func (idx *Index) removeLocked(id thing.DocId) {
	if oldLen, ok := idx.docLen[id]; ok {
		idx.totalLen -= oldLen
	}
	for term, bucket := range idx.postings {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(idx.postings, term)
		}
	}
}

func (idx *Index) avgDocLength() float64 {
	if len(idx.docLen) == 0 {
		return 0
	}
	return float64(idx.totalLen) / float64(len(idx.docLen))
}

// GetDocID resolves a Thing's DocId under this session, the read side of
// the "by doc-id" matches() strategy (spec.md §4.1).
func (idx *Index) GetDocID(t thing.Thing) (thing.DocId, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	id, ok := idx.docOf[t]
	return id, ok
}

// ThingOf resolves a DocId back to its Thing.
func (idx *Index) ThingOf(id thing.DocId) (thing.Thing, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.thingOf[id]
	return t, ok
}

// Analyzer returns the session's term analyzer.
func (idx *Index) Analyzer() *Analyzer { return idx.analyzer }

// ExtractQueryingTerms tokenizes a query string into an ordered terms list
// plus a terms set, spec.md §4.4's extract_querying_terms.
func (idx *Index) ExtractQueryingTerms(query string) (list []string, set map[string]bool) {
	list = idx.analyzer.Tokenize(query)
	set = make(map[string]bool, len(list))
	for _, t := range list {
		set[t] = true
	}
	return list, set
}

// TermDocs is one term's materialised posting set, or absent (false) if the
// term is unknown to the index.
type TermDocs struct {
	Term  string
	DocIDs []thing.DocId // sorted ascending
	ok    bool
}

// GetTermsDocs resolves a list of query terms into their posting sets, in
// the same order, spec.md §4.4's get_terms_docs. An entry with ok=false
// means the term has no postings at all.
func (idx *Index) GetTermsDocs(terms []string) []TermDocs {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]TermDocs, len(terms))
	for i, term := range terms {
		bucket, ok := idx.postings[term]
		if !ok || len(bucket) == 0 {
			out[i] = TermDocs{Term: term, ok: false}
			continue
		}
		ids := make([]thing.DocId, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })
		out[i] = TermDocs{Term: term, DocIDs: ids, ok: true}
	}
	return out
}

// TermPostingLists returns just the []DocId slices for a TermDocs batch, in
// order, for feeding pkg/iterator's Matches constructor. Terms without
// postings surface as an empty slice, collapsing the intersection to
// nothing (spec.md §4.2's "if any term has no postings, result is empty").
func TermPostingLists(tds []TermDocs) [][]thing.DocId {
	out := make([][]thing.DocId, len(tds))
	for i, td := range tds {
		if td.ok {
			out[i] = td.DocIDs
		}
	}
	return out
}

// ExtractIndexingTerms analyzes a record value the same way documents are
// indexed, used by the FT "by value" matches() strategy when the index is
// not defined over the scanned table (spec.md §4.1).
func (idx *Index) ExtractIndexingTerms(value string) map[string]bool {
	terms := idx.analyzer.Tokenize(value)
	set := make(map[string]bool, len(terms))
	for _, t := range terms {
		set[t] = true
	}
	return set
}

// IsSubset reports whether every term in querySet is present in docSet,
// the by-value match test of spec.md §4.1.
func IsSubset(querySet, docSet map[string]bool) bool {
	if len(querySet) == 0 {
		return false
	}
	for t := range querySet {
		if !docSet[t] {
			return false
		}
	}
	return true
}

// HasPositiveByDocID reports whether the doc identified by id carries a
// positive posting for every term in terms, the "by doc-id" matches()
// strategy. Empty terms → false, per spec.md §4.1.
func (idx *Index) HasPositiveByDocID(id thing.DocId, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, term := range terms {
		bucket, ok := idx.postings[term]
		if !ok {
			return false
		}
		if _, ok := bucket[id]; !ok {
			return false
		}
	}
	return true
}

// DocumentText returns the stored text for a DocId, used by Highlight and
// ExtractOffsets.
func (idx *Index) DocumentText(id thing.DocId) (string, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	t, ok := idx.text[id]
	return t, ok
}

func (idx *Index) termFreq(term string, id thing.DocId) (posting, bool) {
	bucket, ok := idx.postings[term]
	if !ok {
		return posting{}, false
	}
	p, ok := bucket[id]
	return p, ok
}

func (idx *Index) docFreq(term string) int {
	return len(idx.postings[term])
}
