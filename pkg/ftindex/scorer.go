package ftindex

import (
	"math"
	"strings"

	"github.com/orneryd/iqe/pkg/thing"
)

// Scorer computes BM25 over a fixed set of query terms, matching
// fulltext_index.go's calculateIDF (the Lucene/Elasticsearch variant,
// floored at 0) and the classic BM25 term-saturation formula.
//
//	score(D, Q) = Σ IDF(q) * (f(q,D) * (k1+1)) / (f(q,D) + k1*(1 - b + b*|D|/avgdl))
type Scorer struct {
	idx   *Index
	terms []TermDocs
}

// NewScorer builds a scorer from precomputed terms_docs, returning nil if
// no query term has any postings in the index. The per-document "contains
// none of the query terms" case (spec.md §4.4) is answered by Score, which
// returns ok=false for such a document.
func (idx *Index) NewScorer(termsDocs []TermDocs) *Scorer {
	any := false
	for _, td := range termsDocs {
		if td.ok {
			any = true
			break
		}
	}
	if !any {
		return nil
	}
	return &Scorer{idx: idx, terms: termsDocs}
}

// Score returns the BM25 score for doc id, or ok=false if the document
// contains none of the scorer's query terms.
func (s *Scorer) Score(id thing.DocId) (score float64, ok bool) {
	s.idx.mu.RLock()
	defer s.idx.mu.RUnlock()

	docLen, known := s.idx.docLen[id]
	if !known {
		return 0, false
	}
	avgdl := s.idx.avgDocLength()
	n := float64(len(s.idx.docLen))

	matched := false
	for _, td := range s.terms {
		if !td.ok {
			continue
		}
		p, present := s.idx.termFreq(td.Term, id)
		if !present {
			continue
		}
		matched = true
		df := float64(s.idx.docFreq(td.Term))
		idf := calculateIDF(n, df)
		tf := float64(p.freq)
		denom := tf + s.idx.k1*(1-s.idx.b+s.idx.b*float64(docLen)/maxF(avgdl, 1))
		score += idf * (tf * (s.idx.k1 + 1)) / denom
	}
	if !matched {
		return 0, false
	}
	return score, true
}

func calculateIDF(n, df float64) float64 {
	if df <= 0 || n <= 0 {
		return 0
	}
	idf := math.Log(1 + (n-df+0.5)/(df+0.5))
	if idf < 0 {
		return 0
	}
	return idf
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

// Highlight wraps every occurrence of any term in terms within the
// document's text in prefix/suffix, preserving the original ordered term
// list for positional rendering (spec.md §4.4). Matching is
// case-insensitive and by substring in both modes, so a term inside a
// longer word is highlighted too; when partial is true, each highlighted
// span extends to the end of the word it starts in.
func (idx *Index) Highlight(id thing.DocId, terms []string, prefix, suffix string, partial bool) (string, bool) {
	text, ok := idx.DocumentText(id)
	if !ok {
		return "", false
	}
	lower := strings.ToLower(text)
	type span = struct{ start, end int }
	var spans []span
	for _, term := range terms {
		lt := strings.ToLower(term)
		from := 0
		for {
			i := strings.Index(lower[from:], lt)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(lt)
			if partial {
				for end < len(lower) && isWordRune(rune(lower[end])) {
					end++
				}
			}
			spans = append(spans, span{start, end})
			from = end
		}
	}
	if len(spans) == 0 {
		return text, true
	}
	// Merge overlapping spans, then render left to right.
	sortSpans(spans)
	merged := spans[:1]
	for _, sp := range spans[1:] {
		last := &merged[len(merged)-1]
		if sp.start <= last.end {
			if sp.end > last.end {
				last.end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	var b strings.Builder
	cursor := 0
	for _, sp := range merged {
		b.WriteString(text[cursor:sp.start])
		b.WriteString(prefix)
		b.WriteString(text[sp.start:sp.end])
		b.WriteString(suffix)
		cursor = sp.end
	}
	b.WriteString(text[cursor:])
	return b.String(), true
}

func isWordRune(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
}

func sortSpans(spans []struct{ start, end int }) {
	for i := 1; i < len(spans); i++ {
		for j := i; j > 0 && spans[j-1].start > spans[j].start; j-- {
			spans[j-1], spans[j] = spans[j], spans[j-1]
		}
	}
}

// Offset is one highlighted occurrence's byte range within a document.
type Offset struct {
	Term  string
	Start int
	End   int
}

// ExtractOffsets returns positional offsets for every occurrence of terms
// within the document identified by id, spec.md §4.4's extract_offsets.
func (idx *Index) ExtractOffsets(id thing.DocId, terms []string, partial bool) ([]Offset, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	text, ok := idx.text[id]
	if !ok {
		return nil, false
	}
	lower := strings.ToLower(text)
	var out []Offset
	for _, term := range terms {
		lt := strings.ToLower(term)
		from := 0
		for {
			i := strings.Index(lower[from:], lt)
			if i < 0 {
				break
			}
			start := from + i
			end := start + len(lt)
			if partial {
				for end < len(lower) && isWordRune(rune(lower[end])) {
					end++
				}
			}
			out = append(out, Offset{Term: term, Start: start, End: end})
			from = end
		}
	}
	return out, true
}
