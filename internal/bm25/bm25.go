// Package bm25 implements the sparse lexical index with a code-aware
// tokenizer. Scores follow standard BM25 with document-frequency
// bounds on the vocabulary.
package bm25

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Params tune scoring and vocabulary pruning.
type Params struct {
	K1         float64 `json:"k1"`
	B          float64 `json:"b"`
	MinDF      int     `json:"min_df"`
	MaxDFRatio float64 `json:"max_df_ratio"`
}

// DefaultParams are the standard BM25 constants.
func DefaultParams() Params {
	return Params{K1: 1.2, B: 0.75, MinDF: 1, MaxDFRatio: 0.9}
}

// Corpus-size cutoffs below which the DF bounds relax: tiny corpora
// would otherwise prune their entire vocabulary.
const (
	smallCorpusUpper = 10
	smallCorpusLower = 5
)

type docEntry struct {
	ID  string `json:"id"`
	Len int    `json:"len"` // token count
}

type posting struct {
	Doc int `json:"doc"` // index into docs
	TF  int `json:"tf"`
}

// Index is the in-memory sparse index. Queries are pure CPU; the
// mutex admits many readers or one writer.
type Index struct {
	mu       sync.RWMutex
	params   Params
	docs     []docEntry
	byID     map[string]int
	postings map[string][]posting
	totalLen int

	idf      map[string]float64
	idfDirty bool
}

// Hit is one search result.
type Hit struct {
	ID    string
	Score float64
}

// New returns an empty index with the given parameters.
func New(params Params) *Index {
	if params.K1 == 0 {
		params.K1 = 1.2
	}
	if params.B == 0 {
		params.B = 0.75
	}
	return &Index{
		params:   params,
		byID:     make(map[string]int),
		postings: make(map[string][]posting),
		idfDirty: true,
	}
}

// Add indexes a document. Re-adding an existing ID replaces it.
func (x *Index) Add(id, text string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	if _, exists := x.byID[id]; exists {
		x.removeLocked(id)
	}

	tokens := Tokenize(text)
	ord := len(x.docs)
	x.docs = append(x.docs, docEntry{ID: id, Len: len(tokens)})
	x.byID[id] = ord
	x.totalLen += len(tokens)

	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	for term, count := range tf {
		x.postings[term] = append(x.postings[term], posting{Doc: ord, TF: count})
	}
	x.idfDirty = true
}

// Remove deletes a document and rewrites the postings that referenced
// it. Unknown IDs are a no-op.
func (x *Index) Remove(id string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.removeLocked(id)
}

func (x *Index) removeLocked(id string) {
	ord, exists := x.byID[id]
	if !exists {
		return
	}

	x.totalLen -= x.docs[ord].Len
	x.docs = append(x.docs[:ord], x.docs[ord+1:]...)
	delete(x.byID, id)
	for i := ord; i < len(x.docs); i++ {
		x.byID[x.docs[i].ID] = i
	}

	for term, list := range x.postings {
		out := list[:0]
		for _, p := range list {
			switch {
			case p.Doc == ord:
				continue
			case p.Doc > ord:
				p.Doc--
			}
			out = append(out, p)
		}
		if len(out) == 0 {
			delete(x.postings, term)
		} else {
			x.postings[term] = out
		}
	}
	x.idfDirty = true
}

// Size returns the number of indexed documents.
func (x *Index) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.docs)
}

// VocabSize returns the number of terms surviving the DF bounds.
func (x *Index) VocabSize() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.recomputeLocked()
	return len(x.idf)
}

// recomputeLocked rebuilds the IDF table, applying the DF bounds with
// their small-corpus relaxations.
func (x *Index) recomputeLocked() {
	if !x.idfDirty {
		return
	}

	n := len(x.docs)
	x.idf = make(map[string]float64, len(x.postings))

	applyUpper := n > smallCorpusUpper
	applyLower := n > smallCorpusLower

	for term, list := range x.postings {
		df := len(list)
		if applyLower && df < x.params.MinDF {
			continue
		}
		if applyUpper && float64(df) > x.params.MaxDFRatio*float64(n) {
			continue
		}
		x.idf[term] = math.Log((float64(n)-float64(df)+0.5)/(float64(df)+0.5) + 1)
	}
	x.idfDirty = false
}

// Search returns the top-k documents by summed term score, descending,
// ties broken by insertion order.
func (x *Index) Search(query string, k int) []Hit {
	x.mu.Lock()
	x.recomputeLocked()
	x.mu.Unlock()

	x.mu.RLock()
	defer x.mu.RUnlock()

	if len(x.docs) == 0 || k <= 0 {
		return nil
	}

	avgLen := float64(x.totalLen) / float64(len(x.docs))
	if avgLen == 0 {
		avgLen = 1
	}

	scores := make(map[int]float64)
	for _, term := range Tokenize(query) {
		idf, ok := x.idf[term]
		if !ok {
			continue
		}
		for _, p := range x.postings[term] {
			tf := float64(p.TF)
			norm := x.params.K1 * (1 - x.params.B + x.params.B*float64(x.docs[p.Doc].Len)/avgLen)
			scores[p.Doc] += idf * (tf * (x.params.K1 + 1)) / (tf + norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	ords := make([]int, 0, len(scores))
	for ord := range scores {
		ords = append(ords, ord)
	}
	sort.Ints(ords)
	for _, ord := range ords {
		hits = append(hits, Hit{ID: x.docs[ord].ID, Score: scores[ord]})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// snapshot is the serialized form. IDF is derived, never stored.
type snapshot struct {
	Params   Params               `json:"params"`
	Docs     []docEntry           `json:"docs"`
	Postings map[string][]posting `json:"postings"`
}

// MarshalJSON serializes the index.
func (x *Index) MarshalJSON() ([]byte, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return json.Marshal(snapshot{
		Params:   x.params,
		Docs:     x.docs,
		Postings: x.postings,
	})
}

// UnmarshalJSON restores an index. A restored index reproduces the
// exact scores of the original for an unchanged corpus.
func (x *Index) UnmarshalJSON(data []byte) error {
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("decode bm25 snapshot: %w", err)
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	x.params = snap.Params
	x.docs = snap.Docs
	x.postings = snap.Postings
	if x.postings == nil {
		x.postings = make(map[string][]posting)
	}
	x.byID = make(map[string]int, len(x.docs))
	x.totalLen = 0
	for i, d := range x.docs {
		x.byID[d.ID] = i
		x.totalLen += d.Len
	}
	x.idfDirty = true
	return nil
}
