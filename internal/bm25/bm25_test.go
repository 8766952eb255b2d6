package bm25

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "camelCase split",
			input:    "getUserById",
			expected: []string{"get", "user", "by", "id"},
		},
		{
			name:     "snake and kebab",
			input:    "user_id some-value",
			expected: []string{"user", "id", "some", "value"},
		},
		{
			name:     "acronym run",
			input:    "HTTPServer",
			expected: []string{"http", "server"},
		},
		{
			name:     "punctuation stripped",
			input:    "foo.bar(baz)",
			expected: []string{"foo", "bar", "baz"},
		},
		{
			name:     "short and numeric dropped",
			input:    "a 42 ok 1234567",
			expected: []string{"ok"},
		},
		{
			name:     "lowercased",
			input:    "UserService",
			expected: []string{"user", "service"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Tokenize(tt.input))
		})
	}
}

func TestSearchCodeTokenization(t *testing.T) {
	// camelCase splitting makes an identifier query hit the function
	// that carries both words.
	idx := New(DefaultParams())
	idx.Add("d1", "function getUserById(userId) { return user; }")
	idx.Add("d2", "class UserService { getUser(id) {} }")

	hits := idx.Search("user id", 10)
	require.Len(t, hits, 2)
	assert.Equal(t, "d1", hits[0].ID)
	assert.Equal(t, "d2", hits[1].ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestSearchRanksHigherTF(t *testing.T) {
	idx := New(DefaultParams())
	idx.Add("a", "alpha alpha alpha beta")
	idx.Add("b", "alpha alpha beta beta")
	idx.Add("c", "alpha beta beta beta")

	hits := idx.Search("alpha", 3)
	require.Len(t, hits, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hits[0].ID, hits[1].ID, hits[2].ID})
}

func TestSearchTieBreakInsertionOrder(t *testing.T) {
	idx := New(DefaultParams())
	idx.Add("second", "gamma delta")
	idx.Add("first", "gamma delta")

	hits := idx.Search("gamma", 10)
	require.Len(t, hits, 2)
	// Identical documents score identically; insertion order decides.
	assert.Equal(t, "second", hits[0].ID)
	assert.Equal(t, "first", hits[1].ID)
	assert.Equal(t, hits[0].Score, hits[1].Score)
}

func TestRemoveRewritesPostings(t *testing.T) {
	idx := New(DefaultParams())
	idx.Add("a", "shared term here")
	idx.Add("b", "shared term there")
	idx.Add("c", "unrelated words only")

	require.Equal(t, 3, idx.Size())

	idx.Remove("a")
	require.Equal(t, 2, idx.Size())

	hits := idx.Search("shared", 10)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].ID)

	// Unknown IDs are a no-op.
	idx.Remove("missing")
	assert.Equal(t, 2, idx.Size())
}

func TestReAddReplacesDocument(t *testing.T) {
	idx := New(DefaultParams())
	idx.Add("doc", "original content words")
	idx.Add("doc", "replacement body")

	require.Equal(t, 1, idx.Size())
	assert.Empty(t, idx.Search("original", 10))
	assert.Len(t, idx.Search("replacement", 10), 1)
}

func TestSmallCorpusKeepsVocabulary(t *testing.T) {
	// With three docs, a term in every doc would exceed any sane
	// maxDFRatio; the small-corpus relaxation keeps it searchable.
	params := DefaultParams()
	params.MaxDFRatio = 0.5
	idx := New(params)
	idx.Add("a", "common alpha")
	idx.Add("b", "common beta")
	idx.Add("c", "common gamma")

	hits := idx.Search("common", 10)
	assert.Len(t, hits, 3)
}

func TestDFBoundsOnLargerCorpus(t *testing.T) {
	params := DefaultParams()
	params.MaxDFRatio = 0.5
	idx := New(params)
	// 12 docs: the upper bound applies. "everywhere" sits in all of
	// them and gets pruned; "rare" survives.
	for i := 0; i < 12; i++ {
		text := "everywhere filler"
		if i == 0 {
			text += " rare"
		}
		idx.Add(string(rune('a'+i)), text)
	}

	assert.Empty(t, idx.Search("everywhere", 20))
	assert.Len(t, idx.Search("rare", 20), 1)
}

func TestSerializeRoundTrip(t *testing.T) {
	idx := New(DefaultParams())
	idx.Add("d1", "func parseConfig(path string) readConfig file")
	idx.Add("d2", "func writeSnapshot(data []byte) atomic rename")
	idx.Add("d3", "type Config struct maxFileSize ignorePatterns")

	queries := []string{"config", "parse config", "atomic snapshot", "max file size"}

	data, err := json.Marshal(idx)
	require.NoError(t, err)

	restored := New(Params{})
	require.NoError(t, json.Unmarshal(data, restored))

	require.Equal(t, idx.Size(), restored.Size())
	require.Equal(t, idx.VocabSize(), restored.VocabSize())

	for _, q := range queries {
		orig := idx.Search(q, 10)
		back := restored.Search(q, 10)
		require.Len(t, back, len(orig), "query %q", q)
		for i := range orig {
			assert.Equal(t, orig[i].ID, back[i].ID, "query %q rank %d", q, i)
			assert.InDelta(t, orig[i].Score, back[i].Score, 1e-9, "query %q rank %d", q, i)
		}
	}
}

func TestEmptyIndex(t *testing.T) {
	idx := New(DefaultParams())
	assert.Empty(t, idx.Search("anything", 10))
	assert.Equal(t, 0, idx.Size())
	assert.Equal(t, 0, idx.VocabSize())
}
