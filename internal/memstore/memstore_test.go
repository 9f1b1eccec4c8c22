package memstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeEmbedder maps known texts to fixed unit vectors so similarity is
// fully deterministic. Unknown texts get an orthogonal default vector.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = f.vector(t)
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	return f.vector(text), nil
}

func (f *fakeEmbedder) vector(text string) []float32 {
	if v, ok := f.vectors[text]; ok {
		return v
	}
	return []float32{0, 0, 0, 1}
}

func testStore(t *testing.T, threshold float32, vectors map[string][]float32) *Store {
	t.Helper()
	store, err := New(Config{Threshold: threshold}, &fakeEmbedder{vectors: vectors}, nil)
	require.NoError(t, err)
	return store
}

func TestAddedEntriesAreRetrievable(t *testing.T) {
	vectors := map[string][]float32{
		"aspirin reduces cardiovascular risk": {1, 0, 0, 0},
		"vitamin d and bone density":          {0, 1, 0, 0},
		"does aspirin protect the heart":      {1, 0, 0, 0},
	}
	store := testStore(t, 0.5, vectors)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{
		{ID: "PMC1-abstract", Text: "aspirin reduces cardiovascular risk", DocumentID: "PMC1", Section: "abstract"},
		{ID: "PMC2-abstract", Text: "vitamin d and bone density", DocumentID: "PMC2", Section: "abstract"},
	}))

	hits, err := store.Search(ctx, "does aspirin protect the heart")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "PMC1", hits[0].DocumentID)
	assert.Equal(t, "abstract", hits[0].Section)
	assert.Equal(t, "aspirin reduces cardiovascular risk", hits[0].Text)
	assert.InDelta(t, 1.0, float64(hits[0].Score), 0.01)
}

func TestBelowThresholdNotReturned(t *testing.T) {
	vectors := map[string][]float32{
		"doc text":   {1, 0, 0, 0},
		"query text": {0, 1, 0, 0},
	}
	store := testStore(t, 0.5, vectors)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{
		{ID: "e1", Text: "doc text", DocumentID: "PMC1"},
	}))

	hits, err := store.Search(ctx, "query text")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestEmptyCacheSearchIsEmpty(t *testing.T) {
	store := testStore(t, 0.5, nil)

	hits, err := store.Search(context.Background(), "anything")
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestAddRejectsMissingID(t *testing.T) {
	store := testStore(t, 0.5, nil)

	err := store.Add(context.Background(), []Entry{{Text: "no id"}})
	assert.Error(t, err)
}

func TestAddEmptyBatchIsNoOp(t *testing.T) {
	store := testStore(t, 0.5, nil)
	assert.NoError(t, store.Add(context.Background(), nil))
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	store := testStore(t, 0.5, nil)
	_, err := store.Search(context.Background(), "")
	assert.Error(t, err)
}

func TestCount(t *testing.T) {
	vectors := map[string][]float32{
		"a": {1, 0, 0, 0},
		"b": {0, 1, 0, 0},
	}
	store := testStore(t, 0.5, vectors)
	ctx := context.Background()

	require.NoError(t, store.Add(ctx, []Entry{
		{ID: "e1", Text: "a", DocumentID: "PMC1"},
		{ID: "e2", Text: "b", DocumentID: "PMC2"},
	}))

	n, err := store.Count()
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
