// Package retrieve implements the Retriever (C6): given a document id and
// a query, it loads the index snapshot, embeds the query, and returns the
// top-k child nodes by cosine similarity.
package retrieve

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/brimlabs/docreason/index"
)

// MinTopK and MaxTopK bound the top_k input per §4.6.
const (
	MinTopK = 1
	MaxTopK = 40
)

// SnapshotLoader loads a document's current snapshot, e.g. store.Store.
type SnapshotLoader interface {
	Get(ctx context.Context, docID string) (*index.Snapshot, error)
}

// Embedder embeds text via the external embedding service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Result is one retrieved child node with its similarity score.
type Result struct {
	ChunkID     string
	ParentID    string
	Text        string
	PageLabel   string
	ParentIndex int
	ChunkIndex  int
	Score       float64
}

// Retriever loads snapshots (cached in-process, eventually consistent
// with the store per §5) and scores child embeddings against a query.
type Retriever struct {
	loader   SnapshotLoader
	embedder Embedder

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]*index.Snapshot
}

// New returns a Retriever. loader and embedder must be non-nil.
func New(loader SnapshotLoader, embedder Embedder) *Retriever {
	return &Retriever{
		loader:   loader,
		embedder: embedder,
		cache:    make(map[string]*index.Snapshot),
	}
}

// Invalidate drops any cached snapshot for docID. Callers that mutate the
// store (upload, delete) should call this; correctness does not depend
// on it — readers tolerate stale entries per §5 — but it keeps the
// common case fresh.
func (r *Retriever) Invalidate(docID string) {
	r.mu.Lock()
	delete(r.cache, docID)
	r.mu.Unlock()
}

// ValidationError reports an out-of-bounds or otherwise invalid request.
// The root package wraps it as docreason.ErrValidation.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

// NotFoundError reports that docID has no snapshot. The root package
// wraps it as docreason.ErrNotFound.
type NotFoundError struct{ msg string }

func (e *NotFoundError) Error() string { return e.msg }

// snapshot returns the cached snapshot for docID, loading it from the
// store on a miss. Concurrent misses for the same docID collapse into a
// single store load via singleflight.
func (r *Retriever) snapshot(ctx context.Context, docID string) (*index.Snapshot, error) {
	r.mu.RLock()
	if snap, ok := r.cache[docID]; ok {
		r.mu.RUnlock()
		return snap, nil
	}
	r.mu.RUnlock()

	v, err, _ := r.group.Do(docID, func() (any, error) {
		snap, err := r.loader.Get(ctx, docID)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.cache[docID] = snap
		r.mu.Unlock()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*index.Snapshot), nil
}

// Retrieve returns the top-k child nodes for query against docID's
// index, sorted by score descending with ties broken by ascending
// (parent_index, chunk_index).
func (r *Retriever) Retrieve(ctx context.Context, docID, query string, topK int) ([]Result, error) {
	if query == "" {
		return nil, &ValidationError{msg: "retrieve: query must not be empty"}
	}
	if topK < MinTopK || topK > MaxTopK {
		return nil, &ValidationError{msg: fmt.Sprintf("retrieve: top_k must be in [%d, %d], got %d", MinTopK, MaxTopK, topK)}
	}

	snap, err := r.snapshot(ctx, docID)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return nil, &NotFoundError{msg: fmt.Sprintf("retrieve: document %q not found", docID)}
	}

	vecs, err := r.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embedding query: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("retrieve: embedding service returned no vector for the query")
	}
	queryVec := vecs[0]

	type scored struct {
		node  *index.Node
		score float64
	}
	var candidates []scored
	for i := range snap.Nodes {
		n := &snap.Nodes[i]
		if n.Kind != index.KindChild || len(n.Embedding) == 0 {
			continue
		}
		candidates = append(candidates, scored{node: n, score: cosineSimilarity(queryVec, n.Embedding)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		pi, pj := parentIndexOf(candidates[i].node), parentIndexOf(candidates[j].node)
		if pi != pj {
			return pi < pj
		}
		return candidates[i].node.Metadata.ChunkIndex < candidates[j].node.Metadata.ChunkIndex
	})

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}

	results := make([]Result, len(candidates))
	for i, c := range candidates {
		results[i] = Result{
			ChunkID:     c.node.ID,
			ParentID:    c.node.ParentID,
			Text:        c.node.Text,
			PageLabel:   c.node.Metadata.PageLabel,
			ParentIndex: parentIndexOf(c.node),
			ChunkIndex:  c.node.Metadata.ChunkIndex,
			Score:       c.score,
		}
	}
	return results, nil
}

func parentIndexOf(n *index.Node) int {
	if n.Metadata.ParentIndex == nil {
		return -1
	}
	return *n.Metadata.ParentIndex
}

// cosineSimilarity computes the cosine similarity of two equal-length
// vectors. Mismatched lengths (which should not occur within one
// snapshot per the embedding-dimension invariant) score 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		magA += ai * ai
		magB += bi * bi
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
