// Package index holds the per-document vector index backends: a gob file
// per document, Postgres with pgvector, and Qdrant collections behind aliases.
// All of them rank by squared Euclidean distance.
package index

import (
	"fmt"
	"sort"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

// topK is an exact flat search. Ties keep document order.
func topK(chunks []rag.Chunk, vectors [][]float32, query []float32, k int) []rag.ScoredChunk {
	scored := make([]rag.ScoredChunk, len(chunks))
	for i, c := range chunks {
		scored[i] = rag.ScoredChunk{Chunk: c, Distance: squaredL2(vectors[i], query)}
	}
	sortHits(scored)
	if k < len(scored) {
		scored = scored[:k]
	}
	return scored
}

func sortHits(hits []rag.ScoredChunk) {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].Index < hits[j].Index
	})
}

// checkBuild validates the chunk/vector pairs and returns the dimension.
func checkBuild(name string, chunks []rag.Chunk, vectors [][]float32) (int, error) {
	if err := rag.ValidateName(name); err != nil {
		return 0, err
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no chunks to index for %q", name)
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("%d chunks but %d vectors", len(chunks), len(vectors))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("empty embedding vector")
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("vector %d has %d dims, expected %d", i, len(v), dim)
		}
	}
	return dim, nil
}
