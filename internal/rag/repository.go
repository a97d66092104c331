package rag

import "context"

// IndexStore keeps one vector index per document name.
//
// Build replaces any previous index for name in a single step; a concurrent
// Query sees either the old index or the new one. Query returns an error
// matching ErrNotFound when name has no index.
type IndexStore interface {
	Build(ctx context.Context, name string, chunks []Chunk, vectors [][]float32) error
	Query(ctx context.Context, name string, vector []float32, k int) ([]ScoredChunk, error)
}

// FileStore persists raw uploads and returns the stored path.
type FileStore interface {
	Save(ctx context.Context, name string, data []byte) (string, error)
}

// Extractor returns the text of each page of the file at path.
type Extractor interface {
	Pages(path string) ([]string, error)
}

type Chunker interface {
	Split(text string) []string
}
