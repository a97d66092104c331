package index

import (
	"bufio"
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

const (
	indexFileName = "index.gob"
	formatVersion = 1
)

// fileIndex is the on-disk payload. It carries its own model and dimension
// so a file can be loaded and checked without outside metadata.
type fileIndex struct {
	Version   int
	Document  string
	Model     string
	Dimension int
	Chunks    []rag.Chunk
	Vectors   [][]float32
	CreatedAt time.Time
}

// FileStore keeps one index per document at <dir>/<name>/index.gob.
// Builds write a temp file in the same directory and rename it over the
// previous index, so readers see either the old or the new file.
type FileStore struct {
	dir   string
	model string
	log   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(dir, model string, log *zap.Logger) *FileStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &FileStore{dir: dir, model: model, log: log, locks: map[string]*sync.Mutex{}}
}

func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, name, indexFileName)
}

// writer returns the build lock for name; builds of one document are
// serialized, builds of different documents are not.
func (s *FileStore) writer(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

func (s *FileStore) Build(ctx context.Context, name string, chunks []rag.Chunk, vectors [][]float32) error {
	dim, err := checkBuild(name, chunks, vectors)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l := s.writer(name)
	l.Lock()
	defer l.Unlock()

	docDir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(docDir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	idx := fileIndex{
		Version:   formatVersion,
		Document:  name,
		Model:     s.model,
		Dimension: dim,
		Chunks:    chunks,
		Vectors:   vectors,
		CreatedAt: time.Now().UTC(),
	}

	tmp := filepath.Join(docDir, indexFileName+"."+uuid.NewString()+".tmp")
	if err := writeIndex(tmp, &idx); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path(name)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace index: %w", err)
	}

	s.log.Debug("index written",
		zap.String("file", name),
		zap.Int("chunks", len(chunks)),
		zap.Int("dimension", dim),
	)
	return nil
}

func writeIndex(path string, idx *fileIndex) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create temp index: %w", err)
	}

	w := bufio.NewWriter(f)
	if err := gob.NewEncoder(w).Encode(idx); err != nil {
		f.Close()
		return fmt.Errorf("encode index: %w", err)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush index: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync index: %w", err)
	}
	return f.Close()
}

func (s *FileStore) Query(ctx context.Context, name string, vector []float32, k int) ([]rag.ScoredChunk, error) {
	if err := rag.ValidateName(name); err != nil {
		return nil, err
	}
	idx, err := s.load(name)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(vector) != idx.Dimension {
		return nil, fmt.Errorf("query vector has %d dims, index %q has %d", len(vector), name, idx.Dimension)
	}
	if k <= 0 {
		return []rag.ScoredChunk{}, nil
	}
	return topK(idx.Chunks, idx.Vectors, vector, k), nil
}

func (s *FileStore) load(name string) (*fileIndex, error) {
	f, err := os.Open(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &rag.NotFoundError{File: name}
	}
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}
	defer f.Close()

	var idx fileIndex
	if err := gob.NewDecoder(bufio.NewReader(f)).Decode(&idx); err != nil {
		return nil, fmt.Errorf("decode index %q: %w", name, err)
	}
	if idx.Version != formatVersion {
		return nil, fmt.Errorf("index %q has format version %d, expected %d", name, idx.Version, formatVersion)
	}
	if len(idx.Chunks) != len(idx.Vectors) {
		return nil, fmt.Errorf("index %q is inconsistent: %d chunks, %d vectors", name, len(idx.Chunks), len(idx.Vectors))
	}
	return &idx, nil
}

var _ rag.IndexStore = (*FileStore)(nil)
