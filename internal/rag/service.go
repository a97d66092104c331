package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultTopK = 3

// Deps are the collaborators of a Service, built once at startup.
type Deps struct {
	Files     FileStore
	Extractor Extractor
	Chunker   Chunker
	Embedder  Embedder
	Index     IndexStore
	Generator *Generator
}

type Service struct {
	files     FileStore
	extractor Extractor
	chunker   Chunker
	embedder  Embedder
	index     IndexStore
	generator *Generator
	topK      int
	log       *zap.Logger
}

func NewService(d Deps, topK int, log *zap.Logger) *Service {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		files:     d.Files,
		extractor: d.Extractor,
		chunker:   d.Chunker,
		embedder:  d.Embedder,
		index:     d.Index,
		generator: d.Generator,
		topK:      topK,
		log:       log,
	}
}

// UploadAndIndex stores the raw file, extracts and chunks its pages, embeds
// the chunks and replaces the document's index. The index is touched only
// after every earlier step succeeded.
func (s *Service) UploadAndIndex(ctx context.Context, fileName string, data []byte) (*UploadResult, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.upload_and_index")
	defer span.End()
	span.SetAttributes(attribute.String("rag.file", fileName), attribute.Int("rag.bytes", len(data)))

	started := time.Now()
	fail := func(op string, err error) (*UploadResult, error) {
		return nil, s.processingError(span, fileName, op, err)
	}

	if err := ValidateName(fileName); err != nil {
		return fail("validate", err)
	}

	path, err := s.files.Save(ctx, fileName, data)
	if err != nil {
		return fail("save", err)
	}

	pages, err := s.extractor.Pages(path)
	if err != nil {
		return fail("extract", err)
	}

	chunks := s.chunkPages(pages)
	if len(chunks) == 0 {
		return fail("chunk", ErrNoText)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return fail("embed", err)
	}
	if len(vectors) != len(chunks) {
		return fail("embed", fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	if err := s.index.Build(ctx, fileName, chunks, vectors); err != nil {
		return fail("index", err)
	}

	span.SetAttributes(attribute.Int("rag.pages", len(pages)), attribute.Int("rag.chunks", len(chunks)))
	s.log.Info("document indexed",
		zap.String("file", fileName),
		zap.Int("pages", len(pages)),
		zap.Int("chunks", len(chunks)),
		zap.Duration("took", time.Since(started)),
	)

	return &UploadResult{
		FileName: fileName,
		Message:  UploadedMessage,
		Pages:    len(pages),
		Chunks:   len(chunks),
	}, nil
}

// Retrieve returns the k chunks closest to query. A document without an
// index gives Found=false and a nil error. k <= 0 uses the service default.
func (s *Service) Retrieve(ctx context.Context, fileName, query string, k int) (*Retrieval, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "rag.retrieve")
	defer span.End()

	if k <= 0 {
		k = s.topK
	}
	span.SetAttributes(attribute.String("rag.file", fileName), attribute.Int("rag.k", k))

	if err := ValidateName(fileName); err != nil {
		return nil, s.processingError(span, fileName, "validate", err)
	}
	q := strings.TrimSpace(query)
	if q == "" {
		return nil, s.processingError(span, fileName, "validate", ErrEmptyQuestion)
	}

	vectors, err := s.embedder.Embed(ctx, []string{q})
	if err != nil {
		return nil, s.processingError(span, fileName, "embed", err)
	}
	if len(vectors) != 1 {
		return nil, s.processingError(span, fileName, "embed", fmt.Errorf("got %d vectors for 1 query", len(vectors)))
	}

	hits, err := s.index.Query(ctx, fileName, vectors[0], k)
	if errors.Is(err, ErrNotFound) {
		s.log.Info("query on unindexed document", zap.String("file", fileName))
		span.SetAttributes(attribute.Bool("rag.found", false))
		return &Retrieval{File: fileName, Found: false, Chunks: []ScoredChunk{}}, nil
	}
	if err != nil {
		return nil, s.processingError(span, fileName, "query", err)
	}

	span.SetAttributes(attribute.Bool("rag.found", true), attribute.Int("rag.hits", len(hits)))
	return &Retrieval{File: fileName, Found: true, Chunks: hits}, nil
}

// Ask retrieves context from fileName and answers question from it.
func (s *Service) Ask(ctx context.Context, fileName, question string, k int) (*Answer, error) {
	r, err := s.Retrieve(ctx, fileName, question, k)
	if err != nil {
		return nil, err
	}
	if !r.Found {
		return &Answer{File: fileName, Text: NotFoundMessage, Found: false, Sources: []ScoredChunk{}}, nil
	}

	text, err := s.generator.Answer(ctx, question, JoinContext(r.Texts()))
	if err != nil {
		return nil, err
	}

	return &Answer{File: fileName, Text: text, Found: true, Sources: r.Chunks}, nil
}

// Chat answers prompt without any document context.
func (s *Service) Chat(ctx context.Context, prompt string) (string, error) {
	return s.generator.Answer(ctx, prompt, "")
}

// chunkPages splits each page on its own so every chunk keeps its page.
func (s *Service) chunkPages(pages []string) []Chunk {
	var out []Chunk
	for i, p := range pages {
		for _, text := range s.chunker.Split(p) {
			out = append(out, Chunk{Text: text, Page: i + 1, Index: len(out)})
		}
	}
	return out
}

func (s *Service) processingError(span trace.Span, fileName, op string, err error) error {
	perr := &ProcessingError{File: fileName, Op: op, Err: err}
	s.log.Error("document processing failed",
		zap.String("op", op),
		zap.String("file", fileName),
		zap.Error(err),
	)
	span.RecordError(perr)
	span.SetStatus(codes.Error, op)
	return perr
}
