package rag

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidName   = errors.New("invalid document name")
	ErrEmptyQuestion = errors.New("question is required")
	ErrNoText        = errors.New("no text extracted")
)

// ProcessingError wraps any failure on the upload or retrieval path.
// Op names the step that failed (save, extract, chunk, embed, index, query).
type ProcessingError struct {
	File string
	Op   string
	Err  error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("process %s: %s: %v", e.File, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// NotFoundError is returned by index stores when a document has no index.
type NotFoundError struct {
	File string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no index for %q", e.File)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

type GenerationError struct {
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %v", e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }
