package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/josinaldojr/askdocs-rag/internal/extract"
	"github.com/josinaldojr/askdocs-rag/internal/rag"
)

type Options struct {
	MaxUploadBytes int64
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
}

type Handler struct {
	ragService *rag.Service
	opts       Options
	log        *zap.Logger
}

func NewHandler(ragService *rag.Service, opts Options, log *zap.Logger) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.UploadTimeout <= 0 {
		opts.UploadTimeout = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{ragService: ragService, opts: opts, log: log}
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type questionRequest struct {
	Question string `json:"question"`
	K        int    `json:"k,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid json body"})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "prompt is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	answer, err := h.ragService.Chat(ctx, req.Prompt)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: answer})
}

// Upload takes a multipart form with the document in field "file". An
// optional "name" field overrides the uploaded file name.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, messageResponse{Message: "file too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "multipart field 'file' is required"})
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = filepath.Base(header.Filename)
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "could not read file"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.UploadTimeout)
	defer cancel()

	res, err := h.ragService.UploadAndIndex(ctx, name, data)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid json body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	res, err := h.ragService.Retrieve(ctx, name, req.Question, req.K)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Found {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: rag.NotFoundMessage})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) Ask(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: "invalid json body"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.RequestTimeout)
	defer cancel()

	res, err := h.ragService.Ask(ctx, name, req.Question, req.K)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !res.Found {
		writeJSON(w, http.StatusNotFound, messageResponse{Message: rag.NotFoundMessage})
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// fail maps core errors to a status. Anything unexpected becomes a generic
// 500; the details stay in the log.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rag.ErrInvalidName),
		errors.Is(err, rag.ErrEmptyQuestion),
		errors.Is(err, rag.ErrNoText),
		errors.Is(err, extract.ErrUnsupported):
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		h.log.Warn("request timed out", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusGatewayTimeout, messageResponse{Message: "request timed out"})
	default:
		h.log.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
