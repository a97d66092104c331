package rag

// Chunk is a span of one page's text; the retrieval unit.
type Chunk struct {
	Text  string `json:"text"`
	Page  int    `json:"page"`  // 1-based
	Index int    `json:"index"` // position in the document
}

// ScoredChunk is a query hit. Distance is squared L2, lower is closer.
type ScoredChunk struct {
	Chunk
	Distance float32 `json:"distance"`
}

// Retrieval is the result of Service.Retrieve. Found is false when the
// document has never been indexed; Chunks is then empty.
type Retrieval struct {
	File   string        `json:"file"`
	Found  bool          `json:"found"`
	Chunks []ScoredChunk `json:"chunks"`
}

// Texts returns the chunk texts in rank order.
func (r *Retrieval) Texts() []string {
	out := make([]string, 0, len(r.Chunks))
	for _, c := range r.Chunks {
		out = append(out, c.Text)
	}
	return out
}

type UploadResult struct {
	FileName string `json:"filename"`
	Message  string `json:"message"`
	Pages    int    `json:"pages"`
	Chunks   int    `json:"chunks"`
}

type Answer struct {
	File    string        `json:"file,omitempty"`
	Text    string        `json:"answer"`
	Found   bool          `json:"found"`
	Sources []ScoredChunk `json:"sources"`
}

type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

type Message struct {
	Role Role
	Text string
}

// GenerationParams are passed unchanged to the chat provider.
type GenerationParams struct {
	Temperature      float32
	TopP             float32
	FrequencyPenalty float32
	PresencePenalty  float32
	MaxTokens        int
}

const (
	UploadedMessage = "File uploaded and processed (replaced if existed)."
	NotFoundMessage = "file not found"
)
