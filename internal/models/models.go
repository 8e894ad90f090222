package models

// ChatRequest is the canonical prompt submission fanned out to providers.
type ChatRequest struct {
	Prompt       string   `json:"prompt"`
	Models       []string `json:"models"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// ModelResponse is one provider's settled result, success or failure.
// Exactly one of Output or Error is authoritative for display.
type ModelResponse struct {
	Model        string         `json:"model"`
	Output       string         `json:"output"`
	LatencyMS    int64          `json:"latency_ms"`
	FinishReason string         `json:"finish_reason,omitempty"`
	Usage        map[string]any `json:"usage,omitempty"`
	Error        string         `json:"error"`
}

// ChatResponse is the aggregated envelope, one entry per requested model in
// request order.
type ChatResponse struct {
	Responses []ModelResponse `json:"responses"`
}

// ChatMessage is a single turn within a session. Assistant turns carry the
// per-provider results of the fan-out that produced them.
type ChatMessage struct {
	Role           string          `json:"role"`
	Content        string          `json:"content"`
	Timestamp      string          `json:"timestamp"`
	ModelResponses []ModelResponse `json:"model_responses,omitempty"`
}

// ChatSession is a persisted conversation thread.
type ChatSession struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// CreateSessionRequest names a new session.
type CreateSessionRequest struct {
	Title string `json:"title"`
}

// UpdateSessionRequest renames an existing session.
type UpdateSessionRequest struct {
	Title string `json:"title"`
}

// ListSessionsResponse wraps the session listing.
type ListSessionsResponse struct {
	Sessions []ChatSession `json:"sessions"`
}

// GetSessionResponse wraps a single session fetch.
type GetSessionResponse struct {
	Session ChatSession `json:"session"`
}

// AddMessageRequest is a ChatRequest addressed to an existing session; the
// session id travels in the URL path.
type AddMessageRequest struct {
	Prompt       string   `json:"prompt"`
	Models       []string `json:"models"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
}

// ChatRequest converts a session-scoped submission into the canonical shape.
func (r AddMessageRequest) ChatRequest() ChatRequest {
	return ChatRequest{
		Prompt:       r.Prompt,
		Models:       r.Models,
		SystemPrompt: r.SystemPrompt,
		Temperature:  r.Temperature,
		MaxTokens:    r.MaxTokens,
	}
}
