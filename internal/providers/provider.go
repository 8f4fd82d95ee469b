// Package providers wraps the language-model SDKs behind one call surface.
//
// Every provider implements Provider (chat with optional tool calling). The
// auxiliary capabilities (moderation, transcription, speech, vision and
// embeddings) are separate interfaces a provider may also satisfy.
package providers

import (
	"context"
	"encoding/json"
	"errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrNoMessages = errors.New("chat request has no messages")

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolSpec declares a function the model may call.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  *ParamSchema
}

type ChatRequest struct {
	Model    string
	System   string
	Messages []Message
	Tools    []ToolSpec
}

type ToolCall struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

type ChatResponse struct {
	Text      string
	ToolCalls []ToolCall
	Usage     *Usage
	Model     string
}

type Provider interface {
	Name() string
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)
}

type Moderator interface {
	// Moderate reports whether text is flagged.
	Moderate(ctx context.Context, text string) (bool, error)
}

type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, text, voice string) ([]byte, error)
}

type VisionAnalyzer interface {
	AnalyzeImage(ctx context.Context, image []byte, prompt string) (string, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
