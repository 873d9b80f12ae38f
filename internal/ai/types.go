package ai

import "context"

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is a chat/completion backend. Chat drives the conversational
// reply path; Generate drives the structured-JSON calls (classification,
// intent detection, day generation).
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationRequest is a single-shot instruction+input call. When
// JSONOnly is set the provider asks the model for a JSON object response;
// the returned string is still raw model output and may fail to parse.
type GenerationRequest struct {
	Instructions string
	Input        string
	Temperature  float64
	MaxTokens    int
	JSONOnly     bool
}
