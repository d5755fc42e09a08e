package plant

import "context"

// Request is a single multimodal model call.
type Request struct {
	Prompt   string
	Image    []byte
	MIMEType string
}

// Model sends one request to a multimodal model and returns its text reply.
// Implementations must not retry.
type Model interface {
	// Name identifies the model, e.g. "gemini-1.5-flash".
	Name() string

	// Generate performs exactly one model call.
	Generate(ctx context.Context, req Request) (string, error)
}
