package core

import "context"

// GenOptions carries sampling parameters for a single generation call.
// NumCtx must always be a safe value produced by the resource planner.
type GenOptions struct {
	NumPredict      int
	NumCtx          int
	Temperature     float64
	TopP            float64
	MinP            float64
	TopK            int
	RepeatPenalty   float64
	PresencePenalty float64
	JSONFormat      bool
}

type GenerationProvider interface {
	Generate(ctx context.Context, prompt string, opts GenOptions) (string, error)
	Chat(ctx context.Context, messages []Message, opts GenOptions) (string, error)
	ChatStream(ctx context.Context, messages []Message, opts GenOptions, fn func(token string) error) error
}

// ModelResidency reports how much memory a loaded model currently occupies.
type ModelResidency struct {
	SizeMB int64
	VRAMMB int64
}

// ModelIntrospector exposes the narrow slice of the inference backend the
// planner needs to size context windows safely.
type ModelIntrospector interface {
	MaxContext(ctx context.Context, model string) (int, error)
	ResidentModel(ctx context.Context, model string) (ModelResidency, error)
}

// SearchTransport is the opaque web surface. Both calls return text, never
// raise past the pipeline: failures come back as formatted marker strings so
// the downstream response can disclose degraded capability honestly.
type SearchTransport interface {
	Search(ctx context.Context, query string) string
	Scrape(ctx context.Context, url string) string
}
