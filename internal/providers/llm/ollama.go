package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/lokality-ai/lokality/internal/core"
	"github.com/lokality-ai/lokality/pkg/log"
)

const defaultMaxContext = 8192

// modelTier maps minimum VRAM to the default model worth pulling on that
// hardware. Ordered smallest first; the last tier the host satisfies wins.
type modelTier struct {
	Name      string
	MinVRAMMB int64
}

var defaultModelTiers = []modelTier{
	{Name: "gemma3:1b-it-qat", MinVRAMMB: 2048},
	{Name: "gemma3:4b-it-qat", MinVRAMMB: 4096},
	{Name: "gemma3:12b-it-qat", MinVRAMMB: 9216},
}

// Ollama is the generation provider and model introspector. Model identity
// is carried here as plain data, not process-global state, so parallel
// instances (tests included) never interfere.
type Ollama struct {
	client *api.Client
	model  string
}

func NewOllama(host, model string) (*Ollama, error) {
	uri, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}
	return &Ollama{
		client: api.NewClient(uri, http.DefaultClient),
		model:  model,
	}, nil
}

func (o *Ollama) Model() string {
	return o.model
}

func optionsMap(opts core.GenOptions) map[string]any {
	m := map[string]any{
		"temperature": opts.Temperature,
	}
	if opts.NumPredict > 0 {
		m["num_predict"] = opts.NumPredict
	}
	if opts.NumCtx > 0 {
		m["num_ctx"] = opts.NumCtx
	}
	if opts.TopP > 0 {
		m["top_p"] = opts.TopP
	}
	if opts.MinP > 0 {
		m["min_p"] = opts.MinP
	}
	if opts.TopK > 0 {
		m["top_k"] = opts.TopK
	}
	if opts.RepeatPenalty > 0 {
		m["repeat_penalty"] = opts.RepeatPenalty
	}
	if opts.PresencePenalty > 0 {
		m["presence_penalty"] = opts.PresencePenalty
	}
	return m
}

func format(opts core.GenOptions) json.RawMessage {
	if opts.JSONFormat {
		return json.RawMessage(`"json"`)
	}
	return nil
}

func (o *Ollama) Generate(ctx context.Context, prompt string, opts core.GenOptions) (string, error) {
	req := &api.GenerateRequest{
		Model:   o.model,
		Prompt:  prompt,
		Stream:  new(bool),
		Format:  format(opts),
		Options: optionsMap(opts),
	}

	var sb strings.Builder
	err := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		sb.WriteString(resp.Response)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama generate: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func apiMessages(messages []core.Message) []api.Message {
	msgs := make([]api.Message, len(messages))
	for i, m := range messages {
		msgs[i] = api.Message{Role: m.Role, Content: m.Content}
	}
	return msgs
}

func (o *Ollama) Chat(ctx context.Context, messages []core.Message, opts core.GenOptions) (string, error) {
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: apiMessages(messages),
		Stream:   new(bool),
		Format:   format(opts),
		Options:  optionsMap(opts),
	}

	var sb strings.Builder
	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		sb.WriteString(resp.Message.Content)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama chat: %w", err)
	}
	return strings.TrimSpace(sb.String()), nil
}

func (o *Ollama) ChatStream(ctx context.Context, messages []core.Message, opts core.GenOptions, fn func(token string) error) error {
	stream := true
	req := &api.ChatRequest{
		Model:    o.model,
		Messages: apiMessages(messages),
		Stream:   &stream,
		Format:   format(opts),
		Options:  optionsMap(opts),
	}

	err := o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		if resp.Message.Content == "" {
			return nil
		}
		return fn(resp.Message.Content)
	})
	if err != nil {
		return fmt.Errorf("ollama chat stream: %w", err)
	}
	return nil
}

// MaxContext reads the model's native context length from its metadata. The
// key is architecture-prefixed (e.g. "gemma3.context_length"), so it is
// matched by suffix.
func (o *Ollama) MaxContext(ctx context.Context, model string) (int, error) {
	resp, err := o.client.Show(ctx, &api.ShowRequest{Model: model})
	if err != nil {
		return 0, fmt.Errorf("ollama show: %w", err)
	}
	for key, val := range resp.ModelInfo {
		if !strings.Contains(key, "context_length") {
			continue
		}
		switch v := val.(type) {
		case float64:
			return int(v), nil
		case int:
			return v, nil
		case int64:
			return int(v), nil
		}
	}
	return defaultMaxContext, nil
}

// ResidentModel reports how much memory the loaded model currently occupies.
func (o *Ollama) ResidentModel(ctx context.Context, model string) (core.ModelResidency, error) {
	resp, err := o.client.ListRunning(ctx)
	if err != nil {
		return core.ModelResidency{}, fmt.Errorf("ollama ps: %w", err)
	}
	base := strings.SplitN(model, ":", 2)[0]
	for _, m := range resp.Models {
		if strings.Contains(m.Model, base) || strings.Contains(model, strings.SplitN(m.Model, ":", 2)[0]) {
			return core.ModelResidency{
				SizeMB: m.Size / (1024 * 1024),
				VRAMMB: m.SizeVRAM / (1024 * 1024),
			}, nil
		}
	}
	return core.ModelResidency{}, nil
}

// Warmup loads the model with an empty request so the first real turn does
// not pay the cold-start cost.
func (o *Ollama) Warmup(ctx context.Context) {
	req := &api.GenerateRequest{
		Model:     o.model,
		Prompt:    "",
		Stream:    new(bool),
		KeepAlive: &api.Duration{Duration: 10 * time.Minute},
	}
	if err := o.client.Generate(ctx, req, func(api.GenerateResponse) error { return nil }); err != nil {
		log.FromCtx(ctx).Debug().Err(err).Msg("model warmup failed")
		return
	}
	log.FromCtx(ctx).Debug().Str("model", o.model).Msg("model is awake")
}

// EnsureModel pulls a default model sized to the host when none is installed
// yet. Returns the model that ended up active.
func (o *Ollama) EnsureModel(ctx context.Context, vramMB int64) (string, error) {
	logger := log.FromCtx(ctx)

	list, err := o.client.List(ctx)
	if err != nil {
		return "", fmt.Errorf("ollama list: %w", err)
	}
	if len(list.Models) > 0 {
		return o.model, nil
	}

	var selected string
	for _, tier := range defaultModelTiers {
		if vramMB >= tier.MinVRAMMB {
			selected = tier.Name
		}
	}
	if selected == "" {
		return "", fmt.Errorf("hardware below minimum requirements (%d MB VRAM)", vramMB)
	}

	logger.Info().Str("model", selected).Int64("vram_mb", vramMB).Msg("no models found, pulling default")

	lastPercent := int64(-1)
	err = o.client.Pull(ctx, &api.PullRequest{Model: selected}, func(p api.ProgressResponse) error {
		if p.Total <= 0 {
			return nil
		}
		percent := p.Completed * 100 / p.Total
		if percent/10 > lastPercent/10 {
			lastPercent = percent
			logger.Info().Str("status", p.Status).Int64("percent", percent).Msg("pulling model")
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("ollama pull: %w", err)
	}

	o.model = selected
	return selected, nil
}
