package config

import (
	"context"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"

	"github.com/lokality-ai/lokality/pkg/log"
)

type AppConfig struct {
	RuntimePath string `env:"LOKALITY_RUNTIME_PATH" envDefault:".lokality"`
	Model       string `env:"LOKALITY_MODEL" envDefault:"gemma3:4b-it-qat"`
	OllamaHost  string `env:"OLLAMA_HOST" envDefault:"http://localhost:11434"`

	// ContextWindow is the default requested context size; every call still
	// passes it through the planner's VRAM clamp.
	ContextWindow int `env:"LOKALITY_CONTEXT_WINDOW" envDefault:"2048"`
}

// DefaultRuntimePath resolves the runtime directory before the full config
// is parsed, for loading the .env file that may feed that parse.
func DefaultRuntimePath() string {
	path := os.Getenv("LOKALITY_RUNTIME_PATH")
	if path == "" {
		path = ".lokality"
	}
	if !filepath.IsAbs(path) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path)
		}
	}
	return path
}

func NewAppConfig(ctx context.Context) *AppConfig {
	c := &AppConfig{}
	if err := env.Parse(c); err != nil {
		log.FromCtx(ctx).Fatal().Err(err).Msg("failed to parse app config")
	}
	if !filepath.IsAbs(c.RuntimePath) {
		home, err := os.UserHomeDir()
		if err == nil {
			c.RuntimePath = filepath.Join(home, c.RuntimePath)
		}
	}
	return c
}

func (c AppConfig) GetDatabasePath() string {
	return filepath.Join(c.RuntimePath, "memory.db")
}

func (c AppConfig) GetInputHistoryPath() string {
	return filepath.Join(c.RuntimePath, "input_history")
}
