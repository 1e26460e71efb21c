package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/chzyer/readline"

	"github.com/lokality-ai/lokality/internal/config"
	"github.com/lokality-ai/lokality/internal/service/assistant"
	"github.com/lokality-ai/lokality/internal/service/planner"
	"github.com/lokality-ai/lokality/internal/service/stats"
	"github.com/lokality-ai/lokality/pkg/log"
)

type ReadLine struct {
	cfg   *config.AppConfig
	chat  *assistant.Assistant
	stats *stats.Collector
	rl    *readline.Instance
	// quit stops the surrounding service group when the user types exit.
	quit func()
	// verbose prints the per-turn prompt analysis, toggled with /debug.
	verbose bool
}

func NewReadLine(chat *assistant.Assistant, collector *stats.Collector, cfg *config.AppConfig, quit func()) (*ReadLine, error) {
	if err := os.MkdirAll(cfg.RuntimePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create runtime directory: %w", err)
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          ">>> ",
		HistoryFile:     cfg.GetInputHistoryPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, err
	}

	return &ReadLine{
		cfg:   cfg,
		chat:  chat,
		stats: collector,
		rl:    rl,
		quit:  quit,
	}, nil
}

func (r *ReadLine) Start(ctx context.Context) error {
	logger := log.FromCtx(ctx)
	logger.Info().Msg("chat started, type /help for commands or 'exit' to quit")

	defer r.quit()
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		line, err := r.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				if len(line) == 0 {
					return nil
				}
				continue
			} else if err == io.EOF {
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if done := r.dispatch(ctx, line); done {
			return nil
		}
	}
}

// dispatch handles one input line. Returns true when the loop should end.
func (r *ReadLine) dispatch(ctx context.Context, line string) bool {
	switch strings.ToLower(strings.Fields(line)[0]) {
	case "exit", "quit", "/exit":
		return true
	case "/help":
		r.printHelp()
	case "/forget":
		r.cmdForget(ctx)
	case "/clear":
		r.chat.ResetConversation()
		fmt.Fprintln(r.rl.Stdout(), "Conversation history cleared.")
	case "/info":
		r.cmdInfo(ctx)
	case "/debug":
		r.verbose = !r.verbose
		fmt.Fprintf(r.rl.Stdout(), "Verbose analysis: %v\n", r.verbose)
	default:
		r.runTurn(ctx, line)
	}
	return false
}

func (r *ReadLine) runTurn(ctx context.Context, input string) {
	if r.verbose {
		a := planner.Analyze(input)
		fmt.Fprintf(r.rl.Stdout(), "[analysis] complexity=%.2f creativity=%.2f level=%s\n",
			a.Score, a.Creativity, a.Level)
	}

	_, err := r.chat.Converse(ctx, input, func(token string) error {
		fmt.Fprint(r.rl.Stdout(), token)
		return nil
	})
	fmt.Fprintln(r.rl.Stdout())
	if err != nil {
		log.FromCtx(ctx).Error().Err(err).Msg("chat turn failed")
		fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
	}
}

func (r *ReadLine) cmdForget(ctx context.Context) {
	if err := r.chat.ClearMemory(ctx); err != nil {
		fmt.Fprintf(r.rl.Stdout(), "Error: %v\n", err)
		return
	}
	fmt.Fprintln(r.rl.Stdout(), "Long-term memory cleared.")
}

func (r *ReadLine) cmdInfo(ctx context.Context) {
	snap := r.stats.Collect(ctx, r.chat.SystemPrompt(), r.chat.History())

	out := r.rl.Stdout()
	fmt.Fprintf(out, "Model:          %s\n", snap.Model)
	fmt.Fprintf(out, "Memory entries: %d\n", snap.MemoryEntries)
	fmt.Fprintf(out, "Context usage:  %.1f%%\n", snap.ContextPct)
	if snap.VRAMMB > 0 || snap.RAMMB > 0 {
		fmt.Fprintf(out, "VRAM usage:     %d MB\n", snap.VRAMMB)
		fmt.Fprintf(out, "RAM usage:      %d MB\n", snap.RAMMB)
	} else {
		fmt.Fprintln(out, "VRAM usage:     - (model not loaded)")
	}
}

func (r *ReadLine) printHelp() {
	fmt.Fprint(r.rl.Stdout(), `Commands:
  /forget   wipe long-term memory
  /clear    reset the current conversation
  /info     show model and resource stats
  /debug    toggle per-turn analysis output
  /help     show this help
  exit      quit
`)
}

func (r *ReadLine) Shutdown(ctx context.Context) error {
	if r.rl != nil {
		return r.rl.Close()
	}
	return nil
}
