package ollama

import (
	"context"
	"fmt"
	"io"
	"time"
)

const warmupTimeout = 30 * time.Second

// EnsureReady makes model usable before the server starts taking requests:
// it pulls the model when missing and sends one tiny prompt so the first
// routed request does not pay the load time. Only an unreachable server or
// a failed pull is an error; status lines go to w.
func EnsureReady(ctx context.Context, c *Client, model string, w io.Writer) error {
	if !c.IsRunning(ctx) {
		return fmt.Errorf("Ollama is not running at %s (start it with `ollama serve`)", c.BaseURL())
	}

	if !c.HasModel(ctx, model) {
		fmt.Fprintf(w, "ollama: pulling %s\n", model)
		last := ""
		err := c.PullModel(ctx, model, func(p PullProgress) {
			line := p.Status
			if pct := p.Percent(); pct >= 0 {
				line = fmt.Sprintf("%s %3.0f%%", p.Status, pct)
			}
			if line != last {
				fmt.Fprintf(w, "  %s\n", line)
				last = line
			}
		})
		if err != nil {
			return err
		}
	}

	warmCtx, cancel := context.WithTimeout(ctx, warmupTimeout)
	defer cancel()
	if _, err := c.Generate(warmCtx, GenerateRequest{Model: model, Prompt: "oi"}); err != nil {
		fmt.Fprintf(w, "ollama: %s warm-up skipped: %v\n", model, err)
		return nil
	}
	fmt.Fprintf(w, "ollama: %s ready\n", model)
	return nil
}
