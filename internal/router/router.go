package router

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/kalambet/bolla/internal/llm"
)

// Outcome is a successful routing: the backend's result plus how it was
// reached.
type Outcome struct {
	llm.Result
	Tier Tier
	// FallbackUsed is true when an earlier configured backend failed first.
	FallbackUsed bool
	// Attempted lists the configured backends tried, in order.
	Attempted []llm.BackendID
	// Errors holds one "backend: message" entry per skipped or failed backend.
	Errors []string
}

// ExhaustedError is returned when no backend in the chain succeeded.
type ExhaustedError struct {
	Tier   Tier
	Errors []string
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all backends failed for complexity %q: %s", e.Tier, strings.Join(e.Errors, " | "))
}

// Router dispatches requests along per-tier fallback chains.
type Router struct {
	clients    map[llm.BackendID]llm.TextGenerator
	chains     Chains
	classifier *Classifier
}

// Config assembles a Router. Clients absent from the map are reported as
// "not configured" when their turn in a chain comes.
type Config struct {
	Clients []llm.TextGenerator
	Chains  Chains
	// ForceLocal replaces every chain with LocalOnly(LocalBackend).
	ForceLocal   bool
	LocalBackend llm.BackendID
	// Classifier serves Classify. Nil classifies everything as
	// DefaultTier.
	Classifier  *Classifier
	DefaultTier Tier
}

// New builds a Router. A nil Chains means DefaultChains.
func New(cfg Config) *Router {
	clients := make(map[llm.BackendID]llm.TextGenerator, len(cfg.Clients))
	for _, c := range cfg.Clients {
		if c != nil {
			clients[c.ID()] = c
		}
	}
	chains := cfg.Chains
	if chains == nil {
		chains = DefaultChains()
	}
	if cfg.ForceLocal {
		local := cfg.LocalBackend
		if local == "" {
			local = llm.Ollama
		}
		chains = LocalOnly(local)
	}
	classifier := cfg.Classifier
	if classifier == nil {
		classifier = NewClassifier(nil, cfg.DefaultTier)
	}
	return &Router{clients: clients, chains: chains, classifier: classifier}
}

// Configured lists the backends with a registered client, in default
// chain priority order.
func (r *Router) Configured() []llm.BackendID {
	var out []llm.BackendID
	for _, id := range []llm.BackendID{llm.Ollama, llm.Anthropic, llm.Grok} {
		if _, ok := r.clients[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Chain returns the backends tried for tier.
func (r *Router) Chain(tier Tier) []llm.BackendID {
	return append([]llm.BackendID(nil), r.chains[tier]...)
}

// Client returns the registered client for id.
func (r *Router) Client(id llm.BackendID) (llm.TextGenerator, bool) {
	c, ok := r.clients[id]
	return c, ok
}

// Classify runs the backend classifier on text that is not a user message.
func (r *Router) Classify(ctx context.Context, prompt string) Tier {
	return r.classifier.ClassifyPrompt(ctx, prompt)
}

// Route tries the chain for tier in order and returns the first success.
// An empty tier is derived from the prompt with ClassifyMessage.
func (r *Router) Route(ctx context.Context, req llm.Request, tier Tier) (Outcome, error) {
	if tier == "" {
		tier = ClassifyMessage(req.Prompt)
	}
	chain, ok := r.chains[tier]
	if !ok {
		return Outcome{}, fmt.Errorf("no chain for tier %q", tier)
	}

	var attempted []llm.BackendID
	var errs []string
	for _, id := range chain {
		client, ok := r.clients[id]
		if !ok {
			errs = append(errs, fmt.Sprintf("%s: not configured", id))
			continue
		}
		if len(attempted) > 0 {
			slog.Warn("falling back", "backend", id, "tier", tier)
		}
		attempted = append(attempted, id)

		res, err := client.Generate(ctx, req)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %s", id, errorMessage(err)))
			slog.Warn("backend failed", "backend", id, "tier", tier, "error", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		out := Outcome{
			Result:       res,
			Tier:         tier,
			FallbackUsed: len(attempted) > 1,
			Attempted:    attempted,
			Errors:       errs,
		}
		slog.Info("routed",
			"backend", res.Backend,
			"tier", tier,
			"latency_ms", res.Latency.Milliseconds(),
			"fallback_used", out.FallbackUsed)
		return out, nil
	}

	return Outcome{}, &ExhaustedError{Tier: tier, Errors: errs}
}

// errorMessage strips the backend prefix RoutingError already carries so
// the aggregate reads "grok: unexpected status 503" rather than
// "grok: grok: ...".
func errorMessage(err error) string {
	var re *llm.RoutingError
	if errors.As(err, &re) {
		msg := re.Message
		if re.StatusCode != 0 {
			msg = fmt.Sprintf("%s (HTTP %d)", msg, re.StatusCode)
		}
		return msg
	}
	return err.Error()
}
