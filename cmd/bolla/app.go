package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/kalambet/bolla/internal/api"
	"github.com/kalambet/bolla/internal/besteffort"
	"github.com/kalambet/bolla/internal/config"
	"github.com/kalambet/bolla/internal/ingest"
	"github.com/kalambet/bolla/internal/llm"
	"github.com/kalambet/bolla/internal/maintenance"
	"github.com/kalambet/bolla/internal/memory"
	"github.com/kalambet/bolla/internal/ollama"
	"github.com/kalambet/bolla/internal/personality"
	"github.com/kalambet/bolla/internal/ratelimit"
	"github.com/kalambet/bolla/internal/rag"
	"github.com/kalambet/bolla/internal/retry"
	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
	"github.com/kalambet/bolla/internal/training"
)

// app is the fully wired engine shared by the HTTP server and the MCP
// stdio server.
type app struct {
	cfg          config.Config
	store        *storage.Store
	ollama       *ollama.Client
	router       *router.Router
	shortTerm    *memory.ShortTerm
	memories     *memory.Service
	personality  *personality.Manager
	collector    *training.Collector
	orchestrator *rag.Orchestrator
	worker       *ingest.Worker
	scheduler    *maintenance.Scheduler
	health       *maintenance.HealthMonitor
	background   *besteffort.Group
}

func newApp(ctx context.Context, cfg config.Config, store *storage.Store) (*app, error) {
	a := &app{
		cfg:        cfg,
		store:      store,
		ollama:     ollama.New(cfg.Ollama.URL),
		background: besteffort.New(slog.Default()),
	}

	clients, err := buildClients(cfg, a.ollama)
	if err != nil {
		return nil, err
	}
	chains, err := buildChains(cfg.Router)
	if err != nil {
		return nil, err
	}
	defaultTier, err := router.ParseTier(cfg.Router.DefaultTier)
	if err != nil {
		return nil, fmt.Errorf("router.default_tier: %w", err)
	}
	localID, err := parseBackend(cfg.Router.LocalBackend)
	if err != nil {
		return nil, fmt.Errorf("router.local_backend: %w", err)
	}

	var classifier *router.Classifier
	var local llm.TextGenerator
	for _, c := range clients {
		if c.ID() == localID {
			local = c
		}
	}
	if local != nil {
		classifier = router.NewClassifier(local, defaultTier)
	} else {
		slog.Warn("local backend not configured, prompt classification disabled", "backend", localID)
	}

	a.router = router.New(router.Config{
		Clients:      clients,
		Chains:       chains,
		ForceLocal:   cfg.Router.ForceLocal,
		LocalBackend: localID,
		Classifier:   classifier,
		DefaultTier:  defaultTier,
	})

	var extractor memory.FactExtractor
	if local != nil {
		extractor = memory.NewExtractor(local)
	}
	a.memories = memory.NewService(store, extractor)
	a.shortTerm = memory.NewShortTerm(cfg.Memory.ShortTermSize)

	a.personality = personality.NewManager(store)
	if err := a.personality.Seed(ctx); err != nil {
		return nil, fmt.Errorf("seeding personality: %w", err)
	}

	a.collector = training.NewCollector(store)

	opts := rag.Options{
		TopMemories: cfg.Memory.TopMemories,
		Personality: a.personality.SystemPrompt,
		Collector:   a.collector,
		Background:  a.background,
	}
	if cfg.Memory.AutoRemember {
		opts.AutoRemember = store
	}
	a.orchestrator = rag.New(a.memories, a.router, a.shortTerm, opts)

	a.worker = ingest.NewWorker(store, a.memories, 500*time.Millisecond)

	m := cfg.Maintenance
	a.scheduler, err = maintenance.New(maintenance.Config{
		CleanupEnabled:   m.CleanupEnabled,
		CleanupSchedule:  m.CleanupSchedule,
		CleanupRetention: m.CleanupRetention,
		CleanupThreshold: m.CleanupThreshold,
		BackupEnabled:    m.BackupEnabled,
		BackupSchedule:   m.BackupSchedule,
		BackupDir:        filepath.Join(cfg.Storage.DataDir, "backups"),
		BackupRetention:  m.BackupRetention,
		HealthEnabled:    m.HealthEnabled,
		HealthSchedule:   m.HealthSchedule,
	}, a.collector, store)
	if err != nil {
		return nil, fmt.Errorf("configuring maintenance: %w", err)
	}

	checks := []maintenance.HealthCheck{maintenance.StoreCheck(store)}
	if local != nil {
		probe := local
		if c, ok := local.(*llm.Client); ok {
			probe = c.WithoutFallback()
		}
		checks = append(checks, maintenance.ModelCheck(probe))
	}
	a.health = maintenance.NewHealthMonitor(m.HealthTimeout, checks...)
	if err := a.scheduler.WatchHealth(a.health); err != nil {
		return nil, fmt.Errorf("configuring maintenance: %w", err)
	}

	slog.Info("engine ready",
		"backends", a.router.Configured(),
		"force_local", cfg.Router.ForceLocal,
		"maintenance_jobs", a.scheduler.Jobs(),
	)
	return a, nil
}

// deps exposes the engine to the HTTP API and MCP server.
func (a *app) deps(token string) api.Deps {
	return api.Deps{
		Responder:     a.orchestrator,
		Router:        a.router,
		Memories:      a.memories,
		Personality:   a.personality,
		Conversations: a.shortTerm,
		Jobs:          a.store,
		Health:        a.health,
		ForceLocal:    a.cfg.Router.ForceLocal,
		Token:         token,
		HTTPClient:    &http.Client{Timeout: 15 * time.Second},
	}
}

// wait blocks until every best-effort hand-off has finished.
func (a *app) wait() {
	a.orchestrator.Wait()
	a.background.Wait()
}

// buildClients returns a client per configured backend. Hosted backends
// without an API key are left out so the router reports them as not
// configured.
func buildClients(cfg config.Config, oc *ollama.Client) ([]llm.TextGenerator, error) {
	hosted := make(map[llm.BackendID]llm.TextGenerator)
	var clients []llm.TextGenerator

	if cfg.Anthropic.APIKey != "" {
		t := llm.NewAnthropicTransport(llm.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			BaseURL:   cfg.Anthropic.URL,
		})
		c := llm.NewClient(t, clientOptions(cfg, cfg.Anthropic))
		hosted[llm.Anthropic] = c
		clients = append(clients, c)
	}
	if cfg.Grok.APIKey != "" {
		t := llm.NewGrokTransport(llm.GrokConfig{
			APIKey:    cfg.Grok.APIKey,
			Model:     cfg.Grok.Model,
			MaxTokens: cfg.Grok.MaxTokens,
			BaseURL:   cfg.Grok.URL,
		})
		c := llm.NewClient(t, clientOptions(cfg, cfg.Grok))
		hosted[llm.Grok] = c
		clients = append(clients, c)
	}

	if cfg.Ollama.URL != "" {
		opts := clientOptions(cfg, cfg.Ollama)
		if cfg.Ollama.Fallback != "" {
			id, err := parseBackend(cfg.Ollama.Fallback)
			if err != nil {
				return nil, fmt.Errorf("ollama.fallback: %w", err)
			}
			if fb, ok := hosted[id]; ok {
				opts.Fallback = fb
			}
		}
		t := llm.NewOllamaTransport(oc, cfg.Ollama.Model, cfg.Ollama.MaxTokens)
		clients = append([]llm.TextGenerator{llm.NewClient(t, opts)}, clients...)
	}
	return clients, nil
}

func clientOptions(cfg config.Config, b config.BackendConfig) llm.Options {
	opts := llm.Options{
		Retry: retry.Config{
			Attempts:  b.Attempts,
			BaseDelay: cfg.Retry.BaseDelay,
			MaxDelay:  cfg.Retry.MaxDelay,
		},
		Timeout: b.Timeout,
	}
	if cfg.Retry.JitterPercent > 0 {
		opts.Retry.JitterPercent = uint64(cfg.Retry.JitterPercent)
	}
	if b.MinInterval > 0 {
		opts.Limiter = ratelimit.New(b.MinInterval)
	}
	return opts
}

// buildChains turns the comma-separated chain settings into router chains.
// An empty setting keeps the tier's default chain.
func buildChains(rc config.RouterConfig) (router.Chains, error) {
	spec := make(map[router.Tier][]llm.BackendID)
	for name, ids := range rc.Chains() {
		if len(ids) == 0 {
			continue
		}
		tier, err := router.ParseTier(name)
		if err != nil {
			return nil, err
		}
		chain := make([]llm.BackendID, 0, len(ids))
		for _, raw := range ids {
			id, err := parseBackend(raw)
			if err != nil {
				return nil, fmt.Errorf("router.chain_%s: %w", name, err)
			}
			chain = append(chain, id)
		}
		spec[tier] = chain
	}
	return router.NewChains(spec)
}

func parseBackend(s string) (llm.BackendID, error) {
	switch id := llm.BackendID(s); id {
	case llm.Ollama, llm.Anthropic, llm.Grok:
		return id, nil
	}
	return "", fmt.Errorf("unknown backend %q (want ollama, anthropic or grok)", s)
}
