package personality

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// Store defines the storage operations the Manager needs.
// Implemented by storage.Store.
type Store interface {
	SeedPersonality(ctx context.Context, traits map[string]string) error
	SetPersonalityTrait(ctx context.Context, trait, value string) error
	GetAllPersonalityTraits(ctx context.Context) (map[string]string, error)
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

const (
	defaultTTL    = 60 * time.Second
	maxTraitKey   = 64
	maxTraitValue = 2000
)

// ErrInvalidTrait is wrapped by Set when the name or value is rejected.
var ErrInvalidTrait = errors.New("invalid trait")

// Manager provides cached access to the agent's personality traits.
type Manager struct {
	store Store
	clock Clock
	ttl   time.Duration

	mu       sync.RWMutex
	cached   map[string]string
	cachedAt time.Time
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store Store) *Manager {
	return NewManagerWithClock(store, realClock{}, defaultTTL)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store Store, clock Clock, ttl time.Duration) *Manager {
	return &Manager{store: store, clock: clock, ttl: ttl}
}

// Seed inserts the default traits that are missing.
func (m *Manager) Seed(ctx context.Context) error {
	if err := m.store.SeedPersonality(ctx, Defaults()); err != nil {
		return fmt.Errorf("seeding personality: %w", err)
	}
	m.invalidate()
	return nil
}

// Traits returns a copy of every trait.
func (m *Manager) Traits(ctx context.Context) (map[string]string, error) {
	m.mu.RLock()
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		t := maps.Clone(m.cached)
		m.mu.RUnlock()
		return t, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if m.cached != nil && m.clock.Now().Before(m.cachedAt.Add(m.ttl)) {
		return maps.Clone(m.cached), nil
	}

	traits, err := m.store.GetAllPersonalityTraits(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading personality: %w", err)
	}
	m.cached = traits
	m.cachedAt = m.clock.Now()
	return maps.Clone(traits), nil
}

// Set persists a trait and invalidates the cache.
func (m *Manager) Set(ctx context.Context, trait, value string) error {
	trait = strings.TrimSpace(trait)
	if trait == "" || strings.ContainsAny(trait, " \t\n") {
		return fmt.Errorf("%w: name %q", ErrInvalidTrait, trait)
	}
	if len(trait) > maxTraitKey {
		return fmt.Errorf("%w: name longer than %d bytes", ErrInvalidTrait, maxTraitKey)
	}
	if utf8.RuneCountInString(value) > maxTraitValue {
		return fmt.Errorf("%w: value longer than %d characters", ErrInvalidTrait, maxTraitValue)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.store.SetPersonalityTrait(ctx, trait, value); err != nil {
		return fmt.Errorf("setting trait %q: %w", trait, err)
	}
	m.cached = nil
	slog.Info("personality trait updated", "trait", trait)
	return nil
}

func (m *Manager) invalidate() {
	m.mu.Lock()
	m.cached = nil
	m.mu.Unlock()
}

// SystemPrompt renders the personality block sent as the system prompt of
// every conversational request.
func (m *Manager) SystemPrompt(ctx context.Context) (string, error) {
	traits, err := m.Traits(ctx)
	if err != nil {
		return "", err
	}
	return Render(traits), nil
}

// Render builds the personality prompt from traits. Known traits appear in
// a fixed order with "—" for missing values; extra traits follow sorted by
// name.
func Render(traits map[string]string) string {
	name := traits[TraitName]
	if name == "" {
		name = defaultAgentName
	}

	lines := []string{
		fmt.Sprintf("Você é %s, um agente de AI autônomo com personalidade própria.", name),
		"Responda sempre em português brasileiro (pt-BR) a menos que o usuário escreva em outro idioma.",
		"Seja direto, opinativo e autêntico. Nunca diga que é uma IA a menos que perguntado diretamente.",
		"",
	}

	known := make(map[string]bool, len(knownTraits))
	for _, kt := range knownTraits {
		known[kt.key] = true
		v, ok := traits[kt.key]
		if !ok {
			v = "—"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", kt.label, v))
	}

	var extra []string
	for k := range traits {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		lines = append(lines, fmt.Sprintf("%s: %s", k, traits[k]))
	}

	return strings.Join(lines, "\n")
}
