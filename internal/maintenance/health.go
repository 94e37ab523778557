package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kalambet/bolla/internal/llm"
)

const (
	DefaultHealthSchedule = "@every 5m"
	DefaultHealthTimeout  = 30 * time.Second
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck struct {
	Name  string
	Probe func(ctx context.Context) error
}

// CheckStatus is the latest result of one health check.
type CheckStatus struct {
	Name      string    `json:"name"`
	OK        bool      `json:"ok"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// HealthMonitor runs health checks and remembers the last status of each
// dependency. Up/down transitions are logged; the first result of a check is
// recorded without a transition.
type HealthMonitor struct {
	checks  []HealthCheck
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    map[string]CheckStatus
}

// NewHealthMonitor returns a monitor running checks in order, each bounded
// by timeout (DefaultHealthTimeout when zero).
func NewHealthMonitor(timeout time.Duration, checks ...HealthCheck) *HealthMonitor {
	if timeout <= 0 {
		timeout = DefaultHealthTimeout
	}
	return &HealthMonitor{
		checks:  checks,
		timeout: timeout,
		now:     time.Now,
		logger:  slog.Default(),
		last:    make(map[string]CheckStatus),
	}
}

// Run checks every dependency once. A cycle that starts while another is in
// progress returns the current status without probing.
func (m *HealthMonitor) Run(ctx context.Context) []CheckStatus {
	if !m.running.CompareAndSwap(false, true) {
		return m.Status()
	}
	defer m.running.Store(false)

	for _, c := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := probe(cctx, c.Probe)
		cancel()

		st := CheckStatus{Name: c.Name, OK: err == nil, CheckedAt: m.now()}
		if err != nil {
			st.Error = err.Error()
		}

		m.mu.Lock()
		prev, seen := m.last[c.Name]
		m.last[c.Name] = st
		m.mu.Unlock()

		switch {
		case !seen && !st.OK:
			m.logger.Warn("health check failing", "check", c.Name, "error", st.Error)
		case seen && prev.OK && !st.OK:
			m.logger.Error("health check failed", "check", c.Name, "error", st.Error)
		case seen && !prev.OK && st.OK:
			m.logger.Info("health recovered", "check", c.Name)
		}
	}
	return m.Status()
}

// Status returns the last result of every check that has run, in check
// order.
func (m *HealthMonitor) Status() []CheckStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CheckStatus, 0, len(m.last))
	for _, c := range m.checks {
		if st, ok := m.last[c.Name]; ok {
			out = append(out, st)
		}
	}
	return out
}

func probe(ctx context.Context, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

// Pinger is a database that answers a trivial query.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreCheck probes the database.
func StoreCheck(db Pinger) HealthCheck {
	return HealthCheck{Name: "store", Probe: db.Ping}
}

// ModelCheck asks gen for a one-word reply and expects it to contain "ok".
func ModelCheck(gen llm.TextGenerator) HealthCheck {
	return HealthCheck{
		Name: string(gen.ID()),
		Probe: func(ctx context.Context) error {
			res, err := gen.Generate(ctx, llm.Request{
				Prompt:      "Responda com OK.",
				Temperature: llm.Temperature(0),
				MaxTokens:   8,
			})
			if err != nil {
				return err
			}
			if !strings.Contains(strings.ToLower(res.Text), "ok") {
				return fmt.Errorf("unexpected reply %q", truncate(res.Text, 40))
			}
			return nil
		},
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
