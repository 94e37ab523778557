package training

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/bolla/internal/router"
	"github.com/kalambet/bolla/internal/storage"
)

// Store is the persistence the collector writes to.
type Store interface {
	SaveTrainingEntry(ctx context.Context, e storage.TrainingEntry) error
	DeleteLowQualityOlderThan(ctx context.Context, cutoff time.Time, threshold float64) (int64, error)
}

// Collector scores exchanges and keeps them as training data.
type Collector struct {
	store Store
	now   func() time.Time
}

func NewCollector(store Store) *Collector {
	return &Collector{store: store, now: time.Now}
}

// Save scores e and persists it, returning the new entry's id.
func (c *Collector) Save(ctx context.Context, e Entry) (string, error) {
	ctxJSON, err := json.Marshal(e.Context)
	if err != nil {
		return "", fmt.Errorf("marshalling training context: %w", err)
	}
	metaJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshalling training metadata: %w", err)
	}

	id := uuid.New().String()
	score := QualityScore(e)
	err = c.store.SaveTrainingEntry(ctx, storage.TrainingEntry{
		ID:           id,
		Type:         string(e.Type),
		Input:        e.Input,
		ContextJSON:  string(ctxJSON),
		Output:       e.Output,
		QualityScore: score,
		Source:       e.Source,
		MetadataJSON: string(metaJSON),
		CreatedAt:    c.now(),
	})
	if err != nil {
		return "", err
	}
	slog.Debug("training entry saved", "id", id, "type", e.Type, "score", score)
	return id, nil
}

// FromOutcome records a routed conversation exchange.
func (c *Collector) FromOutcome(ctx context.Context, input string, out router.Outcome, source string, ec ExchangeContext) error {
	_, err := c.Save(ctx, Entry{
		Type:    Conversation,
		Input:   input,
		Output:  out.Text,
		Source:  source,
		Context: ec,
		Metadata: Metadata{
			Provider:     string(out.Backend),
			Model:        out.Model,
			LatencyMs:    out.Latency.Milliseconds(),
			InputTokens:  out.InputTokens,
			OutputTokens: out.OutputTokens,
			Complexity:   string(out.Tier),
			FallbackUsed: out.FallbackUsed,
		},
	})
	return err
}

// Cleanup deletes entries older than retention scored below threshold.
func (c *Collector) Cleanup(ctx context.Context, retention time.Duration, threshold float64) (int64, error) {
	n, err := c.store.DeleteLowQualityOlderThan(ctx, c.now().Add(-retention), threshold)
	if err != nil {
		return 0, fmt.Errorf("cleaning training data: %w", err)
	}
	return n, nil
}
