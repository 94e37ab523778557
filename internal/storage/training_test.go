package storage

import (
	"context"
	"testing"
	"time"
)

func TestTrainingEntryRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	e := TrainingEntry{
		ID:           "t1",
		Type:         "conversation",
		Input:        "oi",
		Output:       "e aí, tudo certo?",
		QualityScore: 0.6,
		Source:       "api",
		MetadataJSON: `{"provider":"ollama"}`,
	}
	if err := s.SaveTrainingEntry(ctx, e); err != nil {
		t.Fatalf("SaveTrainingEntry: %v", err)
	}

	got, err := s.ListTrainingEntries(ctx, 10)
	if err != nil {
		t.Fatalf("ListTrainingEntries: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].ContextJSON != "{}" || got[0].MetadataJSON != `{"provider":"ollama"}` || got[0].QualityScore != 0.6 {
		t.Errorf("entry = %+v", got[0])
	}
}

func TestDeleteLowQualityOlderThan(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-40 * 24 * time.Hour)
	entries := []TrainingEntry{
		{ID: "old-low", QualityScore: 0.2, CreatedAt: old},
		{ID: "old-high", QualityScore: 0.8, CreatedAt: old},
		{ID: "new-low", QualityScore: 0.2},
	}
	for _, e := range entries {
		e.Type, e.Input, e.Output, e.Source = "conversation", "in", "out", "api"
		if err := s.SaveTrainingEntry(ctx, e); err != nil {
			t.Fatal(err)
		}
	}

	n, err := s.DeleteLowQualityOlderThan(ctx, time.Now().Add(-30*24*time.Hour), 0.45)
	if err != nil {
		t.Fatalf("DeleteLowQualityOlderThan: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted = %d, want 1", n)
	}

	left, _ := s.ListTrainingEntries(ctx, 10)
	for _, e := range left {
		if e.ID == "old-low" {
			t.Error("old low-quality entry survived")
		}
	}
	if len(left) != 2 {
		t.Errorf("remaining = %d, want 2", len(left))
	}
}
