package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Memory is one stored fact. AccessCount only grows.
type Memory struct {
	ID             int64
	Content        string
	SearchableText string
	Category       string
	Source         string
	AccessCount    int
	CreatedAt      time.Time
}

// TrainingEntry is one scored input/output pair kept for later fine-tuning.
// Context and Metadata are JSON objects stored as text.
type TrainingEntry struct {
	ID           string
	Type         string
	Input        string
	ContextJSON  string
	Output       string
	QualityScore float64
	Source       string
	MetadataJSON string
	CreatedAt    time.Time
}

// Job is a unit of background work in the jobs queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // one of the Job* states
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
