package state

import (
	"io"
	"time"

	"github.com/ShayCichocki/conductor/pkg/models"
)

// QueueStore persists queue snapshots.
type QueueStore interface {
	SaveSnapshot(tasks []*models.Task, dlq []models.DeadLetterTask) error
	LoadSnapshot() ([]*models.Task, []models.DeadLetterTask, error)
}

// RunStore persists orchestration results.
type RunStore interface {
	SaveRun(result *models.OrchestrationResult, at time.Time) error
	GetRun(id string) (*models.OrchestrationResult, error)
	ListRuns(limit int) ([]RunSummary, error)
}

// Migrator handles database schema migrations.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// StateStore defines the interface for state persistence, so callers do not
// depend on the concrete SQLite implementation.
type StateStore interface {
	io.Closer
	Migrator
	QueueStore
	RunStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ StateStore = (*DB)(nil)
	_ QueueStore = (*DB)(nil)
	_ RunStore   = (*DB)(nil)
)
