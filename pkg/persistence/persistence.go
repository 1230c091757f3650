package persistence

import (
	"context"
	"time"

	"github.com/dukex/gridfn/pkg/models"
)

// History is the store of finished executions.
type History interface {
	// Save inserts or replaces record.
	Save(ctx context.Context, record models.ExecutionRecord) error
	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]models.ExecutionRecord, error)
	ByID(ctx context.Context, id string) (*models.ExecutionRecord, error)
	// Prune deletes records completed before cutoff and reports how many.
	Prune(ctx context.Context, before time.Time) (int64, error)
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
