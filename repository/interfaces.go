// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/brainchat/customer-service/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uuid.UUID) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CustomerRepository defines operations for customer identity records
type CustomerRepository interface {
	Repository[models.Customer, models.CustomerFilter]

	// ByScopedID looks up the single customer owning the
	// (app_id, platform, scoped_id) key. Returns nil when absent.
	ByScopedID(ctx context.Context, appID uuid.UUID, platform, scopedID string) (*models.Customer, error)

	// Insert creates a new row. A unique-constraint violation on the
	// customer key is reported as ErrDuplicateKey so callers can retry
	// as an update.
	Insert(ctx context.Context, customer *models.Customer) error

	// UpdateFields applies a sparse column map to a single row.
	// last_interaction_at updates must go through TouchInteraction.
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error

	// TouchInteraction advances last_interaction_at to at unless the
	// stored value is already later (GREATEST merge, done in SQL so
	// concurrent touches cannot regress it). Returns the number of rows
	// matched.
	TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) (int64, error)

	Delete(ctx context.Context, id uuid.UUID) (bool, error)
}
