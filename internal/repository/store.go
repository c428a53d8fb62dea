package repository

import (
	"context"
	"errors"

	"github.com/stablelab/growth-milestone-service/internal/model"
)

var (
	// ErrNotFound is returned when no milestone matches the lookup key.
	ErrNotFound = errors.New("milestone not found")
	// ErrCorrupt is returned when the backing document exists but cannot
	// be parsed and corrupt-reset has not been opted into.
	ErrCorrupt = errors.New("store document corrupt")
)

// Store is the persistence capability for milestone records. Document-level
// Load/Save expose the whole state for export; the per-record helpers are
// what the service uses day to day.
type Store interface {
	Load(ctx context.Context) (*model.Document, error)
	Save(ctx context.Context, doc *model.Document) error

	Get(ctx context.Context, internalID string) (*model.Milestone, error)
	Put(ctx context.Context, m *model.Milestone) error
	Delete(ctx context.Context, internalID string) error
	List(ctx context.Context) ([]model.Milestone, error)
	FindByRemoteID(ctx context.Context, remoteID string) (*model.Milestone, error)

	// Backend names the implementation ("file", "postgres", "memory").
	Backend() string
	// Location describes where the data lives, for the health endpoint.
	Location() string
	Ping(ctx context.Context) error
}
