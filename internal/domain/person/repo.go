package person

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no person matches a lookup.
var ErrNotFound = errors.New("person not found")

// Repository persists persons together with their legacy identifiers.
type Repository interface {
	// Create inserts p and all of its identifiers, assigning IDs.
	Create(ctx context.Context, p *Person) error
	// Update saves p's scalar fields and inserts identifiers that have no ID yet.
	Update(ctx context.Context, p *Person) error
	GetByID(ctx context.Context, id int64) (*Person, error)
	FindByIdentifier(ctx context.Context, guid uuid.UUID) (*Person, error)
	ListAll(ctx context.Context) ([]*Person, error)
	List(ctx context.Context, limit, offset int) ([]*Person, int, error)
	// KnownIdentifiers returns every persisted legacy GUID mapped to its owner.
	KnownIdentifiers(ctx context.Context) (map[uuid.UUID]int64, error)
}
