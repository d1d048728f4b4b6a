package note

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("note not found")

type Repository interface {
	// Create inserts n and, when set, its legacy link.
	Create(ctx context.Context, n *Note) error
	// Update saves the comment and last-modified fields of n.
	Update(ctx context.Context, n *Note) error
	GetByID(ctx context.Context, id int64) (*Note, error)
	FindByLegacyGUID(ctx context.Context, guid uuid.UUID) (*Note, error)
	ListByPerson(ctx context.Context, personID int64, limit, offset int) ([]*Note, int, error)
}

type AuthorRepository interface {
	// FindOrCreate returns the author with login, inserting it if needed.
	FindOrCreate(ctx context.Context, login string) (*Author, error)
}
