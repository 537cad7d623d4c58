package store

import (
	"context"
	"errors"

	"bookshelf/pkg/domain"
)

// ErrNotFound is returned when no book matches the given id (and owner,
// for conditional mutations).
var ErrNotFound = errors.New("book not found")

// BookStore defines persistence operations for book records.
// Lists are ordered newest first.
type BookStore interface {
	ListOwned(ctx context.Context, ownerID string) ([]domain.Book, error)
	ListAll(ctx context.Context) ([]domain.Book, error)
	Create(ctx context.Context, book domain.NewBook) (domain.Book, error)
	FetchOwnership(ctx context.Context, id string) (domain.Ownership, error)

	// Update and Delete only touch the row when it is still owned by ownerID.
	// Zero matched rows yields ErrNotFound.
	Update(ctx context.Context, id, ownerID string, patch domain.BookPatch) (domain.Book, error)
	Delete(ctx context.Context, id, ownerID string) error
}
