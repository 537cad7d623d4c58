package store

import (
	"context"
	"sync"
	"time"

	"bookshelf/pkg/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps books in-process. It backs tests and local runs
// without a database.
type MemoryStore struct {
	mu     sync.RWMutex
	books  map[string]domain.Book
	orders []string
	now    func() time.Time
}

var _ BookStore = (*MemoryStore)(nil)

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		books: make(map[string]domain.Book),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts b as-is, keeping its ID, owner and timestamp.
func (m *MemoryStore) Seed(b domain.Book) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.books[b.ID]; !exists {
		m.orders = append(m.orders, b.ID)
	}
	m.books[b.ID] = b
}

func (m *MemoryStore) ListOwned(_ context.Context, ownerID string) ([]domain.Book, error) {
	return m.list(func(b domain.Book) bool { return b.OwnerID == ownerID }), nil
}

func (m *MemoryStore) ListAll(_ context.Context) ([]domain.Book, error) {
	return m.list(func(domain.Book) bool { return true }), nil
}

// list walks insertion order backwards so the newest book comes first.
func (m *MemoryStore) list(keep func(domain.Book) bool) []domain.Book {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Book, 0, len(m.orders))
	for i := len(m.orders) - 1; i >= 0; i-- {
		if b, ok := m.books[m.orders[i]]; ok && keep(b) {
			res = append(res, b)
		}
	}
	return res
}

func (m *MemoryStore) Create(_ context.Context, nb domain.NewBook) (domain.Book, error) {
	b := domain.Book{
		ID:        uuid.NewString(),
		Title:     nb.Title,
		Author:    nb.Author,
		Pages:     nb.Pages,
		Year:      nb.Year,
		OwnerID:   nb.OwnerID,
		CreatedAt: m.now(),
	}
	m.Seed(b)
	return b, nil
}

func (m *MemoryStore) FetchOwnership(_ context.Context, id string) (domain.Ownership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return domain.Ownership{}, ErrNotFound
	}
	return domain.Ownership{ID: b.ID, OwnerID: b.OwnerID}, nil
}

func (m *MemoryStore) Update(_ context.Context, id, ownerID string, patch domain.BookPatch) (domain.Book, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok || b.OwnerID != ownerID {
		return domain.Book{}, ErrNotFound
	}
	if patch.Title != nil {
		b.Title = *patch.Title
	}
	if patch.Author != nil {
		b.Author = *patch.Author
	}
	if patch.Pages != nil {
		b.Pages = *patch.Pages
	}
	if patch.Year != nil {
		b.Year = *patch.Year
	}
	m.books[id] = b
	return b, nil
}

func (m *MemoryStore) Delete(_ context.Context, id, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok || b.OwnerID != ownerID {
		return ErrNotFound
	}
	delete(m.books, id)
	for i, oid := range m.orders {
		if oid == id {
			m.orders = append(m.orders[:i], m.orders[i+1:]...)
			break
		}
	}
	return nil
}
