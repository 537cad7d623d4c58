package store

import (
	"context"
	"errors"
	"testing"

	"bookshelf/pkg/domain"
)

func TestMemoryStoreListsNewestFirst(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	for _, nb := range []domain.NewBook{
		{Title: "A", Author: "x", OwnerID: "u-1"},
		{Title: "B", Author: "x", OwnerID: "u-2"},
		{Title: "C", Author: "x", OwnerID: "u-1"},
	} {
		if _, err := s.Create(ctx, nb); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	owned, _ := s.ListOwned(ctx, "u-1")
	if len(owned) != 2 || owned[0].Title != "C" || owned[1].Title != "A" {
		t.Fatalf("unexpected owned list: %+v", owned)
	}
	all, _ := s.ListAll(ctx)
	if len(all) != 3 || all[0].Title != "C" {
		t.Fatalf("unexpected full list: %+v", all)
	}
}

func TestMemoryStoreConditionalMutations(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b, _ := s.Create(ctx, domain.NewBook{Title: "T", Author: "A", Pages: 1, Year: 2, OwnerID: "u-1"})

	title := "New"
	if _, err := s.Update(ctx, b.ID, "u-2", domain.BookPatch{Title: &title}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign owner, got %v", err)
	}
	got, err := s.Update(ctx, b.ID, "u-1", domain.BookPatch{Title: &title})
	if err != nil || got.Title != "New" || got.Pages != 1 {
		t.Fatalf("unexpected update result %+v err=%v", got, err)
	}
	if err := s.Delete(ctx, b.ID, "u-2"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign delete, got %v", err)
	}
	if err := s.Delete(ctx, b.ID, "u-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.FetchOwnership(ctx, b.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted book to be gone, got %v", err)
	}
}
