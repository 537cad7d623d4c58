package app

import (
	"context"
	"errors"
	"fmt"

	"bookshelf/pkg/domain"
	"bookshelf/pkg/store"
)

// IdentityProvider is the hosted account service.
type IdentityProvider interface {
	SignUp(ctx context.Context, cred domain.Credential) error
	SignIn(ctx context.Context, cred domain.Credential) (domain.Session, error)
	User(ctx context.Context, token string) (domain.User, error)
}

// TokenVerifier checks a token locally before the provider is asked.
type TokenVerifier interface {
	VerifySubject(ctx context.Context, token string) (string, error)
}

// Config holds the collaborators of the core application.
type Config struct {
	Identity IdentityProvider
	Books    store.BookStore
	// Verifier is optional. When set, tokens that fail local verification
	// are rejected without a round trip to the provider.
	Verifier TokenVerifier
}

// App owns the account and book rules of the gateway.
type App struct {
	identity IdentityProvider
	books    store.BookStore
	verifier TokenVerifier
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	if cfg.Identity == nil {
		return nil, fmt.Errorf("identity provider required")
	}
	if cfg.Books == nil {
		return nil, fmt.Errorf("book store required")
	}
	return &App{
		identity: cfg.Identity,
		books:    cfg.Books,
		verifier: cfg.Verifier,
	}, nil
}

// Register creates an account. Provider errors are returned as-is so the
// caller can relay the provider's message.
func (a *App) Register(ctx context.Context, cred domain.Credential) error {
	return a.identity.SignUp(ctx, cred)
}

// Login signs in with a password. Every failure collapses to
// ErrInvalidCredentials; the cause stays wrapped for logging.
func (a *App) Login(ctx context.Context, cred domain.Credential) (domain.Session, error) {
	session, err := a.identity.SignIn(ctx, cred)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if session.User.ID == "" {
		return domain.Session{}, ErrInvalidCredentials
	}
	return session, nil
}

// ResolveIdentity maps a bearer token to its user. It fails closed: a panic
// in a collaborator is reported as ErrAuthUnavailable.
func (a *App) ResolveIdentity(ctx context.Context, token string) (user domain.User, err error) {
	if token == "" {
		return domain.User{}, ErrTokenMissing
	}
	defer func() {
		if rec := recover(); rec != nil {
			user, err = domain.User{}, fmt.Errorf("%w: panic: %v", ErrAuthUnavailable, rec)
		}
	}()

	var subject string
	if a.verifier != nil {
		subject, err = a.verifier.VerifySubject(ctx, token)
		if err != nil {
			return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
	}
	user, err = a.identity.User(ctx, token)
	if err != nil {
		if IsUpstreamRejection(err) {
			return domain.User{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
		}
		return domain.User{}, fmt.Errorf("%w: %w", ErrAuthUnavailable, err)
	}
	if user.ID == "" {
		return domain.User{}, ErrInvalidToken
	}
	if subject != "" && subject != user.ID {
		return domain.User{}, fmt.Errorf("%w: subject mismatch", ErrInvalidToken)
	}
	return user, nil
}

// ListOwnBooks returns the caller's books, newest first.
func (a *App) ListOwnBooks(ctx context.Context, user domain.User) ([]domain.Book, error) {
	return a.books.ListOwned(ctx, user.ID)
}

// ListAllBooks returns every book, newest first.
func (a *App) ListAllBooks(ctx context.Context) ([]domain.Book, error) {
	return a.books.ListAll(ctx)
}

// CreateBook stores a book owned by user. Any owner supplied by the client
// is replaced.
func (a *App) CreateBook(ctx context.Context, user domain.User, book domain.NewBook) (domain.Book, error) {
	book.OwnerID = user.ID
	return a.books.Create(ctx, book)
}

// UpdateBook applies patch to a book the caller owns.
func (a *App) UpdateBook(ctx context.Context, user domain.User, id string, patch domain.BookPatch) (domain.Book, error) {
	if err := a.authorizeOwner(ctx, user, id); err != nil {
		return domain.Book{}, err
	}
	book, err := a.books.Update(ctx, id, user.ID, patch)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Book{}, ErrBookNotFound
	}
	return book, err
}

// DeleteBook removes a book the caller owns.
func (a *App) DeleteBook(ctx context.Context, user domain.User, id string) error {
	if err := a.authorizeOwner(ctx, user, id); err != nil {
		return err
	}
	err := a.books.Delete(ctx, id, user.ID)
	if errors.Is(err, store.ErrNotFound) {
		return ErrBookNotFound
	}
	return err
}

// authorizeOwner checks ownership before a mutation. The mutation itself is
// still filtered by owner, so a book that changes hands in between is
// reported as not found rather than modified.
func (a *App) authorizeOwner(ctx context.Context, user domain.User, id string) error {
	own, err := a.books.FetchOwnership(ctx, id)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrBookNotFound, err)
	}
	if own.OwnerID != user.ID {
		return ErrForbidden
	}
	return nil
}
