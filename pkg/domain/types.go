package domain

import "time"

// Book is a catalogue record owned by the user who created it.
type Book struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Author    string    `json:"author"`
	Pages     int       `json:"pages"`
	Year      int       `json:"year"`
	OwnerID   string    `json:"owner_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewBook is the validated input for creating a book. OwnerID is always
// the authenticated caller, never a client-supplied value.
type NewBook struct {
	Title   string `json:"title"`
	Author  string `json:"author"`
	Pages   int    `json:"pages"`
	Year    int    `json:"year"`
	OwnerID string `json:"owner_id"`
}

// BookPatch carries the fields of a partial update. Nil means unchanged.
type BookPatch struct {
	Title  *string `json:"title,omitempty"`
	Author *string `json:"author,omitempty"`
	Pages  *int    `json:"pages,omitempty"`
	Year   *int    `json:"year,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p BookPatch) Empty() bool {
	return p.Title == nil && p.Author == nil && p.Pages == nil && p.Year == nil
}

// Ownership is the minimal projection used for access checks.
type Ownership struct {
	ID      string `json:"id"`
	OwnerID string `json:"owner_id"`
}

// User is the caller identity resolved from a bearer token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Credential is an email/password pair forwarded to the identity provider.
type Credential struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,minunits=6"`
}

// Session is the result of a successful sign-in.
type Session struct {
	AccessToken string `json:"access_token"`
	User        User   `json:"user"`
}
