package server

import (
	"errors"
	"net/http"
	"strings"

	"bookshelf/internal/validation"
	"bookshelf/pkg/domain"
	"bookshelf/services/gateway/internal/app"
)

type bookResponse struct {
	Message string      `json:"message"`
	Book    domain.Book `json:"book"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// /books
func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.authenticated(s.handleListOwnBooks).ServeHTTP(w, r)
	case http.MethodPost:
		s.authenticated(s.handleCreateBook).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleListOwnBooks(w http.ResponseWriter, r *http.Request, user domain.User) {
	books, err := s.app.ListOwnBooks(r.Context(), user)
	if err != nil {
		writeBookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, user domain.User) {
	raw, ok := readObject(w, r, codeBookInvalidData, "invalid book data")
	if !ok {
		return
	}
	input, errs := validation.BookCreate(raw)
	if len(errs) > 0 {
		writeErrorDetails(w, http.StatusBadRequest, codeBookInvalidData, "invalid book data", errs)
		return
	}
	book, err := s.app.CreateBook(r.Context(), user, input)
	if err != nil {
		writeBookError(w, err)
		return
	}
	s.audit(r, "gateway.book.create", "success", "user_id", user.ID, "book_id", book.ID)
	writeJSON(w, http.StatusCreated, bookResponse{Message: "book created", Book: book})
}

// /books/all is public. Mutations address it like any other id, so
// PUT and DELETE go through the ownership checks and end in a 404.
func (s *Server) handleAllBooks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPut, http.MethodDelete:
		s.handleBookByID(w, r)
		return
	default:
		methodNotAllowed(w)
		return
	}
	books, err := s.app.ListAllBooks(r.Context())
	if err != nil {
		writeBookError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, books)
}

// /books/{id}
func (s *Server) handleBookByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/books/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, codeNotFound, "not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			s.handleUpdateBook(w, r, user, id)
		}).ServeHTTP(w, r)
	case http.MethodDelete:
		s.authenticated(func(w http.ResponseWriter, r *http.Request, user domain.User) {
			s.handleDeleteBook(w, r, user, id)
		}).ServeHTTP(w, r)
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	raw, ok := readObject(w, r, codeBookInvalidData, "invalid book data")
	if !ok {
		return
	}
	patch, errs := validation.BookUpdate(raw)
	if len(errs) > 0 {
		writeErrorDetails(w, http.StatusBadRequest, codeBookInvalidData, "invalid book data", errs)
		return
	}
	book, err := s.app.UpdateBook(r.Context(), user, id, patch)
	if err != nil {
		s.auditBookFailure(r, "gateway.book.update", user, id, err)
		writeBookError(w, err)
		return
	}
	s.audit(r, "gateway.book.update", "success", "user_id", user.ID, "book_id", id)
	writeJSON(w, http.StatusOK, bookResponse{Message: "book updated", Book: book})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	if err := s.app.DeleteBook(r.Context(), user, id); err != nil {
		s.auditBookFailure(r, "gateway.book.delete", user, id, err)
		writeBookError(w, err)
		return
	}
	s.audit(r, "gateway.book.delete", "success", "user_id", user.ID, "book_id", id)
	writeJSON(w, http.StatusOK, messageResponse{Message: "book deleted"})
}

func (s *Server) auditBookFailure(r *http.Request, event string, user domain.User, id string, err error) {
	outcome := "fail"
	if errors.Is(err, app.ErrForbidden) {
		outcome = "forbidden"
	}
	s.audit(r, event, outcome, "user_id", user.ID, "book_id", id, "err", err.Error())
}
