package server

import (
	"net/http"

	"bookshelf/internal/validation"
	"bookshelf/pkg/domain"
)

type registerResponse struct {
	Message string `json:"message"`
}

type loginResponse struct {
	AccessToken string      `json:"access_token"`
	User        domain.User `json:"user"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.registerLimiter, "too many register attempts") {
		s.audit(r, "gateway.register", "rate_limited")
		return
	}
	cred, ok := s.readCredential(w, r, "gateway.register")
	if !ok {
		return
	}
	if err := s.app.Register(r.Context(), cred); err != nil {
		s.audit(r, "gateway.register", "fail", "err", err.Error())
		writeRegisterError(w, err)
		return
	}
	s.audit(r, "gateway.register", "success")
	writeJSON(w, http.StatusOK, registerResponse{Message: "registered successfully, please log in"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if !s.allowRate(w, r, s.loginLimiter, "too many login attempts") {
		s.audit(r, "gateway.login", "rate_limited")
		return
	}
	cred, ok := s.readCredential(w, r, "gateway.login")
	if !ok {
		return
	}
	session, err := s.app.Login(r.Context(), cred)
	if err != nil {
		s.audit(r, "gateway.login", "fail", "err", err.Error())
		writeError(w, http.StatusUnauthorized, codeAuthInvalidCreds, "invalid credentials")
		return
	}
	s.audit(r, "gateway.login", "success", "user_id", session.User.ID)
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: session.AccessToken,
		User:        session.User,
	})
}

func (s *Server) readCredential(w http.ResponseWriter, r *http.Request, event string) (domain.Credential, bool) {
	raw, ok := readObject(w, r, codeAuthInvalidData, "invalid data")
	if !ok {
		s.audit(r, event, "fail", "reason", "invalid_body")
		return domain.Credential{}, false
	}
	cred, errs := validation.Credential(raw)
	if len(errs) > 0 {
		s.audit(r, event, "fail", "reason", "invalid_data")
		writeErrorDetails(w, http.StatusBadRequest, codeAuthInvalidData, "invalid data", errs)
		return domain.Credential{}, false
	}
	return cred, true
}
