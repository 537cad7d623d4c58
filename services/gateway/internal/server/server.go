package server

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"bookshelf/internal/ratelimit"
	"bookshelf/internal/security"
	"bookshelf/internal/util"
	"bookshelf/pkg/domain"
	"bookshelf/services/gateway/internal/app"

	"github.com/redis/go-redis/v9"
)

// Routes lists every path the gateway serves, keyed by path with the
// methods accepted there. The OpenAPI checker compares against it.
var Routes = map[string][]string{
	"/health":        {http.MethodGet},
	"/auth/register": {http.MethodPost},
	"/auth/login":    {http.MethodPost},
	"/books":         {http.MethodGet, http.MethodPost},
	"/books/all":     {http.MethodGet},
	"/books/{id}":    {http.MethodPut, http.MethodDelete},
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App *app.App
	// Redis enables rate limiting and security alerts. Both are off when nil.
	Redis                      redis.UniversalClient
	TrustedProxies             *util.TrustedProxies
	AllowedOrigins             []string
	RegisterRateLimitPerMinute int
	LoginRateLimitPerMinute    int
}

// Server exposes the gateway's HTTP endpoints.
type Server struct {
	app             *app.App
	mux             *http.ServeMux
	trusted         *util.TrustedProxies
	origins         []string
	registerLimiter *ratelimit.FixedWindowLimiter
	loginLimiter    *ratelimit.FixedWindowLimiter
	alerter         *security.AuditAlerter
	now             func() time.Time
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errAppRequired
	}
	s := &Server{
		app:     cfg.App,
		mux:     http.NewServeMux(),
		trusted: cfg.TrustedProxies,
		origins: cfg.AllowedOrigins,
		now:     time.Now,
	}
	if cfg.Redis != nil {
		registerLimit := cfg.RegisterRateLimitPerMinute
		if registerLimit <= 0 {
			registerLimit = 5
		}
		loginLimit := cfg.LoginRateLimitPerMinute
		if loginLimit <= 0 {
			loginLimit = 10
		}
		var err error
		s.registerLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.Redis, "bookshelf:gateway:ratelimit:register", registerLimit, time.Minute)
		if err != nil {
			return nil, err
		}
		s.loginLimiter, err = ratelimit.NewFixedWindowLimiter(cfg.Redis, "bookshelf:gateway:ratelimit:login", loginLimit, time.Minute)
		if err != nil {
			return nil, err
		}
		s.alerter = security.NewAuditAlerter(cfg.Redis, "bookshelf:gateway:alerts")
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler with the full middleware chain.
func (s *Server) Router() http.Handler {
	var h http.Handler = s.mux
	h = util.WithCORS(s.origins, h)
	h = util.WithSecurityHeaders(s.trusted, h)
	h = util.WithRecover(h)
	h = util.WithRequestLog("gateway", h)
	return util.WithRequestID(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/health", s.handleHealth)

	s.mux.HandleFunc("/auth/register", s.handleRegister)
	s.mux.HandleFunc("/auth/login", s.handleLogin)

	s.mux.HandleFunc("/books", s.handleBooks)
	s.mux.HandleFunc("/books/all", s.handleAllBooks)
	s.mux.HandleFunc("/books/", s.handleBookByID)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:   true,
		Time: s.now().UTC().Format(time.RFC3339Nano),
	})
}

type identityContextKey struct{}

// IdentityFrom returns the caller attached by the auth middleware.
func IdentityFrom(ctx context.Context) (domain.User, bool) {
	user, ok := ctx.Value(identityContextKey{}).(domain.User)
	return user, ok
}

type authHandler func(http.ResponseWriter, *http.Request, domain.User)

// authenticated resolves the bearer token before next runs. Every failure
// is a 401; none of them reach the handler.
func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := bearerToken(r)
		user, err := s.app.ResolveIdentity(r.Context(), token)
		if err != nil {
			code, reason := authFailure(err)
			s.audit(r, "gateway.authorize", "fail", "reason", reason, "err", err.Error())
			writeError(w, http.StatusUnauthorized, code, reason)
			return
		}
		s.audit(r, "gateway.authorize", "success", "user_id", user.ID)
		ctx := context.WithValue(r.Context(), identityContextKey{}, user)
		next(w, r.WithContext(ctx), user)
	})
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := s.clientIP(r)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	if s.alerter == nil {
		return
	}
	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Debug("security alert counter unavailable", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Warn("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"threshold", result.Threshold,
			"window", result.Window.String(),
		)
	}
}

// allowRate applies limiter to the caller's IP. A nil limiter means rate
// limiting is disabled.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	if limiter == nil {
		return true
	}
	key := r.URL.Path + "|" + s.clientIP(r)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retryAfter := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeError(w, http.StatusTooManyRequests, codeRateLimited, msg)
	return false
}

func (s *Server) clientIP(r *http.Request) string {
	return util.ClientIP(r, s.trusted)
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, codeMethodNotAllowed, "method not allowed")
}

type healthResponse struct {
	OK   bool   `json:"ok"`
	Time string `json:"time"`
}
