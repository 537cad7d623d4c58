package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"bookshelf/internal/usertoken"
	"bookshelf/internal/util"
	"bookshelf/pkg/store"
	"bookshelf/services/gateway/internal/app"
	"bookshelf/services/gateway/internal/authclient"
	"bookshelf/services/gateway/internal/bookclient"
	"bookshelf/services/gateway/internal/config"
	"bookshelf/services/gateway/internal/server"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(config.ConfigPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.InitLogger(cfg.LogLevel)
	if _, ok := util.ParseLevel(cfg.LogLevel); !ok {
		logger.Warn("unknown log level, using info", "logLevel", cfg.LogLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Error("gateway stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.FileConfig) error {
	books, closeBooks, err := newBookStore(cfg)
	if err != nil {
		return err
	}
	defer closeBooks()

	var verifier app.TokenVerifier
	if cfg.TokenVerificationEnabled() {
		leeway, _ := config.ParseJWTLeeway(cfg.JWTLeeway)
		v, err := usertoken.NewVerifier(ctx, usertoken.Config{
			Secret:   cfg.SupabaseJWTSecret,
			JWKSURL:  cfg.SupabaseJWKSURL,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
			Leeway:   leeway,
		})
		if err != nil {
			return err
		}
		verifier = v
		slog.Info("local token verification enabled", "jwks", cfg.SupabaseJWKSURL != "")
	}

	appCore, err := app.New(app.Config{
		Identity: authclient.NewClient(cfg.SupabaseURL, cfg.SupabaseAnonKey),
		Books:    books,
		Verifier: verifier,
	})
	if err != nil {
		return err
	}

	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return err
	}
	srvCfg := server.Config{
		App:                        appCore,
		TrustedProxies:             trusted,
		AllowedOrigins:             cfg.AllowedOrigins,
		RegisterRateLimitPerMinute: cfg.RegisterRateLimitPerMinute,
		LoginRateLimitPerMinute:    cfg.LoginRateLimitPerMinute,
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()
		srvCfg.Redis = rdb
	} else {
		slog.Warn("redisAddr not set, rate limiting and security alerts disabled")
	}
	httpServer, err := server.New(srvCfg)
	if err != nil {
		return err
	}

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:         addr,
		Handler:      httpServer.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newBookStore picks direct Postgres when a database URL is configured and
// the hosted REST data API otherwise.
func newBookStore(cfg config.FileConfig) (store.BookStore, func(), error) {
	if cfg.DatabaseURL != "" {
		s, err := store.NewGormStore(cfg.DatabaseURL, store.WithAutoMigrate(cfg.AutoMigrate))
		if err != nil {
			return nil, nil, err
		}
		slog.Info("book storage: postgres")
		return s, func() { _ = s.Close() }, nil
	}
	slog.Info("book storage: rest data api", "url", cfg.SupabaseURL)
	return bookclient.NewClient(cfg.SupabaseURL, cfg.SupabaseServiceRoleKey), func() {}, nil
}
