package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"taskboard/internal/auth"
	"taskboard/internal/config"
	"taskboard/internal/handlers"
	"taskboard/internal/logging"
	"taskboard/internal/notify"
	"taskboard/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	Long: `Runs the JSON API and the board snapshot streams.

When redis.addr is set, board changes are fanned out through Redis pub/sub
so that streams served by other instances see them too.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cfg.Database.Path)
		if err != nil {
			return err
		}
		defer s.Close()

		applied, err := s.AppliedMigrations(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "database %s at migration %v\n", cfg.Database.Path, applied)
		return nil
	},
}

// notifier is what both the store and the handlers need from change
// notification.
type notifier interface {
	store.Notifier
	notify.Publisher
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)

	var pub notifier = notify.NewHub()
	if cfg.Redis.Addr != "" {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
		}

		broker := notify.NewRedisBroker(rc, cfg.Redis.Channel, logger.Named("notify"))
		g.Go(func() error {
			if err := broker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
		pub = broker
	}

	s, err := openStore(cfg.Database.Path, store.WithNotifier(pub), store.WithLogger(logger.Named("store")))
	if err != nil {
		return err
	}
	defer s.Close()

	a := newAuth(cfg)
	h := handlers.New(s, pub, logger.Named("http"))

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           buildRouter(h, a, logger),
		ReadHeaderTimeout: 10 * time.Second,
		// Request contexts end with ctx so open streams return on shutdown.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	g.Go(func() error {
		logger.Info("starting server", zap.String("addr", cfg.Server.Addr), zap.String("db", cfg.Database.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GetShutdownTimeout())
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func openStore(dbPath string, opts ...store.Option) (*store.SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	return store.NewSQLiteStore(dbPath, opts...)
}

func buildRouter(h *handlers.Handlers, a *auth.Auth, log *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(logging.RequestLogger(log.Named("access")))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Use(a.Middleware)
		h.Register(r)
	})

	return r
}

// newAuth builds the token issuer from the loaded config.
func newAuth(c *config.Config) *auth.Auth {
	return auth.New([]byte(c.Auth.JWTSecret), c.Auth.Issuer, c.GetTokenTTL())
}
