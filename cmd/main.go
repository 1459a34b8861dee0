package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/yakoovad/people-drive/internal/api"
	"github.com/yakoovad/people-drive/internal/auth"
	"github.com/yakoovad/people-drive/internal/backend"
	"github.com/yakoovad/people-drive/internal/config"
	"github.com/yakoovad/people-drive/internal/form"
	"github.com/yakoovad/people-drive/internal/listcache"
	"github.com/yakoovad/people-drive/internal/model"
	"github.com/yakoovad/people-drive/internal/service"
	"github.com/yakoovad/people-drive/pkg/logger"
	"go.uber.org/zap"
)

var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "people-drive",
		Short:         "Candidate registration portal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), configPath)
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default ./configs/config.yaml)")

	root.AddCommand(&cobra.Command{
		Use:   "hash-password <password>",
		Short: "Print a bcrypt hash for a staff account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := auth.HashPassword(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), h)
			return nil
		},
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	l, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return err
	}
	defer l.Sync()

	l.Info("starting application", zap.String("version", version), zap.String("backend", cfg.Backend.Kind))

	b, closeBackend, err := newBackend(ctx, cfg)
	if err != nil {
		l.Error("failed to set up backend", zap.Error(err))
		return err
	}
	defer closeBackend()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		l.Error("failed to set up cache store", zap.Error(err))
		return err
	}
	defer closeStore()

	feed := listcache.NewFeed(cfg.Cache.NotificationBuffer)
	cache := listcache.New(b, store,
		listcache.WithKey(cfg.Cache.Key),
		listcache.WithNotifier(feed),
		listcache.WithLogger(l.Named("listcache")),
		listcache.WithReconcileTimeout(cfg.Cache.ReconcileTimeout),
	)

	if err = cache.Restore(ctx); err != nil {
		l.Warn("cache snapshot unavailable", zap.Error(err))
	}
	go func() {
		loadCtx, cancel := context.WithTimeout(ctx, cfg.Backend.Timeout)
		defer cancel()
		if _, err := cache.Load(loadCtx); err != nil {
			l.Warn("initial load failed, serving cached list", zap.Error(err))
		}
	}()

	accounts, err := auth.NewAuthenticator(cfg.Auth.Accounts)
	if err != nil {
		return err
	}
	issuer := auth.NewTokenIssuer(cfg.Auth.Secret, cfg.Auth.SessionTTL)

	validator := form.NewValidator(cfg.Form.Departments, cfg.Form.MaxFileSize).
		WithRequiredDocuments(cfg.Form.Documents())

	apps := service.NewApplicationService(cache).WithLookup(b).WithDepartments(cfg.Form.Departments)
	if docs, ok := b.(backend.DocumentSource); ok {
		apps.WithDocuments(docs)
	}
	submissions := service.NewSubmissionService(b, validator)
	sessions := service.NewAuthService(accounts, issuer)

	health := api.MustNewHealthChecker(version,
		api.BackendCheck(cfg.Backend.Kind, b),
		api.StoreCheck(store),
	)

	bodyLimit := int64(len(model.DocumentKinds))*cfg.Form.MaxFileSize + 1<<20

	e := echo.New()
	e.HideBanner = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout

	handler := api.NewHandler(l).
		WithApplicationService(apps).
		WithSubmissionService(submissions).
		WithAuthService(sessions).
		WithNotificationFeed(feed).
		WithHealthChecker(health).
		WithSessionCookie(cfg.Auth.CookieName, cfg.Auth.SecureCookie).
		WithAllowOrigins(cfg.Server.AllowOrigins).
		WithBodyLimit(strconv.FormatInt(bodyLimit, 10))

	handler.RegisterRoutes(e)

	errCh := make(chan error, 1)
	go func() {
		l.Info("server starting", zap.String("address", cfg.Server.Address))
		if err := e.Start(cfg.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err = <-errCh:
		if err != nil {
			l.Error("server stopped", zap.Error(err))
			return err
		}
	case <-ctx.Done():
	}

	l.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err = e.Shutdown(shutdownCtx); err != nil {
		l.Error("failed to shut down server", zap.Error(err))
	}
	cache.Wait()

	return nil
}

func newBackend(ctx context.Context, cfg *config.Config) (backend.Backend, func(), error) {
	switch backend.Kind(cfg.Backend.Kind) {
	case backend.KindREST:
		return backend.NewREST(cfg.Backend.REST.BaseURL, cfg.Backend.Timeout), func() {}, nil
	case backend.KindSheets:
		return backend.NewSheets(cfg.Backend.Sheets.ScriptURL, cfg.Backend.Timeout), func() {}, nil
	case backend.KindPostgres:
		poolCfg, err := pgxpool.ParseConfig(cfg.Backend.Postgres.DSN)
		if err != nil {
			return nil, nil, errors.Wrap(err, "parse postgres dsn")
		}
		if cfg.Backend.Postgres.MaxConns > 0 {
			poolCfg.MaxConns = cfg.Backend.Postgres.MaxConns
		}

		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "connect to postgres")
		}
		if err = pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, nil, errors.Wrap(err, "ping postgres")
		}
		return backend.NewPostgres(pool), pool.Close, nil
	default:
		return nil, nil, errors.Errorf("unknown backend %q", cfg.Backend.Kind)
	}
}

func newStore(ctx context.Context, cfg *config.Config) (listcache.Store, func(), error) {
	switch cfg.Cache.Store {
	case "file":
		s, err := listcache.NewFileStore(cfg.Cache.Dir)
		return s, func() {}, err
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Address,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, nil, errors.Wrap(err, "ping redis")
		}
		return listcache.NewRedisStore(client, cfg.Cache.Redis.Prefix), func() { client.Close() }, nil
	default:
		return listcache.NewMemoryStore(), func() {}, nil
	}
}
