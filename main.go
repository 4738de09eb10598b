package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/Zachkp/cosmic-portfolio/internal/adminauth"
	"github.com/Zachkp/cosmic-portfolio/internal/config"
	"github.com/Zachkp/cosmic-portfolio/internal/logging"
	"github.com/Zachkp/cosmic-portfolio/internal/metrics"
	"github.com/Zachkp/cosmic-portfolio/internal/site"
	"github.com/Zachkp/cosmic-portfolio/internal/storage"
	"github.com/Zachkp/cosmic-portfolio/internal/tokenstore"
	"github.com/Zachkp/cosmic-portfolio/internal/visits"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	if cfg.DefaultAdmin {
		logger.Warn("using development admin password admin123; set ADMIN_PASSWORD or ADMIN_PASSWORD_HASH",
			"username", cfg.Admin.Username)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	m := metrics.New()

	backend, release, err := openBackend(ctx, cfg, logger, db)
	if err != nil {
		return err
	}
	defer release()
	hub := tokenstore.NewHub(backend,
		tokenstore.WithLogger(logger),
		tokenstore.WithDropHook(m.DroppedChanges.Inc),
		tokenstore.WithOpTimeout(cfg.TokenStoreOpTimeout),
	)
	defer hub.Close()

	tracker, err := visits.New(db,
		visits.WithLogger(logger),
		visits.WithRecordHook(m.Visits.Inc),
	)
	if err != nil {
		return err
	}
	defer tracker.Close()

	issuer, err := adminauth.NewIssuer(cfg.Admin.TokenSecret, cfg.Admin.TokenTTL, nil)
	if err != nil {
		return err
	}
	if cfg.Admin.TokenSecret == "" {
		logger.Warn("ADMIN_TOKEN_SECRET not set; admin sessions end on restart")
	}

	var mailer site.Mailer = site.DisabledMailer
	if cfg.MailEnabled() {
		mailer = site.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.ToEmail)
	} else {
		logger.Warn("SMTP not configured; the contact form will report failures")
	}

	content, err := site.LoadContent(cfg.ContentPath)
	if err != nil {
		return err
	}

	imagesDir := ""
	if fi, err := os.Stat("images"); err == nil && fi.IsDir() {
		imagesDir = "images"
	}

	srv, err := site.New(site.Options{
		Log:     logger,
		DB:      db,
		Hub:     hub,
		Visits:  tracker,
		Metrics: m,
		Content: content,
		Mailer:  mailer,
		Credentials: adminauth.Credentials{
			Username:     cfg.Admin.Username,
			Password:     cfg.Admin.Password,
			PasswordHash: cfg.Admin.PasswordHash,
		},
		Issuer:         issuer,
		Limiter:        adminauth.NewLimiter(cfg.Admin.LoginBurst, cfg.Admin.LoginInterval),
		CookieSecure:   cfg.CookieSecure,
		AllowedOrigins: cfg.AllowedOrigins,
		VisitRetention: cfg.VisitRetention,
		ImagesDir:      imagesDir,

		TabHeartbeat:        cfg.WSHeartbeat,
		TabHeartbeatTimeout: cfg.WSHeartbeatTimeout,
		TabRateInterval:     cfg.WSRateInterval,
		TabRateBurst:        cfg.WSRateBurst,
	})
	if err != nil {
		return err
	}
	router, err := srv.Router()
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server.start", "addr", httpSrv.Addr, "token_store", cfg.TokenStore)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return hub.Run(gctx)
	})
	g.Go(func() error {
		return srv.RunMaintenance(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("server.shutdown")
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(sctx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	tracker.Wait()
	return nil
}

// openBackend picks the token store named by TOKEN_STORE. Only postgres
// relays changes between server instances.
func openBackend(ctx context.Context, cfg config.Config, logger *slog.Logger, db *sql.DB) (tokenstore.Backend, func(), error) {
	noop := func() {}
	switch cfg.TokenStore {
	case "memory":
		return tokenstore.NewMemoryBackend(), noop, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		pg, err := tokenstore.NewPostgresBackend(pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		b, err := tokenstore.NewSQLiteBackend(db)
		return b, noop, err
	}
}
