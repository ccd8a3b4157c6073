package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/repairhub/api/internal/blob"
	"github.com/repairhub/api/internal/catalog"
	"github.com/repairhub/api/internal/config"
	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/logger"
	"github.com/repairhub/api/internal/mail"
	"github.com/repairhub/api/internal/middleware"
	"github.com/repairhub/api/internal/router"
	"github.com/repairhub/api/internal/ws"
	"github.com/repairhub/api/migrations"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:   "repairhub",
		Usage:  "appliance repair order API",
		Action: serve,
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP server",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back schema migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Usage:  "apply all pending migrations",
						Action: migrateUp,
					},
					{
						Name:  "down",
						Usage: "roll back migrations",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
						},
						Action: migrateDown,
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger.Init(cfg.AppEnv)
	return cfg, nil
}

func migrateUp(_ *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := migrations.Up(cfg.DatabaseURL); err != nil {
		return err
	}
	logger.L().Info("migrations applied")
	return nil
}

func migrateDown(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	steps := c.Int("steps")
	if err := migrations.Down(cfg.DatabaseURL, steps); err != nil {
		return err
	}
	logger.L().Info("migrations rolled back", zap.Int("steps", steps))
	return nil
}

func serve(c *cli.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()
	log := logger.L()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	log.Info("connected to database")

	kinds := catalog.Default()
	if cfg.CatalogFile != "" {
		kinds, err = catalog.Load(cfg.CatalogFile)
		if err != nil {
			return err
		}
		log.Info("loaded appliance catalog", zap.String("file", cfg.CatalogFile), zap.Int("kinds", len(kinds.Kinds())))
	}

	blobs, err := blob.NewFSStore(cfg.MediaRoot, cfg.MediaURL)
	if err != nil {
		return err
	}

	var mailer mail.Mailer
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
		})
	} else {
		log.Warn("SMTP_HOST not set, reset emails are written to the log")
		mailer = mail.NewLogMailer(log)
	}

	hub := ws.NewHub(log)
	go hub.Run(ctx)

	limiter := middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst)
	go limiter.Run(ctx)

	r := router.New(router.Deps{
		Config:  cfg,
		Pool:    pool,
		Queries: database.New(pool),
		Blobs:   blobs,
		Catalog: kinds,
		Hub:     hub,
		Mailer:  mailer,
		Limiter: limiter,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", zap.String("addr", srv.Addr), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
