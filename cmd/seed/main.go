package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/repairhub/api/internal/auth"
	"github.com/repairhub/api/internal/config"
	"github.com/repairhub/api/internal/database"
	"github.com/repairhub/api/internal/logger"
)

func main() {
	app := &cli.App{
		Name:  "seed",
		Usage: "create the initial staff account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "username", Value: "admin", EnvVars: []string{"SEED_USERNAME"}, Usage: "staff username"},
			&cli.StringFlag{Name: "email", Value: "admin@repairhub.local", EnvVars: []string{"SEED_EMAIL"}, Usage: "staff email address"},
			&cli.StringFlag{Name: "password", EnvVars: []string{"SEED_PASSWORD"}, Usage: "staff password", Required: true},
			&cli.StringFlag{Name: "phone", EnvVars: []string{"SEED_PHONE"}, Usage: "staff phone number"},
		},
		Action: seed,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func seed(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger.Init(cfg.AppEnv)
	defer logger.Sync()
	log := logger.L()

	username := c.String("username")
	password := c.String("password")
	if err := auth.ValidatePassword(password, username); err != nil {
		return fmt.Errorf("seed password: %w", err)
	}

	ctx := c.Context
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}

	userID, created, err := seedStaff(ctx, database.New(pool), database.CreateUserParams{
		Username: username,
		Email:    c.String("email"),
		Phone:    c.String("phone"),
		IsStaff:  true,
	}, password)
	if err != nil {
		return err
	}

	if created {
		log.Info("seeded staff user", zap.String("username", username), zap.String("id", userID))
	} else {
		log.Info("staff user already exists, skipping", zap.String("username", username), zap.String("id", userID))
	}
	return nil
}

type seedStore interface {
	GetUserByUsername(ctx context.Context, username string) (database.User, error)
	CreateUser(ctx context.Context, arg database.CreateUserParams) (database.User, error)
}

// seedStaff creates the staff account unless the username is already taken.
func seedStaff(ctx context.Context, store seedStore, params database.CreateUserParams, password string) (string, bool, error) {
	existing, err := store.GetUserByUsername(ctx, params.Username)
	if err == nil {
		return existing.ID.String(), false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return "", false, fmt.Errorf("check user: %w", err)
	}

	params.HashedPassword, err = auth.HashPassword(password)
	if err != nil {
		return "", false, fmt.Errorf("hash password: %w", err)
	}
	user, err := store.CreateUser(ctx, params)
	if err != nil {
		return "", false, fmt.Errorf("create user: %w", err)
	}
	return user.ID.String(), true, nil
}
