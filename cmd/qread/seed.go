// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 QRead Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/qread/qread/internal/account"
	"github.com/qread/qread/internal/apperr"
	"github.com/qread/qread/internal/config"
	"github.com/qread/qread/internal/logging"
	"github.com/qread/qread/internal/provision"
)

// Default timeout for seed command.
const defaultSeedTimeout = 30 * time.Second

// seedConfig holds configuration for the seed command.
type seedConfig struct {
	file    string
	timeout time.Duration
}

// seedFile is the YAML layout read by seed.
type seedFile struct {
	Accounts []seedAccount `yaml:"accounts"`
}

type seedAccount struct {
	Name     string `yaml:"name"`
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	Role     string `yaml:"role"`
}

// NewSeedCmd creates the seed subcommand.
func NewSeedCmd() *cobra.Command {
	cfg := &seedConfig{}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create accounts from a YAML file",
		Long: `Creates the accounts listed in a YAML file, typically the first
administrator. This command is idempotent: an account whose email is
already registered is skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd, cfg)
		},
	}

	cmd.Flags().StringVar(&cfg.file, "file", "", "accounts file (required)")
	cmd.Flags().DurationVar(&cfg.timeout, "timeout", defaultSeedTimeout, "timeout for database operations (e.g., 30s, 1m)")
	cmd.Flags().String("database-url", "", "PostgreSQL connection URL")

	return cmd
}

func runSeed(cmd *cobra.Command, sc *seedConfig) error {
	if sc.file == "" {
		return oops.Code("CONFIG_INVALID").Errorf("--file is required")
	}
	accounts, err := readSeedFile(sc.file)
	if err != nil {
		return err
	}

	cfg, err := config.Load(config.ResolvePath(configFile), cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("a database url is required (DATABASE_URL, database.url or --database-url)")
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.Setup(serviceName, version, cfg.Log.Format, level, cmd.ErrOrStderr())

	ctx, cancel := context.WithTimeout(cmd.Context(), sc.timeout)
	defer cancel()

	cmd.Println("Connecting to database...")
	comps, err := newComponents(ctx, cfg, logger, nil)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer comps.close(context.Background(), logger)

	created, err := seedAccounts(ctx, cmd, comps.provision, accounts, logger)
	if err != nil {
		return err
	}
	cmd.Printf("Seeding complete: %d created, %d skipped\n", created, len(accounts)-created)
	return nil
}

func readSeedFile(path string) ([]seedAccount, error) {
	raw, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return nil, oops.Code("SEED_FAILED").With("path", path).Wrap(err)
	}
	var f seedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, oops.Code("SEED_FAILED").With("path", path).Wrap(err)
	}
	if len(f.Accounts) == 0 {
		return nil, oops.Code("SEED_FAILED").With("path", path).Errorf("no accounts listed")
	}
	return f.Accounts, nil
}

// seedAccounts creates each account, skipping registered emails, and
// returns how many were created.
func seedAccounts(ctx context.Context, cmd *cobra.Command, svc *provision.Service, accounts []seedAccount, logger *slog.Logger) (int, error) {
	created := 0
	for _, sa := range accounts {
		role, err := account.ParseRole(sa.Role)
		if err != nil {
			return created, err
		}
		a, err := svc.CreateAccount(ctx, sa.Name, sa.Email, sa.Password, role)
		if apperr.Is(err, apperr.KindAlreadyExists) {
			cmd.Printf("Account %s already exists, skipping\n", sa.Email)
			continue
		}
		if err != nil {
			return created, oops.Code("SEED_FAILED").With("email", sa.Email).Wrap(err)
		}
		created++
		cmd.Printf("Created %s account %s\n", a.Role, a.Email)
		logger.Info("seeded account", "account_id", a.ID, "role", a.Role)
	}
	return created, nil
}
