// Command migrate applies the PostgreSQL schema used by the postgres store.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/okian/lanes/internal/config"
	"github.com/spf13/cobra"
)

// Exit codes for the migrate command.
const (
	exitSuccess = 0
	exitFailure = 1
)

// defaultMigrationsPath is relative to the repository root.
const defaultMigrationsPath = "file://migrations"

// migrator is the part of *migrate.Migrate the commands drive.
type migrator interface {
	Up() error
	Down() error
	Steps(n int) error
	Version() (uint, bool, error)
	Close() (error, error)
}

type options struct {
	path string
	dsn  string
	open func(path, dsn string) (migrator, error)
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	cmd := newRootCommand(&options{open: openMigrate})
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return exitFailure
	}
	return exitSuccess
}

func openMigrate(path, dsn string) (migrator, error) {
	m, err := migrate.New(path, dsn)
	if err != nil {
		return nil, fmt.Errorf("create migrate instance: %w", err)
	}
	return m, nil
}

func newRootCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the lanes PostgreSQL schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.dsn != "" {
				return nil
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.PostgresDSN == "" {
				return errors.New("no database: set --dsn or LANES_POSTGRES_DSN")
			}
			opts.dsn = cfg.PostgresDSN
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.path, "path", defaultMigrationsPath, "migrations source URL")
	cmd.PersistentFlags().StringVar(&opts.dsn, "dsn", "", "postgres URL (defaults to LANES_POSTGRES_DSN)")

	cmd.AddCommand(
		newStepCommand(opts, "up", "Apply all pending migrations", func(m migrator) error { return m.Up() }),
		newStepCommand(opts, "down", "Roll back the last migration", func(m migrator) error { return m.Steps(-1) }),
		newStepCommand(opts, "reset", "Roll back every migration", func(m migrator) error { return m.Down() }),
		newVersionCommand(opts),
	)
	return cmd
}

func newStepCommand(opts *options, use, short string, step func(migrator) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m migrator) error {
				err := step(m)
				if errors.Is(err, migrate.ErrNoChange) {
					cmd.Println("No migrations to apply")
					return nil
				}
				if err != nil {
					return fmt.Errorf("migration %s: %w", use, err)
				}
				cmd.Printf("Migration %s completed successfully\n", use)
				return nil
			})
		},
	}
}

func newVersionCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the applied schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withMigrator(opts, func(m migrator) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					cmd.Println("No migrations applied")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				cmd.Printf("version=%d dirty=%t\n", v, dirty)
				return nil
			})
		},
	}
}

func withMigrator(opts *options, fn func(migrator) error) error {
	m, err := opts.open(opts.path, opts.dsn)
	if err != nil {
		return err
	}
	defer func() { _, _ = m.Close() }()
	return fn(m)
}
