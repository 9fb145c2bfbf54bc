package cmd

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/chatrelay/internal/config"
	"github.com/nextlevelbuilder/chatrelay/internal/store/pg"
	"github.com/nextlevelbuilder/chatrelay/internal/upgrade"
	"github.com/nextlevelbuilder/chatrelay/pkg/protocol"
)

var migrationsDir string

// migrationsSource finds the migrations directory: flag, then
// CHATRELAY_MIGRATIONS_DIR, then next to the binary.
func migrationsSource() string {
	dir := migrationsDir
	if dir == "" {
		dir = os.Getenv("CHATRELAY_MIGRATIONS_DIR")
	}
	if dir == "" {
		dir = "migrations"
		if exe, err := os.Executable(); err == nil {
			dir = filepath.Join(filepath.Dir(exe), "migrations")
		}
	}
	return "file://" + dir
}

func newMigrator(dsn string) (*migrate.Migrate, error) {
	m, err := migrate.New(migrationsSource(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open migrations: %w", err)
	}
	return m, nil
}

// managedDSN loads the config and insists on managed mode.
func managedDSN() (string, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return "", fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.PostgresDSN == "" {
		return "", errors.New("migrations need CHATRELAY_POSTGRES_DSN (standalone mode has no schema)")
	}
	return cfg.Database.PostgresDSN, nil
}

// migration is one `migrate` subcommand that operates on an open migrator.
type migration struct {
	use, short string
	args       cobra.PositionalArgs
	run        func(ctx context.Context, dsn string, m *migrate.Migrate, args []string) error
}

func (mg migration) command() *cobra.Command {
	return &cobra.Command{
		Use:   mg.use,
		Short: mg.short,
		Args:  mg.args,
		RunE: func(cmd *cobra.Command, args []string) error {
			dsn, err := managedDSN()
			if err != nil {
				return err
			}
			m, err := newMigrator(dsn)
			if err != nil {
				return err
			}
			defer m.Close()
			return mg.run(cmd.Context(), dsn, m, args)
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the Postgres schema (managed mode)",
	}
	cmd.PersistentFlags().StringVar(&migrationsDir, "migrations-dir", "", "migrations directory (default: next to the binary)")

	steps := 1
	down := migration{use: "down", short: "Roll back migrations", args: cobra.NoArgs,
		run: func(_ context.Context, _ string, m *migrate.Migrate, _ []string) error {
			if steps < 1 {
				steps = 1
			}
			return logVersion(m, "rolled back", ignoreNoChange(m.Steps(-steps)))
		}}.command()
	down.Flags().IntVarP(&steps, "steps", "n", 1, "number of migrations to roll back")

	var yes bool
	drop := migration{use: "drop", short: "Drop every table (destructive)", args: cobra.NoArgs,
		run: func(_ context.Context, _ string, m *migrate.Migrate, _ []string) error {
			if !yes {
				return errors.New("refusing to drop without --yes")
			}
			if err := m.Drop(); err != nil {
				return fmt.Errorf("drop: %w", err)
			}
			slog.Warn("all tables dropped")
			return nil
		}}.command()
	drop.Flags().BoolVar(&yes, "yes", false, "confirm dropping every table")

	cmd.AddCommand(
		migration{use: "up", short: "Apply pending SQL migrations, then data hooks", args: cobra.NoArgs,
			run: func(ctx context.Context, dsn string, m *migrate.Migrate, _ []string) error {
				return logVersion(m, "migrated", applyMigrations(ctx, dsn, m))
			}}.command(),
		down,
		migration{use: "version", short: "Print the schema version", args: cobra.NoArgs,
			run: func(_ context.Context, _ string, m *migrate.Migrate, _ []string) error {
				v, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Println("version: none (fresh database)")
					return nil
				}
				if err != nil {
					return fmt.Errorf("read version: %w", err)
				}
				fmt.Printf("version: %d, dirty: %v\n", v, dirty)
				return nil
			}}.command(),
		migration{use: "force <version>", short: "Set the recorded version without running SQL", args: cobra.ExactArgs(1),
			run: func(_ context.Context, _ string, m *migrate.Migrate, args []string) error {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("version %q: %w", args[0], err)
				}
				return logVersion(m, "forced", m.Force(v))
			}}.command(),
		migration{use: "goto <version>", short: "Migrate up or down to a version", args: cobra.ExactArgs(1),
			run: func(_ context.Context, _ string, m *migrate.Migrate, args []string) error {
				v, err := strconv.ParseUint(args[0], 10, 32)
				if err != nil {
					return fmt.Errorf("version %q: %w", args[0], err)
				}
				return logVersion(m, "moved", ignoreNoChange(m.Migrate(uint(v))))
			}}.command(),
		drop,
		migrateStatusCmd(),
	)
	return cmd
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

// logVersion reports the version after an operation, or its error.
func logVersion(m *migrate.Migrate, what string, err error) error {
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	v, dirty, _ := m.Version()
	slog.Info("schema "+what, "version", v, "dirty", dirty)
	return nil
}

// applyMigrations runs SQL migrations and then the registered data hooks.
func applyMigrations(ctx context.Context, dsn string, m *migrate.Migrate) error {
	if err := ignoreNoChange(m.Up()); err != nil {
		return fmt.Errorf("up: %w", err)
	}
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("connect for data hooks: %w", err)
	}
	defer db.Close()

	n, err := upgrade.RunPendingHooks(ctx, db)
	if err != nil {
		return fmt.Errorf("data hooks: %w", err)
	}
	if n > 0 {
		slog.Info("data hooks applied", "count", n)
	}
	return nil
}

// status needs only a connection, not a migrator.
func migrateStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Compare the schema with what this binary requires",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dsn, err := managedDSN()
			if err != nil {
				return err
			}
			db, err := pg.OpenDB(dsn)
			if err != nil {
				return fmt.Errorf("connect: %w", err)
			}
			defer db.Close()
			return printSchemaStatus(cmd.Context(), db)
		},
	}
}

func printSchemaStatus(ctx context.Context, db *sql.DB) error {
	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("check schema: %w", err)
	}
	fmt.Printf("  Binary:   %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  Schema:   v%d of v%d, %s\n", s.CurrentVersion, s.RequiredVersion, strings.ToUpper(string(s.State)))

	pending, err := upgrade.PendingHooks(ctx, db)
	switch {
	case err != nil:
		slog.Debug("pending data hooks unavailable", "error", err)
	case len(pending) > 0:
		fmt.Printf("  Hooks:    %d pending (%s)\n", len(pending), strings.Join(pending, ", "))
	}
	if advice := s.Advice(); advice != "" {
		fmt.Printf("\n%s\n", advice)
	}
	return nil
}

// checkSchemaOrAutoUpgrade gates gateway startup on schema compatibility.
// With CHATRELAY_AUTO_UPGRADE=true an outdated schema is migrated inline.
func checkSchemaOrAutoUpgrade(ctx context.Context, dsn string) error {
	db, err := pg.OpenDB(dsn)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	defer db.Close()

	s, err := upgrade.CheckSchema(ctx, db)
	if err != nil {
		return fmt.Errorf("schema check: %w", err)
	}
	if s.Compatible() {
		slog.Info("schema check passed", "current", s.CurrentVersion, "required", s.RequiredVersion)
		return nil
	}
	if !errors.Is(s.Err(), upgrade.ErrSchemaOutdated) || os.Getenv("CHATRELAY_AUTO_UPGRADE") != "true" {
		return fmt.Errorf("%w\n%s", s.Err(), s.Advice())
	}

	slog.Info("auto-upgrade: applying migrations", "from", s.CurrentVersion, "to", s.RequiredVersion)
	m, err := newMigrator(dsn)
	if err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	defer m.Close()
	if err := applyMigrations(ctx, dsn, m); err != nil {
		return fmt.Errorf("auto-upgrade: %w", err)
	}
	slog.Info("auto-upgrade complete")
	return nil
}
