package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/orbitsocial/backend/internal/config"
	"github.com/orbitsocial/backend/internal/db"
	"github.com/orbitsocial/backend/internal/logging"
	"github.com/orbitsocial/backend/internal/relationships"
)

// Run bootstraps the Orbit sync engine.
func Run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errors.New("expected command: run, users, or migrate")
	}

	switch args[0] {
	case "run":
		return run(ctx)
	case "users":
		return browseUsers(ctx, args[1:])
	case "migrate":
		return runMigrations(ctx)
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.UserID == "" {
		return errors.New("ORBIT_USER_ID must be set")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	slog.SetDefault(logger)
	ctx = logging.WithLogger(ctx, logger)

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := buildEngine(cfg, svc, logger)
	source, err := buildPushSource(cfg, logger)
	if err != nil {
		return err
	}

	unsubscribe := engine.Subscribe(func(snap relationships.Snapshot) {
		logger.Debug("relationship sets changed",
			slog.Int("friends", len(snap.Friends)),
			slog.Int("incoming", len(snap.Incoming)),
			slog.Int("outgoing", len(snap.Outgoing)),
		)
	})
	defer unsubscribe()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	runErr := make(chan error, 1)
	go func() {
		runErr <- engine.Run(runCtx, source, cfg.ResyncInterval)
	}()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("sync engine started", "user", cfg.UserID, "transport", cfg.PushTransport)

	return waitShutdown(ctx, cancel, signalCh, runErr, logger)
}

// waitShutdown blocks until the context ends, a termination signal arrives, or
// the engine run loop exits on its own. When the loop exited on its own there
// is nothing left to drain; otherwise the loop is cancelled and drained before
// returning.
func waitShutdown(ctx context.Context, cancel context.CancelFunc, signals <-chan os.Signal, runErr <-chan error, logger *slog.Logger) error {
	select {
	case <-ctx.Done():
		logger.Info("context canceled, shutting down")
	case sig := <-signals:
		logger.Info("received signal, shutting down", "signal", sig.String())
	case err := <-runErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	}

	cancel()
	<-runErr
	return nil
}

// browseUsers pages through the user directory and prints each entry with its
// relationship status relative to the local user. An optional argument filters
// by display name.
func browseUsers(ctx context.Context, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cfg.UserID == "" {
		return errors.New("ORBIT_USER_ID must be set")
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.LogLevel)}))
	ctx = logging.WithLogger(ctx, logger)

	svc, cleanup, err := buildService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	engine := buildEngine(cfg, svc, logger)
	if err := engine.Resync(ctx); err != nil {
		return err
	}

	browser, err := buildBrowser(ctx, cfg, svc, logger)
	if err != nil {
		return err
	}
	if len(args) > 0 {
		browser.SetQuery(args[0])
	}

	for browser.HasMore() {
		if err := browser.LoadMore(ctx); err != nil {
			return err
		}
	}

	for _, entry := range browser.Entries() {
		status := engine.ResolveStatus(entry.ID)
		fmt.Printf("%s\t%s\t%s", entry.ID, entry.DisplayName, status)
		if entry.AvatarURL != "" {
			fmt.Printf("\t%s", entry.AvatarURL)
		}
		fmt.Println()
	}

	return nil
}

func runMigrations(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	migrationDir := cfg.MigrationDir
	if !filepath.IsAbs(migrationDir) {
		wd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("determine working directory: %w", err)
		}
		migrationDir = filepath.Join(wd, migrationDir)
	}

	entries, err := os.ReadDir(migrationDir)
	if err != nil {
		return fmt.Errorf("read migrations directory: %w", err)
	}

	var migrations []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sql" {
			continue
		}
		migrations = append(migrations, entry.Name())
	}
	sort.Strings(migrations)

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
                version TEXT PRIMARY KEY,
                applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        )`); err != nil {
		return fmt.Errorf("ensure schema_migrations table: %w", err)
	}

	applied := make(map[string]struct{})
	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("fetch applied migrations: %w", err)
	}
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("scan applied migration: %w", err)
		}
		applied[version] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	for _, name := range migrations {
		if _, ok := applied[name]; ok {
			continue
		}

		contents, err := os.ReadFile(filepath.Join(migrationDir, name))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration transaction for %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(contents)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}

		fmt.Printf("applied migration %s\n", name)
	}

	return nil
}
