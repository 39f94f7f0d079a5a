package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/orbitsocial/backend/internal/config"
	"github.com/orbitsocial/backend/internal/db"
	"github.com/orbitsocial/backend/internal/directory"
	"github.com/orbitsocial/backend/internal/push"
	"github.com/orbitsocial/backend/internal/relationships"
	"github.com/orbitsocial/backend/internal/remote"
	"github.com/orbitsocial/backend/internal/repositories"
	"github.com/orbitsocial/backend/internal/storage"
)

// backendService is what a relationship backend provides: the mutation and
// listing operations the engine consumes, plus the user directory.
type backendService interface {
	relationships.Service
	directory.Service
}

// buildService selects the relationship backend from configuration. The
// returned cleanup releases backend resources and is never nil.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger) (backendService, func(), error) {
	switch cfg.Backend {
	case config.BackendAPI:
		client := remote.NewClient(remote.ClientConfig{
			BaseURL:            cfg.APIBaseURL,
			Token:              cfg.APIToken,
			MutationsPerMinute: 60,
			Logger:             logger,
		})
		return client, func() {}, nil
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := repositories.NewPostgresRelationshipStore(pool, relationships.UserID(cfg.UserID))
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// buildEngine wires the sync engine against the selected backend.
func buildEngine(cfg config.Config, svc relationships.Service, logger *slog.Logger) *relationships.Engine {
	return relationships.NewEngine(relationships.UserID(cfg.UserID), svc, relationships.Options{
		PageSize:        cfg.PageSize,
		DispatchTimeout: cfg.DispatchTimeout,
		Logger:          logger,
	})
}

// buildPushSource selects the push transport from configuration.
func buildPushSource(cfg config.Config, logger *slog.Logger) (relationships.EventSource, error) {
	switch cfg.PushTransport {
	case config.PushWebsocket:
		return push.NewSocketSource(cfg.PushURL, cfg.APIToken, logger), nil
	case config.PushNATS:
		return push.NewNATSSource(cfg.NATSURL, cfg.NATSSubject, relationships.UserID(cfg.UserID), logger), nil
	default:
		return nil, fmt.Errorf("unknown push transport %q", cfg.PushTransport)
	}
}

// buildBrowser wires the directory browser, with avatar resolution when an
// object store bucket is configured.
func buildBrowser(ctx context.Context, cfg config.Config, svc directory.Service, logger *slog.Logger) (*directory.Browser, error) {
	var avatars directory.AvatarResolver
	if cfg.ObjectStore.Bucket != "" {
		store, err := storage.NewAvatarStore(ctx, cfg.ObjectStore)
		if err != nil {
			return nil, fmt.Errorf("configure avatar store: %w", err)
		}
		avatars = directory.NewCachingResolver(store, cfg.ObjectStore.URLTTL)
	}
	return directory.NewBrowser(svc, avatars, cfg.PageSize, logger), nil
}

func logLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
