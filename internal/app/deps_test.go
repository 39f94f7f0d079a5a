package app

import (
	"context"
	"log/slog"
	"testing"

	"github.com/orbitsocial/backend/internal/config"
	"github.com/orbitsocial/backend/internal/directory"
	"github.com/orbitsocial/backend/internal/push"
	"github.com/orbitsocial/backend/internal/remote"
)

func TestBuildServiceAPIBackend(t *testing.T) {
	cfg := config.Config{
		Backend:    config.BackendAPI,
		APIBaseURL: "http://localhost:8080",
		APIToken:   "token",
		UserID:     "u",
		PageSize:   25,
	}

	svc, cleanup, err := buildService(context.Background(), cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer cleanup()

	if _, ok := svc.(*remote.Client); !ok {
		t.Fatalf("expected API client backend, got %T", svc)
	}

	engine := buildEngine(cfg, svc, slog.Default())
	if got := engine.Snapshot().Self; got != "u" {
		t.Fatalf("expected engine bound to user %q, got %q", "u", got)
	}
}

func TestBuildServiceUnknownBackend(t *testing.T) {
	cfg := config.Config{Backend: "tape-drive"}

	if _, _, err := buildService(context.Background(), cfg, slog.Default()); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestBuildPushSourceWebsocket(t *testing.T) {
	cfg := config.Config{PushTransport: config.PushWebsocket, PushURL: "ws://localhost:8080/events"}

	source, err := buildPushSource(cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := source.(*push.SocketSource); !ok {
		t.Fatalf("expected websocket source, got %T", source)
	}
}

func TestBuildPushSourceNATS(t *testing.T) {
	cfg := config.Config{
		PushTransport: config.PushNATS,
		NATSURL:       "nats://localhost:4222",
		NATSSubject:   "orbit.events",
		UserID:        "u",
	}

	source, err := buildPushSource(cfg, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	natsSource, ok := source.(*push.NATSSource)
	if !ok {
		t.Fatalf("expected nats source, got %T", source)
	}
	if got := natsSource.Subject(); got != "orbit.events.u" {
		t.Fatalf("unexpected subject %q", got)
	}
}

func TestBuildPushSourceUnknownTransport(t *testing.T) {
	cfg := config.Config{PushTransport: "carrier-pigeon"}

	if _, err := buildPushSource(cfg, slog.Default()); err == nil {
		t.Fatal("expected error for unknown transport")
	}
}

type stubDirectoryService struct{}

func (stubDirectoryService) ListUsers(context.Context, string, int) (directory.Page, error) {
	return directory.Page{}, nil
}

func (stubDirectoryService) SearchUsers(context.Context, string, string, int) (directory.Page, error) {
	return directory.Page{}, nil
}

func TestBuildBrowserWithoutObjectStore(t *testing.T) {
	cfg := config.Config{PageSize: 10}

	browser, err := buildBrowser(context.Background(), cfg, stubDirectoryService{}, slog.Default())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if browser == nil {
		t.Fatal("expected browser to be configured")
	}
}

func TestLogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"":      slog.LevelInfo,
	}
	for input, want := range cases {
		if got := logLevel(input); got != want {
			t.Fatalf("logLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
