package main

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/chris/whispr/config"
	"github.com/chris/whispr/internal/browser"
	"github.com/chris/whispr/internal/db"
	"github.com/chris/whispr/internal/llm"
)

func testApp(t *testing.T) *app {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return &app{cfg: &config.Config{StoreBackend: "sqlite"}, logger: slog.Default(), db: database, store: database}
}

func TestSetup_MemoryBackend(t *testing.T) {
	a, err := setup(context.Background(), &config.Config{StoreBackend: "memory"}, slog.Default(), false)
	if err != nil {
		t.Fatal(err)
	}
	if a.store != nil || a.db != nil {
		t.Error("memory backend should not open a store")
	}
	if err := listSessions(a, &bytes.Buffer{}); err == nil {
		t.Error("expected error listing sessions without a database")
	}
}

func TestSetup_UnknownBackend(t *testing.T) {
	cfg := &config.Config{StoreBackend: "redis", DatabasePath: t.TempDir() + "/w.db"}
	if _, err := setup(context.Background(), cfg, slog.Default(), false); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestListSessions(t *testing.T) {
	a := testApp(t)
	var out bytes.Buffer
	if err := listSessions(a, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "no stored sessions") {
		t.Errorf("unexpected output %q", out.String())
	}

	msgs := []llm.Message{{Role: llm.RoleUser, Content: "hi"}, {Role: llm.RoleAssistant, Content: "hello"}}
	if err := a.db.SaveConversation(context.Background(), "cli", msgs); err != nil {
		t.Fatal(err)
	}
	out.Reset()
	if err := listSessions(a, &out); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "cli") || !strings.Contains(out.String(), "2") {
		t.Errorf("session missing from output %q", out.String())
	}
}

func TestListBookmarks(t *testing.T) {
	a := testApp(t)
	ctx := context.Background()
	folder, err := a.db.CreateBookmark(ctx, browser.Bookmark{Title: "Reading"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.db.CreateBookmark(ctx, browser.Bookmark{ParentID: folder.ID, Title: "Go", URL: "https://go.dev"}); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := listBookmarks(a, &out, ""); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "[Reading]") {
		t.Errorf("folder missing from %q", out.String())
	}

	out.Reset()
	if err := listBookmarks(a, &out, folder.ID); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), "https://go.dev") {
		t.Errorf("bookmark missing from %q", out.String())
	}
}

func TestNewLogger(t *testing.T) {
	ctx := context.Background()
	if !newLogger("debug").Enabled(ctx, slog.LevelDebug) {
		t.Error("debug level not enabled")
	}
	if newLogger("warn").Enabled(ctx, slog.LevelInfo) {
		t.Error("info enabled at warn level")
	}
	if !newLogger("nonsense").Enabled(ctx, slog.LevelInfo) {
		t.Error("bad level should fall back to info")
	}
}
