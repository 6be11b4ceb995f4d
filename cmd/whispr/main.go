package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/chris/whispr/config"
	"github.com/chris/whispr/internal/agent"
	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/browser"
	"github.com/chris/whispr/internal/db"
	"github.com/chris/whispr/internal/llm"
	"github.com/chris/whispr/internal/mongostore"
	"github.com/chris/whispr/internal/service"
	"github.com/chris/whispr/internal/tools"
)

const usage = `usage: whispr [command]

  (none)           chat with the agent in the terminal
  serve            run the extension backend (and Discord bot if configured)
  sessions         list stored conversations
  bookmarks [id]   list bookmarks in a folder (top level by default)
  install          install and start the background service
  uninstall        remove the background service
  start|stop|restart|status|logs
`

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}

	// Service management doesn't need the model or the store.
	if serviceCmd, ok := serviceCommands[cmd]; ok {
		if err := serviceCmd(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
			os.Exit(1)
		}
		return
	}

	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	switch cmd {
	case "", "chat":
		a := mustSetup(cfg, logger, true)
		defer a.close()
		runCLI(a)
	case "serve":
		a := mustSetup(cfg, logger, true)
		defer a.close()
		if err := runServe(a); err != nil {
			fatal("server failed", err)
		}
	case "sessions":
		a := mustSetup(cfg, logger, false)
		defer a.close()
		if err := listSessions(a, os.Stdout); err != nil {
			fatal("listing sessions", err)
		}
	case "bookmarks":
		a := mustSetup(cfg, logger, false)
		defer a.close()
		folder := ""
		if len(os.Args) > 2 {
			folder = os.Args[2]
		}
		if err := listBookmarks(a, os.Stdout, folder); err != nil {
			fatal("listing bookmarks", err)
		}
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

var serviceCommands = map[string]func() error{
	"install":   service.Install,
	"uninstall": service.Uninstall,
	"start":     service.Start,
	"stop":      service.Stop,
	"restart":   service.Restart,
	"status":    service.Status,
	"logs":      service.Logs,
}

// app holds the wiring shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	client llm.Client

	db    *db.DB
	mongo *mongostore.Store
	store bridge.Store // nil for the memory backend
}

func mustSetup(cfg *config.Config, logger *slog.Logger, needModel bool) *app {
	a, err := setup(context.Background(), cfg, logger, needModel)
	if err != nil {
		fatal("startup failed", err)
	}
	return a
}

func setup(ctx context.Context, cfg *config.Config, logger *slog.Logger, needModel bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if needModel {
		client, err := llm.NewClient(ctx, cfg.Provider())
		if err != nil {
			return nil, fmt.Errorf("creating LLM client: %w", err)
		}
		a.client = client
	}

	// sqlite also backs local bookmarks, so it is opened for the mongo
	// backend too.
	if cfg.StoreBackend != "memory" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0700); err != nil {
			return nil, fmt.Errorf("creating database dir: %w", err)
		}
		database, err := db.Open(cfg.DatabasePath)
		if err != nil {
			return nil, err
		}
		a.db = database
		a.store = database
	}

	switch cfg.StoreBackend {
	case "sqlite", "memory":
	case "mongo":
		m, err := mongostore.Connect(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			a.close()
			return nil, err
		}
		a.mongo = m
		a.store = m
	default:
		a.close()
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	logger.Debug("setup complete", "provider", cfg.LLMProvider, "store", cfg.StoreBackend)
	return a, nil
}

func (a *app) close() {
	if a.mongo != nil {
		if err := a.mongo.Close(context.Background()); err != nil {
			a.logger.Warn("closing mongo", "error", err)
		}
	}
	if a.db != nil {
		a.db.Close()
	}
}

// localBrowser returns the headless browser used by the CLI and Discord.
func (a *app) localBrowser() *browser.Local {
	if a.db == nil {
		return browser.NewLocal(nil, a.logger)
	}
	return browser.NewLocal(a.db, a.logger)
}

// runner builds an agent whose tools drive b.
func (a *app) runner(b browser.Browser) bridge.Runner {
	registry := tools.NewRegistry().MustRegister(tools.BrowserTools(b)...)
	return agent.New(a.client, registry, a.cfg.Agent(), a.logger)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func fatal(msg string, err error) {
	slog.Error(msg, "error", err)
	os.Exit(1)
}
