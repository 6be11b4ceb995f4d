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

	"github.com/chris/whispr/internal/bridge"
	"github.com/chris/whispr/internal/discord"
	"github.com/chris/whispr/internal/extension"
	"github.com/chris/whispr/internal/scheduler"
)

const shutdownTimeout = 10 * time.Second

func runServe(a *app) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessions := bridge.NewManager(a.store, a.logger)

	ext := extension.NewServer(sessions, a.runner, a.logger)
	httpSrv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           ext.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("extension backend listening", "addr", a.cfg.ListenAddr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	if a.cfg.DiscordToken != "" {
		bot, err := discord.NewBot(a.cfg.DiscordToken, sessions, a.runner(a.localBrowser()), a.logger)
		if err != nil {
			return err
		}
		defer bot.Close()
	}

	sched := scheduler.New(sessions, a.cfg.SessionTTL, a.logger)
	if err := sched.Start(a.cfg.SessionSweepCron); err != nil {
		return err
	}
	defer sched.Stop()

	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case err := <-serveErr:
		return fmt.Errorf("listening on %s: %w", a.cfg.ListenAddr, err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}

	// Websocket connections are hijacked, so Shutdown does not wait for them.
	done := make(chan struct{})
	go func() {
		ext.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		a.logger.Warn("extension connections still open at shutdown")
	}
	return nil
}
