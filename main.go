package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/guitarmidi/hub/internal/config"
	"github.com/guitarmidi/hub/internal/effects"
	"github.com/guitarmidi/hub/internal/midi"
	"github.com/guitarmidi/hub/internal/preset"
	"github.com/guitarmidi/hub/internal/server"
)

// activeChannels is the fixed set of synth channels the pinned controller
// types play on: six string channels, the drum channel and the master channel.
var activeChannels = []uint8{0, 1, 2, 3, 4, 5, 9, 15}

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("load config: %v", err)
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}

	rules, err := midi.LoadRules(cfg.RulesPath)
	if err != nil {
		logrus.Fatalf("load classification rules: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0755); err != nil {
		logrus.Fatalf("create data directory: %v", err)
	}
	store, err := preset.Open(cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("open preset store: %v", err)
	}
	defer store.Close()

	synth, err := midi.OpenSynth(cfg.SynthPort)
	if err != nil {
		logrus.Fatalf("connect synth backend: %v", err)
	}

	storedFx, err := store.LoadEffects()
	if err != nil {
		logrus.WithError(err).Warn("stored effects unavailable, using defaults")
	}
	fx := effects.New(synth, activeChannels, storedFx, store.SaveEffects)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	activity := midi.NewActivityLog(cfg.ActivitySize)
	registry := midi.NewRegistry(rules)
	writer := preset.NewWriter(store, 64)
	go writer.Run(ctx)

	router := midi.NewRouter(registry, store, writer, fx, synth, activity)
	srv := server.New(cfg.ListenAddr, router, store, fx, activity)
	router.SetNotify(srv.NotifyChange)
	registry.SetOnChange(func() { srv.NotifyChange("controllers") })

	manager := midi.NewManager(registry, router, []string{cfg.SynthPort}, time.Duration(cfg.ScanIntervalMS)*time.Millisecond)
	go manager.Run(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logrus.WithField("signal", sig).Info("shutting down")
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Error("server stopped")
		}
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("graceful shutdown failed")
	}
}
