// Command raceserver runs the UWB race-control engine: UDP ingress,
// websocket broadcast/admin, and the fire-and-forget persistence worker,
// all supervised under one errgroup.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"xrace/config"
	"xrace/core"
	"xrace/broadcast"
	"xrace/ingress"
	"xrace/persistence"
)

var configPath = flag.String("config", "./config.yaml", "path to the YAML configuration file")

func run() error {
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	persist := persistence.New(cfg.PersistenceURL, 256, log)
	engine := core.New(cfg, persist, log)

	hub := broadcast.NewHub(engine, log)
	engine.SetHub(hub)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	httpServer := &http.Server{Addr: fmt.Sprintf(":%d", cfg.WSPort), Handler: mux}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		engine.Start(gctx)
		return nil
	})
	g.Go(func() error {
		done := make(chan struct{})
		go func() {
			<-gctx.Done()
			close(done)
		}()
		hub.Run(done)
		return nil
	})
	g.Go(func() error {
		persist.Run(gctx)
		return nil
	})
	g.Go(func() error {
		engine.RunStatsReporter(gctx, time.Duration(cfg.StatsReportInterval*float64(time.Second)))
		return nil
	})
	g.Go(func() error {
		return ingress.Run(gctx, ingress.Config{
			Port:        cfg.UDPPort,
			TagCount:    cfg.TagCount,
			AnchorCount: cfg.AnchorCount,
		}, engine, log)
	})
	g.Go(func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- httpServer.ListenAndServe() }()
		select {
		case <-gctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		case err := <-errCh:
			if err == http.ErrServerClosed {
				return nil
			}
			return fmt.Errorf("websocket server: %w", err)
		}
	})

	return g.Wait()
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
