package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsawler/go-mlplayground/livefeed"
	"github.com/tsawler/go-mlplayground/logging"
	"github.com/tsawler/go-mlplayground/playground"
)

func main() {
	var configPath = flag.String("config", "", "Path to a JSON configuration file")
	var addr = flag.String("addr", "", "Listen address (overrides the config file)")
	var headless = flag.Bool("headless", false, "Run every widget on a virtual clock, print summaries and exit")
	var ticks = flag.Int("ticks", 50, "Ticks per k-means and Q-learning run in headless mode")
	var seed = flag.Int64("seed", 0, "Random seed; 0 seeds from the clock")
	var plotURL = flag.String("plot-url", "", "Enable the plotting sidecar at this base URL")
	var logLevel = flag.String("log-level", "", "Log level: debug, info, warn or error")
	flag.Parse()

	cfg := playground.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = playground.LoadConfig(*configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags given on the command line win over the file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addr
		case "seed":
			cfg.Seed = *seed
		case "plot-url":
			cfg.Plotting.Enabled = *plotURL != ""
			cfg.Plotting.BaseURL = *plotURL
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(os.Stderr, level, "[playground] ")
	logging.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *headless {
		if err := playground.RunHeadless(ctx, os.Stdout, cfg, *ticks, logger); err != nil {
			logger.Errorf("headless run failed: %v", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg playground.Config, logger *logging.Logger) error {
	hub := livefeed.NewHub(logger)
	defer hub.Close()

	p, err := playground.New(cfg, playground.Options{Logger: logger, Feed: hub})
	if err != nil {
		return err
	}
	defer p.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	hub.Close()
	return server.Shutdown(shutdownCtx)
}
