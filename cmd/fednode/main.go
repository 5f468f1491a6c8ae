// Copyright Fednode Contributors (https://github.com/blobfed/fednode)
// SPDX-License-Identifier: Apache-2.0

// Command fednode runs a single content-addressed federation node: it
// serves blobs, accepts pull-then-verify-then-store notifications, and
// gossips newly acquired blobs to a curated set of peers.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/blobfed/fednode/config"
	"github.com/blobfed/fednode/fetcher"
	"github.com/blobfed/fednode/gossip"
	"github.com/blobfed/fednode/httpserver"
	"github.com/blobfed/fednode/logging"
	"github.com/blobfed/fednode/metrics"
	"github.com/blobfed/fednode/registry"
	"github.com/blobfed/fednode/registry/file"
	"github.com/blobfed/fednode/registry/memory"
	"github.com/blobfed/fednode/registry/sqlstore"
	"github.com/blobfed/fednode/store"
	"github.com/blobfed/fednode/urlutil"
)

var logger = logging.Component("process")

var rootCmd = &cobra.Command{
	Use:   "fednode",
	Short: "Content-addressed HTTP federation node",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd.Context())
	},
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logging.SetFormat(cfg.LogFormat)

	logger.Info("starting fednode",
		"listen_address", cfg.ListenAddress,
		"public_url", cfg.PublicURL,
		"registry_backend", cfg.Registry.Backend,
		"allow_all", cfg.AllowAll,
		"allow_post", cfg.AllowPost,
	)

	blobStore, err := store.NewLocalFS(cfg.BlobDir)
	if err != nil {
		return fmt.Errorf("open blob store: %w", err)
	}

	reg, err := openRegistry(cfg.Registry)
	if err != nil {
		return fmt.Errorf("open peer registry: %w", err)
	}

	if err := seedRegistry(reg, cfg.Registry); err != nil {
		return fmt.Errorf("seed peer registry: %w", err)
	}

	queue := gossip.NewQueue(cfg.Gossip.QueueCapacity)
	client := fetcher.NewClient(cfg.Fetch.RequestTimeout)

	var m *metrics.Metrics
	var metricsServer *metrics.Server

	if cfg.Metrics.Enabled {
		metricsServer = metrics.New(cfg.Metrics.Address)
		m = metricsServer.Metrics

		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
	}

	worker := gossip.NewWorker(queue, reg, client, m)

	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	go worker.Run(workerCtx)

	httpOpts := httpserver.Options{
		PublicBaseURL:  cfg.PublicURL,
		AllowAll:       cfg.AllowAll,
		AllowPost:      cfg.AllowPost,
		RequestTimeout: cfg.Gossip.RequestTimeout,
	}

	server := httpserver.New(cfg.ListenAddress, blobStore, reg, queue, client, httpOpts, m)

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "address", cfg.ListenAddress)

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}

	if metricsServer != nil {
		if err := metricsServer.Stop(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	return nil
}

func openRegistry(cfg config.RegistryConfig) (registry.Registry, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil
	case "file":
		return file.New(cfg.FileDir)
	case "sql":
		return sqlstore.Open(cfg.SQLPath)
	default:
		return nil, fmt.Errorf("unsupported registry backend %q", cfg.Backend)
	}
}

func seedRegistry(reg registry.Registry, cfg config.RegistryConfig) error {
	for _, raw := range cfg.SeedNotifyPeers {
		u, err := urlutil.Parse(raw)
		if err != nil {
			logger.Warn("skipping invalid seed notify peer", "url", raw, "error", err)
			continue
		}
		if err := reg.AddNotify(u); err != nil {
			return err
		}
	}

	for _, raw := range cfg.SeedAllowOrigins {
		u, err := urlutil.Parse(raw)
		if err != nil {
			logger.Warn("skipping invalid seed allow origin", "url", raw, "error", err)
			continue
		}
		if err := reg.SetAllow(urlutil.OriginOf(u)); err != nil {
			return err
		}
	}

	for _, raw := range cfg.SeedDenyOrigins {
		u, err := urlutil.Parse(raw)
		if err != nil {
			logger.Warn("skipping invalid seed deny origin", "url", raw, "error", err)
			continue
		}
		if err := reg.SetDeny(urlutil.OriginOf(u)); err != nil {
			return err
		}
	}

	return nil
}
