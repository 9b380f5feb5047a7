package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/server"
	"github.com/Eskedar21/VIMS-sub000/internal/syncer"
)

var (
	serveListen string
	serveNoSync bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the kiosk API and the background sync scheduler",
		Long: `Start the local HTTP API used by the kiosk front-end. Inspections are saved
to the local record store and a background scheduler sends pending records
to the central system every sync.interval.

By default, the server listens on the address configured in the config file
(default: 127.0.0.1:8765). Use --listen to override.`,
		Example: `  vims serve
  vims serve --listen 0.0.0.0:8765
  vims serve --no-sync`,
		RunE: serveRun,
	}

	cmd.Flags().StringVar(&serveListen, "listen", "", "address to listen on (host:port)")
	cmd.Flags().BoolVar(&serveNoSync, "no-sync", false, "do not run the background sync scheduler")

	return cmd
}

func serveRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalCfg == nil {
		return fmt.Errorf("config not loaded")
	}
	if globalRecorder == nil || globalSync == nil {
		return fmt.Errorf("components not initialized")
	}

	listen := serveListen
	if listen == "" {
		listen = globalCfg.Server.Listen
	}

	log.Info("server starting", "listen", listen, "data_dir", globalCfg.Server.DataDir,
		"api", globalRemote.BaseURL(), "mocks", globalRemote.UsesMocks())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sched *syncer.Scheduler
	if globalCfg.Sync.Enabled && !serveNoSync {
		sched = syncer.NewScheduler(globalSync, globalCfg.Sync.Interval, logger)
		if err := sched.Start(ctx); err != nil {
			return fmt.Errorf("failed to start sync scheduler: %w", err)
		}
		defer func() {
			cancel()
			sched.Stop()
		}()
	} else {
		log.Info("background sync disabled")
	}

	srv := server.NewServer(globalRecorder, globalStore, globalSync, globalCache, globalCfg, logger)

	errChan := make(chan error, 1)

	go func() {
		fmt.Printf("Starting server on %s...\n", listen)
		if err := srv.Start(listen); err != nil {
			errChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		log.Info("received shutdown signal", "signal", sig)
		fmt.Println("\nShutting down server...")

		// stop in-flight sync uploads; they go back to pending
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}

		fmt.Println("Server stopped gracefully")
	}

	return nil
}
