package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

var (
	syncRequeueFailed bool
	syncDryRun        bool
)

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Send pending inspections to the central system",
		Long: `Send queued inspections to the central inspection system once and exit.

The sync command will:
  1. Optionally move failed entries back to pending (--requeue-failed)
  2. Collect pending entries, plus failed ones still under sync.max_retries
  3. Upload them in batches of sync.batch_size, concurrently within a batch
  4. Mark each entry synced or failed with the error it returned

Use --dry-run to list what would be sent.`,
		Example: `  vims sync
  vims sync --requeue-failed
  vims sync --dry-run`,
		Args: cobra.NoArgs,
		RunE: syncRun,
	}

	cmd.Flags().BoolVar(&syncRequeueFailed, "requeue-failed", false, "move failed entries back to pending first")
	cmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "show what would be sent without sending")

	return cmd
}

func syncRun(cmd *cobra.Command, args []string) error {
	log := slog.Default()

	if globalStore == nil || globalSync == nil {
		return fmt.Errorf("sync service not initialized")
	}

	if syncRequeueFailed && !syncDryRun {
		n, err := globalStore.RequeueFailed()
		if err != nil {
			return fmt.Errorf("failed to requeue failed entries: %w", err)
		}
		fmt.Printf("Requeued %d failed inspection(s)\n", n)
	}

	if syncDryRun {
		var (
			list []store.Inspection
			err  error
		)
		switch {
		case syncRequeueFailed:
			// every failed entry would be requeued first, whatever its retry count
			list, err = globalStore.ListSyncCandidates(math.MaxInt32)
		case globalCfg.Sync.RetryFailed:
			list, err = globalStore.ListSyncCandidates(globalCfg.Sync.MaxRetries)
		default:
			list, err = globalStore.ListPendingSync()
		}
		if err != nil {
			return fmt.Errorf("failed to list sync candidates: %w", err)
		}
		fmt.Println("DRY RUN: the following inspections would be sent:")
		printInspectionTable(list)
		return nil
	}

	ctx, cancel := interruptContext()
	defer cancel()

	log.Info("sync operation", "api", globalRemote.BaseURL(), "mocks", globalRemote.UsesMocks())
	return syncPass(ctx)
}

// syncPass runs one sync pass and prints its summary.
func syncPass(ctx context.Context) error {
	report, err := globalSync.Trigger(ctx)
	if errors.Is(err, context.Canceled) {
		fmt.Println("Sync interrupted; unsent inspections stay pending")
		if report != nil {
			fmt.Printf("  Synced before interrupt: %d of %d\n", report.Succeeded, report.Total)
		}
		return fmt.Errorf("sync interrupted: %w", err)
	}
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if report.Total == 0 {
		fmt.Println("Nothing to sync")
		return nil
	}

	fmt.Println("")
	fmt.Println("Sync Summary")
	fmt.Println("============")
	fmt.Printf("  Total:     %d\n", report.Total)
	fmt.Printf("  Synced:    %d\n", report.Succeeded)
	fmt.Printf("  Failed:    %d\n", report.Failed)
	fmt.Printf("  Batches:   %s\n", joinInts(report.Batches))
	fmt.Printf("  Duration:  %s\n", report.Duration.Round(time.Millisecond))

	if len(report.Failures) > 0 {
		fmt.Println("")
		fmt.Println("Failures:")
		for _, f := range report.Failures {
			fmt.Printf("  %-34s %-12s %s\n", f.InspectionID, f.Plate, f.Error)
		}
		return fmt.Errorf("%d of %d inspection(s) failed to sync", report.Failed, report.Total)
	}
	return nil
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, " + ")
}

var (
	statusFailed bool
	statusProbe  bool
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Display record store and sync queue status",
		Long: `Display inspection counts, the sync queue breakdown and photo cache usage.
Use --failed to list the entries that failed to sync and why, and --probe
to check whether the central system is reachable right now.`,
		Example: `  vims status
  vims status --failed
  vims status --probe`,
		Args: cobra.NoArgs,
		RunE: statusRun,
	}

	cmd.Flags().BoolVar(&statusFailed, "failed", false, "list failed sync entries")
	cmd.Flags().BoolVar(&statusProbe, "probe", false, "check that the remote api answers")

	return cmd
}

func statusRun(cmd *cobra.Command, args []string) error {
	if globalStore == nil {
		return fmt.Errorf("store not initialized")
	}

	inspections, err := globalStore.CountInspections()
	if err != nil {
		return fmt.Errorf("failed to count inspections: %w", err)
	}
	queue, err := globalStore.SyncQueueCounts()
	if err != nil {
		return fmt.Errorf("failed to count sync queue: %w", err)
	}

	fmt.Println("Inspections")
	fmt.Println("===========")
	for _, status := range store.StatusNames(inspections) {
		fmt.Printf("  %-10s %6d\n", status, inspections[status])
	}

	fmt.Println("")
	fmt.Println("Sync Queue")
	fmt.Println("==========")
	for _, status := range []string{store.SyncPending, store.SyncSyncing, store.SyncSynced, store.SyncFailed} {
		fmt.Printf("  %-10s %6d\n", status, queue[status])
	}

	entries, err := globalStore.ListSyncQueue("")
	if err != nil {
		return fmt.Errorf("failed to list sync queue: %w", err)
	}
	var last time.Time
	for _, e := range entries {
		if e.LastAttemptAt.After(last) {
			last = e.LastAttemptAt
		}
	}
	lastStr := "never"
	if !last.IsZero() {
		lastStr = humanize.Time(last)
	}
	fmt.Printf("  Last attempt: %s\n", lastStr)

	fmt.Println("")
	if globalCache != nil {
		fmt.Printf("Photo cache: %s in %s\n", humanize.Bytes(uint64(globalCache.Size())), globalCfg.PhotoCacheDir())
	} else {
		fmt.Println("Photo cache: unavailable")
	}
	fmt.Printf("Remote API:  %s", globalCfg.API.BaseURL)
	if globalCfg.API.UseMocks {
		fmt.Print(" (mocked)")
	}
	fmt.Println("")

	if statusProbe && globalRemote != nil {
		ctx, cancel := interruptContext()
		p := globalRemote.Probe(ctx)
		cancel()
		if p.Reachable {
			fmt.Printf("Reachable:   yes (%d ms)\n", p.LatencyMs)
		} else {
			fmt.Printf("Reachable:   no (%s)\n", p.Error)
		}
	}

	if statusFailed {
		fmt.Println("")
		printed := false
		for _, e := range entries {
			if e.Status != store.SyncFailed {
				continue
			}
			if !printed {
				fmt.Printf("%-34s %7s %-12s %s\n", "Failed inspection", "Retries", "Last try", "Error")
				fmt.Println(strings.Repeat("-", 80))
				printed = true
			}
			fmt.Printf("%-34s %7d %-12s %s\n", e.InspectionID, e.RetryCount, humanize.Time(e.LastAttemptAt), e.LastError)
		}
		if !printed {
			fmt.Println("No failed sync entries")
		}
	}

	return nil
}

// interruptContext is cancelled on SIGINT or SIGTERM.
func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
