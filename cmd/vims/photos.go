package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/photo"
	"github.com/Eskedar21/VIMS-sub000/internal/photocache"
	"github.com/Eskedar21/VIMS-sub000/internal/safety"
)

var (
	photosPlate  string
	photosOutDir string
)

func newPhotosCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "photos",
		Short: "Inspect the local photo cache",
		Long: `Inspect the photo cache. Every saved inspection keeps its normalized photos
in the cache, indexed by plate, so they stay available to the kiosk while
the central system is unreachable.`,
		Example: `  vims photos list
  vims photos list --plate AA-12345
  vims photos search AA-1
  vims photos show INS-1767225600000-1a2b3c4d --out ./photos
  vims photos purge INS-1767225600000-1a2b3c4d`,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List cached photo bundles",
		Args:  cobra.NoArgs,
		RunE:  photosListRun,
	}
	listCmd.Flags().StringVar(&photosPlate, "plate", "", "exact plate number")

	showCmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show the cached photos of an inspection",
		Args:  cobra.ExactArgs(1),
		RunE:  photosShowRun,
	}
	showCmd.Flags().StringVar(&photosOutDir, "out", "", "write the photos as image files into this directory")

	searchCmd := &cobra.Command{
		Use:   "search QUERY",
		Short: "Find cached bundles by plate substring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := requireCache()
			if err != nil {
				return err
			}
			entries, err := cache.Search(args[0])
			if err != nil {
				return err
			}
			printPhotoIndex(entries)
			return nil
		},
	}

	purgeCmd := &cobra.Command{
		Use:   "purge ID",
		Short: "Remove the cached photos of an inspection",
		Long: `Remove the cached photos of an inspection. The inspection record and the
photos stored with it are not touched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cache, err := requireCache()
			if err != nil {
				return err
			}
			if err := cache.Delete(args[0]); err != nil {
				if errors.Is(err, photocache.ErrNotFound) {
					return fmt.Errorf("no cached photos for %s", args[0])
				}
				return err
			}
			fmt.Printf("Purged cached photos for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(listCmd, showCmd, searchCmd, purgeCmd)
	return cmd
}

func requireCache() (*photocache.Cache, error) {
	if globalCache == nil {
		return nil, fmt.Errorf("photo cache not available")
	}
	return globalCache, nil
}

func photosListRun(cmd *cobra.Command, args []string) error {
	cache, err := requireCache()
	if err != nil {
		return err
	}

	var entries []photocache.IndexEntry
	if photosPlate != "" {
		entries, err = cache.FindByPlate(photosPlate)
	} else {
		entries, err = cache.Index()
	}
	if err != nil {
		return fmt.Errorf("failed to read photo index: %w", err)
	}

	printPhotoIndex(entries)
	return nil
}

func printPhotoIndex(entries []photocache.IndexEntry) {
	if len(entries) == 0 {
		fmt.Println("No cached photos found")
		return
	}

	fmt.Printf("%-12s %-34s %6s %10s %s\n", "Plate", "Inspection", "Photos", "Size", "Saved")
	fmt.Println(strings.Repeat("-", 80))
	var total int64
	for _, e := range entries {
		fmt.Printf("%-12s %-34s %6d %10s %s\n",
			e.Plate,
			e.InspectionID,
			e.Count,
			humanize.Bytes(uint64(e.Bytes)),
			humanize.Time(e.SavedAt),
		)
		total += e.Bytes
	}
	fmt.Println("")
	fmt.Printf("%d bundle(s), %s\n", len(entries), humanize.Bytes(uint64(total)))
}

func photosShowRun(cmd *cobra.Command, args []string) error {
	cache, err := requireCache()
	if err != nil {
		return err
	}

	b, err := cache.Get(args[0])
	if err != nil {
		if errors.Is(err, photocache.ErrNotFound) {
			return fmt.Errorf("no cached photos for %s", args[0])
		}
		return err
	}

	fmt.Printf("Photos for %s (plate %s), cached %s\n", b.InspectionID, b.Plate, humanize.Time(b.SavedAt))

	if photosOutDir != "" {
		if err := os.MkdirAll(photosOutDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	for i, p := range b.Photos {
		fmt.Printf("  %-14s %-28s %-11s %s\n", p.Type, p.Filename, p.MIMEType, humanize.Bytes(uint64(p.Size)))
		if photosOutDir == "" {
			continue
		}

		_, data, err := photo.ParseDataURL(p.Data)
		if err != nil {
			return fmt.Errorf("photo %d: %w", i, err)
		}
		name := filepath.Base(p.Filename)
		if name == "" || name == "." || name == string(filepath.Separator) {
			name = fmt.Sprintf("%s-%d", p.Type, i)
		}
		dest, err := safety.SafeJoinUnder(photosOutDir, fmt.Sprintf("%02d-%s", i+1, name))
		if err != nil {
			return err
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", dest, err)
		}
		fmt.Printf("    -> %s\n", dest)
	}
	return nil
}
