package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/Eskedar21/VIMS-sub000/internal/inspection"
	"github.com/Eskedar21/VIMS-sub000/internal/safety"
	"github.com/Eskedar21/VIMS-sub000/internal/store"
)

// inspection documents carry photos inline as data URLs
const maxInputBytes int64 = 64 << 20

var (
	saveNoValidate bool

	showJSON   bool
	showPhotos bool

	listPlate   string
	listStatus  string
	listCenter  string
	listFrom    string
	listTo      string
	listDeleted bool
)

func newSaveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "save FILE",
		Short: "Save an inspection from a JSON document",
		Long: `Save an inspection to the local record store and queue it for sync.
FILE holds the inspection as JSON in either the kiosk shape or the legacy
flat shape. Use "-" to read from stdin.

Photos may be given as data URLs, local file paths or http(s) URLs; they are
normalized and cached before the record is written.`,
		Example: `  vims save inspection.json
  cat inspection.json | vims save -
  vims save --no-validate draft.json`,
		Args: cobra.ExactArgs(1),
		RunE: saveRun,
	}

	cmd.Flags().BoolVar(&saveNoValidate, "no-validate", false, "save without checking required fields")

	return cmd
}

func saveRun(cmd *cobra.Command, args []string) error {
	if globalRecorder == nil {
		return fmt.Errorf("recorder not initialized")
	}

	data, err := readInput(args[0])
	if err != nil {
		return err
	}

	in, err := inspection.DecodeInput(data)
	if err != nil {
		return fmt.Errorf("failed to parse inspection: %w", err)
	}

	if !saveNoValidate {
		if err := inspection.Validate(in); err != nil {
			var verr *inspection.ValidationError
			if errors.As(err, &verr) {
				fmt.Println("Validation failed:")
				for _, field := range slices.Sorted(maps.Keys(verr.Fields)) {
					fmt.Printf("  %-32s %s\n", field, verr.Fields[field])
				}
			}
			return err
		}
	}

	insp, err := globalRecorder.Save(context.Background(), in)
	if err != nil {
		return fmt.Errorf("failed to save inspection: %w", err)
	}

	fmt.Printf("Saved inspection %s\n", insp.ID)
	fmt.Printf("  Plate:   %s\n", insp.Vehicle.Plate)
	fmt.Printf("  Status:  %s\n", insp.Status)
	fmt.Printf("  Photos:  %d\n", len(insp.Photos))
	fmt.Printf("  Sync:    %s\n", insp.SyncStatus)
	return nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := safety.ReadAllWithLimit(os.Stdin, maxInputBytes)
		if err != nil {
			return nil, fmt.Errorf("failed to read stdin: %w", err)
		}
		return data, nil
	}
	data, err := safety.ReadFileWithLimit(path, maxInputBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return data, nil
}

func newShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Display one inspection",
		Example: `  vims show INS-1767225600000-1a2b3c4d
  vims show --json INS-1767225600000-1a2b3c4d`,
		Args: cobra.ExactArgs(1),
		RunE: showRun,
	}

	cmd.Flags().BoolVar(&showJSON, "json", false, "print the full record as JSON")
	cmd.Flags().BoolVar(&showPhotos, "photos", false, "include photo data in JSON output")

	return cmd
}

func showRun(cmd *cobra.Command, args []string) error {
	if globalRecorder == nil {
		return fmt.Errorf("recorder not initialized")
	}

	insp, err := globalRecorder.Get(args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("inspection %s not found", args[0])
		}
		return err
	}

	if showJSON {
		if !showPhotos {
			for i := range insp.Photos {
				insp.Photos[i].Data = ""
			}
		}
		return printJSON(os.Stdout, insp)
	}

	printInspection(insp)
	return nil
}

func printInspection(insp *store.Inspection) {
	v := insp.Vehicle
	fmt.Printf("Inspection %s\n", insp.ID)
	fmt.Println(strings.Repeat("=", 11+len(insp.ID)))
	fmt.Printf("  Plate:       %s\n", v.Plate)
	fmt.Printf("  Vehicle:     %s\n", strings.TrimSpace(fmt.Sprintf("%s %s %s", yearString(v.Year), v.Make, v.Model)))
	fmt.Printf("  VIN:         %s\n", v.VIN)
	fmt.Printf("  Owner:       %s\n", v.OwnerName)
	fmt.Printf("  Center:      %s\n", insp.CenterID)
	if insp.InspectorID != "" {
		fmt.Printf("  Inspector:   %s\n", insp.InspectorID)
	}
	fmt.Printf("  Status:      %s\n", insp.Status)
	fmt.Printf("  Sync:        %s\n", insp.SyncStatus)
	fmt.Printf("  Created:     %s (%s)\n", insp.CreatedAt.Format("2006-01-02 15:04"), humanize.Time(insp.CreatedAt))
	if !insp.CompletedAt.IsZero() {
		fmt.Printf("  Completed:   %s\n", insp.CompletedAt.Format("2006-01-02 15:04"))
	}
	if insp.Certificate.Number != "" {
		fmt.Printf("  Certificate: %s (expires %s)\n", insp.Certificate.Number, insp.Certificate.ExpiresAt.Format(time.DateOnly))
	}
	if insp.VisualMaxScore > 0 {
		fmt.Printf("  Visual:      %d/%d\n", insp.VisualScore, insp.VisualMaxScore)
	}

	if len(insp.MachineResults) > 0 {
		fmt.Println("")
		fmt.Printf("  %-28s %12s %-8s %s\n", "Machine test", "Value", "Unit", "Result")
		for _, m := range insp.MachineResults {
			fmt.Printf("  %-28s %12.2f %-8s %s\n", m.TestName, m.Value, m.Unit, m.Status)
		}
	}

	if len(insp.VisualResults) > 0 {
		fmt.Println("")
		fmt.Printf("  %-36s %-6s %s\n", "Checklist item", "Result", "Severity")
		for _, r := range insp.VisualResults {
			fmt.Printf("  %-36s %-6s %s\n", r.ItemName, r.Status, r.Severity)
		}
	}

	if len(insp.Photos) > 0 {
		fmt.Println("")
		for _, p := range insp.Photos {
			fmt.Printf("  photo %-14s %-28s %s\n", p.Type, p.Filename, humanize.Bytes(uint64(p.Size)))
		}
	}
}

func yearString(y int) string {
	if y == 0 {
		return ""
	}
	return fmt.Sprint(y)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List saved inspections",
		Long: `List inspections in the local record store, newest first. Filters combine;
dates accept YYYY-MM-DD or RFC 3339.`,
		Example: `  vims list
  vims list --plate AA-12345
  vims list --status Passed --from 2026-01-01 --to 2026-01-31`,
		Args: cobra.NoArgs,
		RunE: listRun,
	}

	cmd.Flags().StringVar(&listPlate, "plate", "", "exact plate number")
	cmd.Flags().StringVar(&listStatus, "status", "", "inspection status (Pending, Passed, Failed, Deleted)")
	cmd.Flags().StringVar(&listCenter, "center", "", "inspection center id")
	cmd.Flags().StringVar(&listFrom, "from", "", "created on or after this date")
	cmd.Flags().StringVar(&listTo, "to", "", "created on or before this date")
	cmd.Flags().BoolVar(&listDeleted, "include-deleted", false, "include deleted inspections")

	return cmd
}

func listRun(cmd *cobra.Command, args []string) error {
	if globalRecorder == nil {
		return fmt.Errorf("recorder not initialized")
	}

	f := store.InspectionFilter{
		Plate:          inspection.NormalizePlate(listPlate),
		Status:         listStatus,
		CenterID:       listCenter,
		IncludeDeleted: listDeleted,
	}

	var err error
	if f.From, err = parseDateFlag(listFrom, false); err != nil {
		return fmt.Errorf("invalid --from: %w", err)
	}
	if f.To, err = parseDateFlag(listTo, true); err != nil {
		return fmt.Errorf("invalid --to: %w", err)
	}

	slog.Default().Debug("listing inspections", "filter", fmt.Sprintf("%+v", f))
	printInspectionTable(globalRecorder.List(f))
	return nil
}

// parseDateFlag accepts YYYY-MM-DD or RFC 3339. A bare upper-bound date
// covers the whole day.
func parseDateFlag(v string, endOfDay bool) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation(time.DateOnly, v, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("%q is not a date", v)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return t, nil
}

func printInspectionTable(list []store.Inspection) {
	if len(list) == 0 {
		fmt.Println("No inspections found")
		return
	}

	fmt.Printf("%-34s %-12s %-8s %-8s %-10s\n", "ID", "Plate", "Status", "Sync", "Created")
	fmt.Println(strings.Repeat("-", 80))
	for _, insp := range list {
		fmt.Printf("%-34s %-12s %-8s %-8s %-10s\n",
			insp.ID,
			insp.Vehicle.Plate,
			insp.Status,
			insp.SyncStatus,
			humanize.Time(insp.CreatedAt),
		)
	}
	fmt.Println("")
	fmt.Printf("%d inspection(s)\n", len(list))
}

func newSearchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search inspections by plate, VIN or owner",
		Long: `Search inspections in the local record store. A query shaped like a VIN
matches VINs exactly; anything else matches plates and owner names.`,
		Example: `  vims search AA-123
  vims search 1HGCM82633A004352`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalRecorder == nil {
				return fmt.Errorf("recorder not initialized")
			}
			printInspectionTable(globalRecorder.Search(args[0]))
			return nil
		},
	}
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Mark an inspection deleted",
		Long: `Mark an inspection deleted. The record stays in the store with status
Deleted and drops out of listings and searches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if globalRecorder == nil {
				return fmt.Errorf("recorder not initialized")
			}
			if err := globalRecorder.Delete(args[0]); err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("inspection %s not found", args[0])
				}
				return err
			}
			fmt.Printf("Deleted inspection %s\n", args[0])
			return nil
		},
	}
}

func newFinalizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "finalize ID",
		Short: "Grade an inspection and issue a certificate on a pass",
		Long: `Grade the machine readings and checklist results of an inspection. A
passing inspection gets a certificate number. The record is queued for sync
again with its new status.`,
		Args: cobra.ExactArgs(1),
		RunE: finalizeRun,
	}
}

func finalizeRun(cmd *cobra.Command, args []string) error {
	if globalRecorder == nil {
		return fmt.Errorf("recorder not initialized")
	}

	v, err := globalRecorder.Finalize(args[0])
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("inspection %s not found", args[0])
		}
		return err
	}

	fmt.Printf("Inspection %s: %s\n", v.InspectionID, v.Status)
	fmt.Printf("  Visual score: %d/%d (%.1f%%)\n", v.Visual.Points, v.Visual.MaxPoints, v.Visual.Percentage)
	for _, name := range v.Visual.CriticalFailures {
		fmt.Printf("  critical:     %s\n", name)
	}
	if v.MachinePassed {
		fmt.Println("  Machine:      pass")
	} else {
		fmt.Printf("  Machine:      fail (%s)\n", strings.Join(v.MachineFailures, ", "))
	}
	for _, reason := range v.Incomplete {
		fmt.Printf("  incomplete:   %s\n", reason)
	}
	if v.Certificate.Number != "" {
		fmt.Printf("  Certificate:  %s valid until %s\n", v.Certificate.Number, v.Certificate.ExpiresAt.Format(time.DateOnly))
	}
	return nil
}
