package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/araddon/dateparse"
	"github.com/spf13/cobra"

	"github.com/cwbudde/pixelsum/internal/store"
)

var (
	reportsDataDir string
	reportsSince   string
	reportsBefore  string
	keepLast       int
	olderThanDays  int
	forceClean     bool
	showTrace      bool
)

var reportsCmd = &cobra.Command{
	Use:   "reports",
	Short: "Manage saved benchmark reports",
	Long: `Manage benchmark reports saved by "bench --data-dir" or the server.
Time filters accept most date formats, e.g. "2026-10-01", "Oct 1 2026"
or "2026-10-01T12:00:00Z".`,
}

var listReportsCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved reports",
	RunE:  runListReports,
}

var showReportCmd = &cobra.Command{
	Use:   "show <report-id>",
	Short: "Show one report",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowReport,
}

var cleanReportsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old reports",
	Long: `Delete reports based on a retention policy: keep the newest N, delete
those older than N days, or delete those created before a date.`,
	RunE: runCleanReports,
}

func init() {
	rootCmd.AddCommand(reportsCmd)
	reportsCmd.AddCommand(listReportsCmd)
	reportsCmd.AddCommand(showReportCmd)
	reportsCmd.AddCommand(cleanReportsCmd)

	reportsCmd.PersistentFlags().StringVar(&reportsDataDir, "data-dir", "./data", "Base directory for report storage")

	listReportsCmd.Flags().StringVar(&reportsSince, "since", "", "Only reports created at or after this time")
	listReportsCmd.Flags().StringVar(&reportsBefore, "before", "", "Only reports created before this time")

	showReportCmd.Flags().BoolVar(&showTrace, "trace", false, "Print every traced check")

	cleanReportsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N reports (0 = keep all)")
	cleanReportsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete reports older than N days (0 = no age limit)")
	cleanReportsCmd.Flags().StringVar(&reportsBefore, "before", "", "Delete reports created before this time")
	cleanReportsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Skip confirmation prompt")
}

// parseTime accepts an empty string as the zero time.
func parseTime(flag, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := dateparse.ParseAny(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s: %w", flag, err)
	}
	return t, nil
}

// filterReports keeps reports created in [since, before); zero bounds are open.
func filterReports(infos []store.ReportInfo, since, before time.Time) []store.ReportInfo {
	var out []store.ReportInfo
	for _, info := range infos {
		if !since.IsZero() && info.CreatedAt.Before(since) {
			continue
		}
		if !before.IsZero() && !info.CreatedAt.Before(before) {
			continue
		}
		out = append(out, info)
	}
	return out
}

func runListReports(cmd *cobra.Command, args []string) error {
	since, err := parseTime("since", reportsSince)
	if err != nil {
		return err
	}
	before, err := parseTime("before", reportsBefore)
	if err != nil {
		return err
	}

	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}
	infos = filterReports(infos, since, before)

	out := stdout(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPORT ID\tNAME\tCREATED\tBACKEND\tCASES\tCHECKS\tFAILED\tSIZE")
	fmt.Fprintln(w, "---------\t----\t-------\t-------\t-----\t------\t------\t----")

	for _, info := range infos {
		size, err := getDirSize(reportStore.ReportDir(info.ID))
		sizeStr := "unknown"
		if err == nil {
			sizeStr = formatBytes(size)
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			shortID(info.ID),
			info.Name,
			info.CreatedAt.Format("2006-01-02 15:04:05"),
			info.Backend,
			info.Cases,
			info.Checks,
			info.Failed,
			sizeStr,
		)
	}

	w.Flush()

	fmt.Fprintf(out, "\nTotal reports: %d\n", len(infos))
	return nil
}

func runShowReport(cmd *cobra.Command, args []string) error {
	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	report, err := reportStore.LoadReport(args[0])
	if err != nil {
		return err
	}

	out := stdout(cmd)
	fmt.Fprintf(out, "Report %s, created %s\n", report.ID, report.CreatedAt.Format(time.RFC3339))
	printReport(out, report)

	if showTrace {
		return printTrace(out, reportStore.BaseDir(), report.ID)
	}
	return nil
}

func printTrace(w io.Writer, baseDir, id string) error {
	tr, err := store.NewTraceReader(baseDir, id)
	if errors.Is(err, store.ErrNotFound) {
		fmt.Fprintln(w, "\nNo trace recorded.")
		return nil
	}
	if err != nil {
		return err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return err
	}

	fmt.Fprintln(w)
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CASE\tQUERY\tOP\tWANT\tGOT\tOK\tTIME")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%v\t%v\t%v\t%s\n", e.Case, e.Query, e.Op, e.Want, e.Got, e.OK, e.Duration)
	}
	return tw.Flush()
}

func runCleanReports(cmd *cobra.Command, args []string) error {
	before, err := parseTime("before", reportsBefore)
	if err != nil {
		return err
	}
	if keepLast == 0 && olderThanDays == 0 && before.IsZero() {
		return fmt.Errorf("must specify --keep-last, --older-than or --before")
	}

	reportStore, err := store.NewFSStore(reportsDataDir)
	if err != nil {
		return fmt.Errorf("failed to create report store: %w", err)
	}

	infos, err := reportStore.ListReports()
	if err != nil {
		return fmt.Errorf("failed to list reports: %w", err)
	}

	out := stdout(cmd)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No reports to clean.")
		return nil
	}

	if olderThanDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -olderThanDays)
		if before.IsZero() || cutoff.Before(before) {
			before = cutoff
		}
	}
	toDelete := selectReportsForDeletion(infos, keepLast, before)

	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No reports match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d report(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (%s, %s)\n", shortID(info.ID), info.Name, info.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprint(out, "\nProceed with deletion? [y/N]: ")
		var response string
		fmt.Scanln(&response)
		if response != "y" && response != "Y" {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	deleted := 0
	failed := 0
	for _, info := range toDelete {
		if err := reportStore.DeleteReport(info.ID); err != nil {
			slog.Error("Failed to delete report", "report_id", info.ID, "error", err)
			failed++
		} else {
			slog.Info("Deleted report", "report_id", info.ID)
			deleted++
		}
	}

	fmt.Fprintf(out, "\nDeleted %d report(s), %d failed.\n", deleted, failed)
	return nil
}

// selectReportsForDeletion returns reports created before the cutoff (when
// set) plus everything beyond the newest keepLast (when positive).
func selectReportsForDeletion(infos []store.ReportInfo, keepLast int, before time.Time) []store.ReportInfo {
	sorted := make([]store.ReportInfo, len(infos))
	copy(sorted, infos)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var toDelete []store.ReportInfo
	for i, info := range sorted {
		tooOld := !before.IsZero() && info.CreatedAt.Before(before)
		beyondKeep := keepLast > 0 && i >= keepLast
		if tooOld || beyondKeep {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12] + "..."
	}
	return id
}

// getDirSize calculates the total size of a directory
func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.Walk(path, func(_ string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			size += info.Size()
		}
		return nil
	})
	return size, err
}

// formatBytes formats bytes as human-readable string
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
