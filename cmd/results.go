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

	"github.com/spf13/cobra"

	"github.com/cwbudde/rkfit/internal/report"
	"github.com/cwbudde/rkfit/internal/store"
)

var (
	resultsDataDir string
	keepLast       int
	olderThanDays  int
	forceClean     bool
)

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage stored fits",
	Long: `Lists, shows and cleans fits saved with --save or by the server.
Stored fits can be continued with the refine command.`,
}

var listResultsCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored fits",
	RunE:  runListResults,
}

var showResultCmd = &cobra.Command{
	Use:   "show <fit-id>",
	Short: "Show the coefficients of a stored fit",
	Args:  cobra.ExactArgs(1),
	RunE:  runShowResult,
}

var cleanResultsCmd = &cobra.Command{
	Use:   "clean",
	Short: "Delete old fits",
	Long: `Deletes stored fits by retention policy: keep only the newest N fits,
delete fits older than N days, or both. Without --force the selected fits
are only listed.`,
	RunE: runCleanResults,
}

func init() {
	rootCmd.AddCommand(resultsCmd)
	resultsCmd.AddCommand(listResultsCmd)
	resultsCmd.AddCommand(showResultCmd)
	resultsCmd.AddCommand(cleanResultsCmd)

	resultsCmd.PersistentFlags().StringVar(&resultsDataDir, "data-dir", "", "Base directory for stored fits (default from config)")

	cleanResultsCmd.Flags().IntVar(&keepLast, "keep-last", 0, "Keep only the newest N fits (0 = keep all)")
	cleanResultsCmd.Flags().IntVar(&olderThanDays, "older-than", 0, "Delete fits older than N days (0 = no age limit)")
	cleanResultsCmd.Flags().BoolVarP(&forceClean, "force", "f", false, "Delete the selected fits instead of listing them")
}

func openResultStore() (*store.FSStore, error) {
	dir := cfg.Store.DataDir
	if resultsDataDir != "" {
		dir = resultsDataDir
	}
	st, err := store.NewFSStore(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open fit store: %w", err)
	}
	return st, nil
}

func runListResults(cmd *cobra.Command, args []string) error {
	st, err := openResultStore()
	if err != nil {
		return err
	}
	infos, err := st.ListFits()
	if err != nil {
		return fmt.Errorf("failed to list fits: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No stored fits.")
		return nil
	}

	writeResultList(out, st, infos)
	fmt.Fprintf(out, "\nTotal fits: %d\n", len(infos))
	return nil
}

func writeResultList(out io.Writer, st *store.FSStore, infos []store.FitInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTIMESTAMP\tORDER\tMETHOD\tITERATIONS\tCOST\tSIZE")
	for _, info := range infos {
		sizeStr := "unknown"
		if size, err := getDirSize(st.FitDir(info.ID)); err == nil {
			sizeStr = formatBytes(size)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%.6g\t%s\n",
			info.ID,
			info.Timestamp.Format("2006-01-02 15:04:05"),
			info.Order,
			info.Method,
			info.Iterations,
			info.Cost,
			sizeStr,
		)
	}
	w.Flush()
}

func runShowResult(cmd *cobra.Command, args []string) error {
	st, err := openResultStore()
	if err != nil {
		return err
	}
	record, err := st.LoadFit(args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "Fit:\t%s\n", record.ID)
	fmt.Fprintf(w, "Saved:\t%s\n", record.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "Data:\t%s (%d samples)\n", record.Config.DataPath, record.Samples)
	fmt.Fprintf(w, "Order:\t%d\n", record.Config.Order)
	fmt.Fprintf(w, "Method:\t%s\n", record.Config.Method)
	fmt.Fprintf(w, "Iterations:\t%d\n", record.Iterations)
	fmt.Fprintf(w, "Cost:\t%g (initial %g)\n", record.Cost, record.InitialCost)
	fmt.Fprintf(w, "RMS:\t%g\n", record.RMS)
	if n, err := traceLength(st.BaseDir(), record.ID); err == nil {
		fmt.Fprintf(w, "Trace:\t%d entries\n", n)
	}
	w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintln(out, report.CoefficientTable(record.Params))
	return nil
}

// traceLength reports store.ErrNotFound when the fit was saved without a trace.
func traceLength(baseDir, id string) (int, error) {
	tr, err := store.NewTraceReader(baseDir, id)
	if err != nil {
		return 0, err
	}
	defer tr.Close()

	entries, err := tr.ReadAll()
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

func runCleanResults(cmd *cobra.Command, args []string) error {
	if keepLast == 0 && olderThanDays == 0 {
		return errors.New("must specify either --keep-last or --older-than")
	}

	st, err := openResultStore()
	if err != nil {
		return err
	}
	infos, err := st.ListFits()
	if err != nil {
		return fmt.Errorf("failed to list fits: %w", err)
	}

	out := cmd.OutOrStdout()
	toDelete := selectForDeletion(infos, keepLast, olderThanDays, time.Now())
	if len(toDelete) == 0 {
		fmt.Fprintln(out, "No fits match deletion criteria.")
		return nil
	}

	fmt.Fprintf(out, "Found %d fit(s) to delete:\n", len(toDelete))
	for _, info := range toDelete {
		fmt.Fprintf(out, "  - %s (cost %.6g, %s)\n", info.ID, info.Cost, info.Timestamp.Format("2006-01-02 15:04:05"))
	}

	if !forceClean {
		fmt.Fprintln(out, "\nDry run; pass --force to delete.")
		return nil
	}

	deleted, failed := 0, 0
	for _, info := range toDelete {
		if err := st.DeleteFit(info.ID); err != nil {
			slog.Error("Failed to delete fit", "fit_id", info.ID, "error", err)
			failed++
			continue
		}
		slog.Debug("Deleted fit", "fit_id", info.ID)
		deleted++
	}

	fmt.Fprintf(out, "\nDeleted %d fit(s), %d failed.\n", deleted, failed)
	return nil
}

// selectForDeletion applies the retention policy. A fit matched by both the
// age and the count rule is listed once, oldest first.
func selectForDeletion(infos []store.FitInfo, keepLast, olderThanDays int, now time.Time) []store.FitInfo {
	sorted := make([]store.FitInfo, len(infos))
	copy(sorted, infos)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	selected := make(map[string]bool)
	if olderThanDays > 0 {
		cutoff := now.AddDate(0, 0, -olderThanDays)
		for _, info := range sorted {
			if info.Timestamp.Before(cutoff) {
				selected[info.ID] = true
			}
		}
	}
	if keepLast > 0 && len(sorted) > keepLast {
		for _, info := range sorted[:len(sorted)-keepLast] {
			selected[info.ID] = true
		}
	}

	var toDelete []store.FitInfo
	for _, info := range sorted {
		if selected[info.ID] {
			toDelete = append(toDelete, info)
		}
	}
	return toDelete
}

func getDirSize(path string) (int64, error) {
	var size int64
	err := filepath.WalkDir(path, func(_ string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		size += info.Size()
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
