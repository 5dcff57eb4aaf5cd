package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/AnyUserName/imgconv/internal/presenter"
	"github.com/AnyUserName/imgconv/internal/report"
	"github.com/spf13/cobra"
)

var statsEntries bool

var statsCmd = &cobra.Command{
	Use:   "stats <out_dir_or_report>",
	Short: "Display statistics for a convert run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVar(&statsEntries, "entries", false, "list every file")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	path, err := resolveReport(args[0])
	if err != nil {
		return err
	}
	r, err := report.Read(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	printStats(cmd.OutOrStdout(), r)
	return nil
}

// resolveReport accepts a report file or an output directory holding one.
func resolveReport(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.IsDir() {
		return path, nil
	}
	for _, ext := range []string{".json", ".yaml", ".yml"} {
		p := filepath.Join(path, report.DefaultName+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no %s.{json,yaml} in %s", report.DefaultName, path)
}

func printStats(w io.Writer, r *report.Report) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Report version:   %d\n", r.Version)
	fmt.Fprintf(w, "  Generated:        %s\n", r.GeneratedAt)
	fmt.Fprintf(w, "  Preset:           %s\n", r.Preset)
	fmt.Fprintf(w, "  Target:           %s (quality %d%%)\n", r.Format, r.Quality)
	if r.BuildInfo != nil {
		fmt.Fprintf(w, "  Workers:          %d\n", r.BuildInfo.Workers)
		fmt.Fprintf(w, "  Duration:         %d ms\n", r.BuildInfo.DurationMS)
		fmt.Fprintf(w, "  Encoders:         %s\n", r.BuildInfo.Encoders)
		if r.BuildInfo.ArchiveEntries > 0 {
			fmt.Fprintf(w, "  Archive:          %d files\n", r.BuildInfo.ArchiveEntries)
		}
	}
	fmt.Fprintln(w)

	s := r.Stats
	fmt.Fprintf(w, "  Total files:      %d\n", s.TotalEntries)
	fmt.Fprintf(w, "  Converted:        %d\n", s.Converted)
	fmt.Fprintf(w, "  Failed:           %d\n", s.Failed)
	if s.Rejected > 0 {
		fmt.Fprintf(w, "  Rejected:         %d\n", s.Rejected)
	}
	fmt.Fprintf(w, "  Input size:       %s\n", presenter.FormatSize(s.TotalInputBytes))
	fmt.Fprintf(w, "  Output size:      %s\n", presenter.FormatSize(s.TotalOutputBytes))
	if ratio, ok := outputRatio(s); ok {
		fmt.Fprintf(w, "  Compression:      %.1f%% of original\n", ratio)
	}
	fmt.Fprintln(w)

	// Per-source-type breakdown.
	type typeStat struct {
		count   int
		in, out int64
	}
	bySource := map[string]typeStat{}
	for _, e := range r.Entries {
		if e.Output == nil {
			continue
		}
		ts := bySource[e.Source.MIME]
		ts.count++
		ts.in += e.Source.Size
		ts.out += e.Output.Size
		bySource[e.Source.MIME] = ts
	}
	if len(bySource) > 0 {
		var mimes []string
		for m := range bySource {
			mimes = append(mimes, m)
		}
		sort.Strings(mimes)
		fmt.Fprintln(w, "  Source breakdown:")
		for _, m := range mimes {
			ts := bySource[m]
			fmt.Fprintf(w, "    %-12s %4d files  %10s → %s\n", m, ts.count,
				presenter.FormatSize(ts.in), presenter.FormatSize(ts.out))
		}
		fmt.Fprintln(w)
	}

	// Failure breakdown.
	if len(s.ByFailure) > 0 {
		var kinds []string
		for k := range s.ByFailure {
			kinds = append(kinds, k)
		}
		sort.Strings(kinds)
		fmt.Fprintln(w, "  Failures:")
		for _, k := range kinds {
			fmt.Fprintf(w, "    %-16s %4d\n", k, s.ByFailure[k])
		}
		fmt.Fprintln(w)
	}

	// Outputs larger than their source.
	var grew []string
	for _, e := range r.Entries {
		if e.Output != nil && e.Source.Size > 0 && e.Output.Size > e.Source.Size {
			grew = append(grew, fmt.Sprintf("%s grew %s → %s", e.Source.Name,
				presenter.FormatSize(e.Source.Size), presenter.FormatSize(e.Output.Size)))
		}
	}
	if len(grew) > 0 {
		fmt.Fprintf(w, "  Warnings (%d):\n", len(grew))
		for _, g := range grew {
			fmt.Fprintf(w, "    ⚠ %s\n", g)
		}
		fmt.Fprintln(w)
	}

	if statsEntries {
		fmt.Fprintln(w, "  Files:")
		presenter.WriteEntries(w, r.Entries)
		fmt.Fprintln(w)
	}
}
