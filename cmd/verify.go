package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/hasher"
	"github.com/AnyUserName/imgconv/internal/report"
	"github.com/spf13/cobra"
)

var verifyCmd = &cobra.Command{
	Use:   "verify <out_dir_or_report>",
	Short: "Check that every output in a report exists with matching size and hash",
	Args:  cobra.ExactArgs(1),
	RunE:  runVerify,
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}

func runVerify(cmd *cobra.Command, args []string) error {
	path, err := resolveReport(args[0])
	if err != nil {
		return err
	}
	r, err := report.Read(path)
	if err != nil {
		return fmt.Errorf("read report: %w", err)
	}

	baseDir := filepath.Join(filepath.Dir(path), filepath.FromSlash(r.BasePath))
	errs := verifyReport(r, baseDir)

	w := cmd.OutOrStdout()
	if len(errs) == 0 {
		fmt.Fprintln(w, "  ✓ Report is valid")
		fmt.Fprintf(w, "  ✓ %d outputs present, sizes and hashes match\n", r.Stats.Converted)
		return nil
	}

	fmt.Fprintf(w, "  ✗ Report has %d error(s):\n", len(errs))
	for _, e := range errs {
		fmt.Fprintf(w, "    • %s\n", e)
	}
	return fmt.Errorf("verification failed with %d errors", len(errs))
}

func verifyReport(r *report.Report, baseDir string) []string {
	var errs []string

	if !format.Parse(r.Format).Valid() {
		errs = append(errs, fmt.Sprintf("unknown target format %q", r.Format))
	}

	seenPaths := map[string]bool{}
	converted := 0
	for i, e := range r.Entries {
		name := e.Source.Name
		switch e.Status {
		case report.StatusConverted:
			converted++
		case report.StatusFailed, report.StatusRejected:
			if e.Error == nil || e.Error.Reason == "" {
				errs = append(errs, fmt.Sprintf("entry[%d] %q: %s without a reason", i, name, e.Status))
			}
			continue
		default:
			errs = append(errs, fmt.Sprintf("entry[%d] %q: unexpected status %q", i, name, e.Status))
			continue
		}

		o := e.Output
		if o == nil || o.Path == "" {
			errs = append(errs, fmt.Sprintf("entry[%d] %q: converted without output", i, name))
			continue
		}
		if o.Width <= 0 || o.Height <= 0 {
			errs = append(errs, fmt.Sprintf("entry[%d] %q: invalid dimensions %dx%d", i, name, o.Width, o.Height))
		}
		if e.Source.Width > 0 && (o.Width != e.Source.Width || o.Height != e.Source.Height) {
			errs = append(errs, fmt.Sprintf("entry[%d] %q: dimensions changed %dx%d → %dx%d",
				i, name, e.Source.Width, e.Source.Height, o.Width, o.Height))
		}
		if seenPaths[o.Path] {
			errs = append(errs, fmt.Sprintf("entry[%d] %q: duplicate path %q", i, name, o.Path))
		}
		seenPaths[o.Path] = true

		errs = append(errs, verifyOutput(i, name, filepath.Join(baseDir, filepath.FromSlash(o.Path)), o)...)
	}

	if r.Stats.Converted != converted {
		errs = append(errs, fmt.Sprintf("stats.converted mismatch: %d != %d", r.Stats.Converted, converted))
	}
	if r.Stats.TotalEntries != len(r.Entries) {
		errs = append(errs, fmt.Sprintf("stats.total_entries mismatch: %d != %d", r.Stats.TotalEntries, len(r.Entries)))
	}
	return errs
}

func verifyOutput(i int, name, fullPath string, o *report.Output) []string {
	f, err := os.Open(fullPath)
	if err != nil {
		return []string{fmt.Sprintf("entry[%d] %q: file not found: %s", i, name, o.Path)}
	}
	defer f.Close()

	var errs []string
	if info, err := f.Stat(); err == nil && info.Size() != o.Size {
		errs = append(errs, fmt.Sprintf("entry[%d] %q: size mismatch: report=%d, disk=%d", i, name, o.Size, info.Size()))
	}
	sum, err := hasher.SumReader(f)
	if err != nil {
		return append(errs, fmt.Sprintf("entry[%d] %q: read %s: %v", i, name, o.Path, err))
	}
	if sum != o.Hash {
		errs = append(errs, fmt.Sprintf("entry[%d] %q: hash mismatch: report=%s, disk=%s", i, name, o.Hash, sum))
	}
	return errs
}
