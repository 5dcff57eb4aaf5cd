package cmd

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/AnyUserName/imgconv/internal/config"
	"github.com/AnyUserName/imgconv/internal/encoder"
	"github.com/AnyUserName/imgconv/internal/engine"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/pipeline"
	"github.com/AnyUserName/imgconv/internal/presenter"
	"github.com/AnyUserName/imgconv/internal/preset"
	"github.com/AnyUserName/imgconv/internal/report"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var convertCmd = &cobra.Command{
	Use:   "convert <file_or_dir>...",
	Short: "Convert images and write the results + report",
	Long: `Converts every image found in the given files and directories
(png, jpg, jpeg, webp, gif, bmp, tiff) into one target format.

The target comes from --format, or from --preset. When a single file is
given and neither is set, JPEG sources become PNG and everything else
becomes JPEG. Quality (1-100) only affects lossy formats.

Outputs keep the source name with the new extension; clashing names get
the content hash appended: <name>.<hash>.ext`,
	Args: cobra.MinimumNArgs(1),
	RunE: runConvert,
}

func init() {
	f := convertCmd.Flags()
	f.StringP("out", "o", "./imgconv_out", "output directory")
	f.StringP("format", "f", "", "target format or MIME type (jpeg, png, webp, gif, bmp)")
	f.IntP("quality", "q", 0, "quality 1-100 (0 = preset default)")
	f.StringP("preset", "p", "", fmt.Sprintf("named preset %v", preset.Names()))
	f.IntP("workers", "w", 0, "parallel codec workers (0 = NumCPU)")
	f.String("archive", "", "also write every result into this zip file")
	f.String("report", "", "report path (default <out>/"+report.DefaultName+".<format>)")
	f.String("report-format", "json", "report format: json or yaml")

	bind(convertCmd, "out", "out")
	bind(convertCmd, "format", "format")
	bind(convertCmd, "quality", "quality")
	bind(convertCmd, "preset", "preset")
	bind(convertCmd, "workers", "workers")
	bind(convertCmd, "archive", "archive")
	bind(convertCmd, "report", "report")
	bind(convertCmd, "report_format", "report-format")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	start := time.Now()

	c, err := config.Parse(conf)
	if err != nil {
		return err
	}
	entry := logrus.NewEntry(log)

	absOutput, err := filepath.Abs(c.Out)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	settings := c.Settings()
	registry := encoder.NewRegistry()
	entry.Debug(registry.String())
	checkEncoder(entry, registry, settings.Format)

	presetName := c.Preset
	if presetName == "" {
		presetName = preset.Default
	}

	entry.WithFields(logrus.Fields{
		"output":  absOutput,
		"preset":  presetName,
		"format":  settings.Format,
		"quality": presenter.Percent(settings.Quality),
	}).Debug("starting conversion")

	eng := engine.New(&engine.HostCodec{Registry: registry}, engine.WithLogger(entry))
	p := pipeline.New(pipeline.Config{
		Inputs:    args,
		OutputDir: absOutput,
		Archive:   c.Archive,
		Preset:    presetName,
		Settings:  settings,
		Suggest:   !c.Explicit(),
		Workers:   c.Workers,
		Log:       entry,
		Observer:  presenter.NewLog(entry),
		Encoders:  registry.String(),
	}, eng)

	rep, runErr := p.Run(cmd.Context())
	if rep == nil {
		return fmt.Errorf("pipeline: %w", runErr)
	}

	// Write report.
	reportPath, reportFormat := reportTarget(c.Report, c.ReportFormat, absOutput)
	if base, err := filepath.Rel(filepath.Dir(reportPath), absOutput); err == nil {
		rep.BasePath = filepath.ToSlash(base)
	}
	if err := report.Write(rep, reportPath, reportFormat); err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	printConvertReport(cmd.OutOrStdout(), rep, reportPath, time.Since(start))
	if runErr != nil {
		return fmt.Errorf("pipeline: %w", runErr)
	}
	return nil
}

// checkEncoder warns when the target format has no encoder installed.
func checkEncoder(entry *logrus.Entry, r *encoder.Registry, f format.Format) bool {
	if r.Get(f) != nil {
		return true
	}
	entry.Warnf("no %s encoder available, every conversion will be refused", f)
	return false
}

// reportTarget picks the report path and format. An explicit path's
// extension wins over the configured format.
func reportTarget(path, reportFormat, outDir string) (string, string) {
	if path == "" {
		return filepath.Join(outDir, report.DefaultName+"."+reportFormat), reportFormat
	}
	return path, report.FormatForPath(path, reportFormat)
}

func printConvertReport(w io.Writer, r *report.Report, reportPath string, elapsed time.Duration) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║             imgconv convert complete             ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════╝")
	fmt.Fprintln(w)

	s := r.Stats
	fmt.Fprintf(w, "  Target:      %s (quality %d%%, preset %s)\n", r.Format, r.Quality, r.Preset)
	fmt.Fprintf(w, "  Converted:   %d of %d\n", s.Converted, s.TotalEntries)
	if s.Failed > 0 || s.Rejected > 0 {
		fmt.Fprintf(w, "  Failed:      %d\n", s.Failed+s.Rejected)
	}
	fmt.Fprintf(w, "  Input size:  %s\n", presenter.FormatSize(s.TotalInputBytes))
	fmt.Fprintf(w, "  Output size: %s\n", presenter.FormatSize(s.TotalOutputBytes))
	if ratio, ok := outputRatio(s); ok {
		fmt.Fprintf(w, "  Ratio:       %.1f%% of original\n", ratio)
	}
	fmt.Fprintf(w, "  Time:        %s\n", elapsed.Round(time.Millisecond))
	if r.BuildInfo != nil {
		fmt.Fprintf(w, "  Workers:     %d\n", r.BuildInfo.Workers)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Files:")
	presenter.WriteEntries(w, r.Entries)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "  Report:      %s\n", reportPath)
	fmt.Fprintln(w)
}

// outputRatio compares converted output against the inputs it came from.
func outputRatio(s report.Stats) (float64, bool) {
	if s.TotalInputBytes == 0 {
		return 0, false
	}
	return float64(s.TotalOutputBytes) / float64(s.TotalInputBytes) * 100, true
}
