package cmd

import (
	"fmt"
	"io"

	"github.com/AnyUserName/imgconv/internal/encoder"
	"github.com/AnyUserName/imgconv/internal/format"
	"github.com/AnyUserName/imgconv/internal/preset"
	"github.com/spf13/cobra"
)

var formatsCmd = &cobra.Command{
	Use:   "formats",
	Short: "List output formats, presets and encoder availability",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		printFormats(cmd.OutOrStdout(), encoder.NewRegistry())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(formatsCmd)
}

func printFormats(w io.Writer, r *encoder.Registry) {
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  %-6s %-11s %-5s %-8s %-8s %s\n", "NAME", "MIME", "EXT", "QUALITY", "ALPHA", "ENCODER")
	for _, f := range format.All {
		fmt.Fprintf(w, "  %-6s %-11s %-5s %-8s %-8s %s\n",
			f, f.MIME(), f.Extension(),
			yesNo(f.SupportsQuality()),
			yesNo(!f.NeedsOpaqueBackground()),
			availability(r.Get(f) != nil),
		)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "  Presets:")
	for _, name := range preset.Names() {
		p := preset.Get(name)
		q := ""
		if p.Format.SupportsQuality() {
			q = fmt.Sprintf(" @ %d%%", p.Quality)
		}
		fmt.Fprintf(w, "    %-9s %s%s  %s\n", name, p.Format, q, p.Description)
	}
	fmt.Fprintln(w)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func availability(ok bool) string {
	if ok {
		return "✓"
	}
	return "✗ (not installed)"
}
