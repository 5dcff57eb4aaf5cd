package cmd

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/AnyUserName/imgconv/internal/config"
	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	verbose bool
	cfgFile string

	conf = config.New()
	log  = logrus.New()
)

var rootCmd = &cobra.Command{
	Use:   "imgconv",
	Short: "Convert images between JPEG, PNG, WebP, GIF and BMP",
	Long: `imgconv: batch image format conversion.

Decodes every input, composites it onto an opaque background when the
target has no alpha channel, and re-encodes it with the chosen format and
quality. Results are written next to a report that records sizes and
content hashes for later verification.`,
	Version:           version,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

// Execute runs the root command with signal-aware context handling.
func Execute(ctx context.Context) error {
	return fang.Execute(ctx, rootCmd,
		fang.WithVersion(version),
		fang.WithNotifySignal(os.Interrupt),
	)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./imgconv.yaml)")
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"imgconv %s (%s/%s, %s)\n",
		version, runtime.GOOS, runtime.GOARCH, runtime.Version(),
	))
}

// setup loads .env, the config file and configures logging.
func setup(_ *cobra.Command, _ []string) error {
	// Load .env file if present (ignore errors)
	_ = godotenv.Load()

	if err := config.Load(conf, cfgFile); err != nil {
		return err
	}

	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(conf.GetString("log.level"))
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	if verbose {
		level = logrus.DebugLevel
	}
	log.SetLevel(level)

	if conf.GetString("log.format") == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	}
	return nil
}

// bind ties a command flag to a config key.
func bind(cmd *cobra.Command, key, flag string) {
	if err := conf.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
		panic(err)
	}
}
