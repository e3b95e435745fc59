package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/adrien-f/nwfetch"
	"github.com/charmbracelet/log"
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "NWFETCH"

// app carries state shared by all subcommands.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer

	logger   logr.Logger
	registry *prometheus.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		v:      viper.New(),
		stdout: stdout,
		stderr: stderr,
	}

	root := &cobra.Command{
		Use:   "nwfetch",
		Short: "Download and cache NW.js runtimes",
		Long: `nwfetch resolves an NW.js version, downloads the release archive for a
platform and architecture, and extracts it into a local cache. The path of
the extracted runtime is printed for use by packaging tools.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return a.writeMetrics()
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (YAML)")
	flags.String("cache-dir", "", "runtime cache directory (default is the user cache directory)")
	flags.String("base-url", nwfetch.DefaultBaseURL, "download host for release archives")
	flags.String("manifest-url", nwfetch.DefaultManifestURL, "version manifest used to resolve aliases")
	flags.Duration("timeout", 10*time.Minute, "timeout for each network request (0 disables)")
	flags.String("metrics-file", "", "write Prometheus metrics to this file on exit")
	flags.BoolP("verbose", "v", false, "enable verbose logging")

	root.AddCommand(
		newGetCmd(a),
		newVersionsCmd(a),
		newDesktopCmd(a),
	)
	return root
}

// init loads configuration and sets up logging. Precedence is flag, then
// environment (NWFETCH_CACHE_DIR, ...), then config file, then default.
func (a *app) init(cmd *cobra.Command) error {
	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Configure logging: charmbracelet/log -> slog -> logr -> library
	level := log.InfoLevel
	if a.v.GetBool("verbose") {
		level = log.DebugLevel
	}
	handler := log.NewWithOptions(a.stderr, log.Options{
		Prefix:          "nwfetch",
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	a.logger = logr.FromSlogHandler(slog.Handler(handler))

	if a.v.GetString("metrics-file") != "" {
		a.registry = prometheus.NewRegistry()
	}
	return nil
}

func (a *app) client() (*nwfetch.Client, error) {
	opts := []nwfetch.Option{
		nwfetch.WithLogger(a.logger),
		nwfetch.WithBaseURL(a.v.GetString("base-url")),
		nwfetch.WithManifestURL(a.v.GetString("manifest-url")),
		nwfetch.WithRequestTimeout(a.v.GetDuration("timeout")),
	}
	if dir := a.v.GetString("cache-dir"); dir != "" {
		opts = append(opts, nwfetch.WithCacheDir(dir))
	}
	if a.registry != nil {
		opts = append(opts, nwfetch.WithMetrics(nwfetch.NewMetrics(a.registry)))
	}

	c, err := nwfetch.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	return c, nil
}

func (a *app) writeMetrics() error {
	path := a.v.GetString("metrics-file")
	if path == "" || a.registry == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}
