package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/cleanbook/internal/app"
	"github.com/roach88/cleanbook/internal/config"
	"github.com/roach88/cleanbook/internal/ir"
	"github.com/roach88/cleanbook/internal/metrics"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	ConfigFile  string
	EnvFile     string
	Backend     string
	DB          string
	RedisURL    string
	RedisPrefix string
	IDScheme    string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the cleanbook CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "cleanbook",
		Short: "cleanbook - customers, staff and bookings for a cleaning business",
		Long: `Manage the customers, staff and bookings of a small cleaning business.

Records live in a local SQLite database or in a shared Redis instance
(--backend remote). Settings are read from defaults, a .env file, CLEANBOOK_*
environment variables and an optional YAML file, in that order; flags win.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")
	flags.StringVar(&opts.ConfigFile, "config", "", "YAML configuration file")
	flags.StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file to load (ignored when missing)")
	flags.StringVar(&opts.Backend, "backend", "", "storage backend (local|remote)")
	flags.StringVar(&opts.DB, "db", "", "SQLite database path (local backend)")
	flags.StringVar(&opts.RedisURL, "redis-url", "", "Redis URL (remote backend)")
	flags.StringVar(&opts.RedisPrefix, "redis-prefix", "", "Redis key prefix (remote backend)")
	flags.StringVar(&opts.IDScheme, "id-scheme", "", "local id allocator (timestamp|uuid)")

	for _, kind := range ir.Kinds {
		cmd.AddCommand(NewRecordCommand(opts, kind))
	}
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// Execute runs the CLI with args and returns the process exit code. Errors
// not already reported by a command are printed in the requested format.
func Execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := NewRootCommand()
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	err := cmd.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}

	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		// cobra's own errors: unknown command, bad flags, wrong arg count.
		err = WrapExitError(ExitCommandError, "invalid usage", err)
	} else if exitErr.Reported {
		return exitErr.Code
	}

	format, _ := cmd.PersistentFlags().GetString("format")
	if !isValidFormat(format) {
		format = "text"
	}
	f := &OutputFormatter{Format: format, Writer: stdout, ErrWriter: stderr}
	_ = f.Error(ErrorCode(err), err.Error(), nil)
	return GetExitCode(err)
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// loadConfig layers the configuration sources and applies flag overrides.
func (o *RootOptions) loadConfig() (config.Config, error) {
	cfg, err := config.Load(o.EnvFile, o.ConfigFile)
	if err != nil {
		return cfg, err
	}

	override := func(flag string, dst *string) {
		if flag != "" {
			*dst = flag
		}
	}
	override(o.Backend, &cfg.Backend)
	override(o.DB, &cfg.DB)
	override(o.RedisURL, &cfg.RedisURL)
	override(o.RedisPrefix, &cfg.RedisPrefix)
	override(o.IDScheme, &cfg.IDScheme)

	return cfg, cfg.Validate()
}

// newLogger returns a text logger on w. --verbose lowers the level to
// DEBUG.
func (o *RootOptions) newLogger(w io.Writer, level slog.Level) *slog.Logger {
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// openApp loads the configuration and opens the configured backend. The
// engine is not started. Commands that do not stream log at WARN unless
// --verbose is set.
func openApp(ctx context.Context, opts *RootOptions, cmd *cobra.Command, level slog.Level, rec *metrics.Recorder) (*app.App, error) {
	cfg, err := opts.loadConfig()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	logger := opts.newLogger(cmd.ErrOrStderr(), level)
	logger.Debug("opening backend", "backend", cfg.Backend, "db", cfg.DB, "redis_prefix", cfg.RedisPrefix)

	a, err := app.Open(ctx, cfg, app.Options{Logger: logger, Metrics: rec})
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("failed to open %s backend", cfg.Backend), err)
	}
	return a, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
