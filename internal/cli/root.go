package cli

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/roach88/vdb/internal/engine"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is loaded before any subcommand runs; explicit flags win over it.
	Config Config
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the vdb CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{Config: DefaultConfig(), Logger: slog.Default()}

	cmd := &cobra.Command{
		Use:   "vdb",
		Short: "vdb - view/model data binding",
		Long: `Compile, run and inspect reactive data bindings between a model and
a view template. Bindings are described in CUE; runs can be journaled to a
SQLite trace database and compared for determinism.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to a TOML config file")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewDiffCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads the config file, applies it under explicit flags and builds
// the logger.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	cfg, err := LoadConfig(o.ConfigPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	o.Config = cfg

	if !cmd.Flags().Changed("format") {
		o.Format = cfg.Format
	}
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}

	level, err := parseLogLevel(cfg.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid config", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: level,
	}))
	return nil
}

// formatter returns an OutputFormatter writing to cmd's streams.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// database returns flag if set, otherwise the configured journal path.
func (o *RootOptions) database(flag string) string {
	if flag != "" {
		return flag
	}
	return o.Config.DB
}

// prefix returns flag if set, otherwise the configured scope prefix.
func (o *RootOptions) prefix(flag string) string {
	switch {
	case flag != "":
		return flag
	case o.Config.Prefix != "":
		return o.Config.Prefix
	default:
		return engine.DefaultPrefix
	}
}

// logger returns the configured logger. Commands built without the root
// command fall back to slog.Default.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
