package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ordokr/LMS/internal/bridge"
	"github.com/ordokr/LMS/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the lmssync command tree.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "lmssync",
		Short: "lmssync - batched, hash-chained state sync",
		Long: `lmssync applies batches of put, delete and compare-and-swap operations
to a key-value state, seals every batch into a SHA-256 hash chain and
persists both to SQLite.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "config file (yaml, json or toml)")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewRuleCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// loadConfig resolves the configuration, letting the named command flags
// (config key -> flag name) override file and environment values.
func (o *RootOptions) loadConfig(cmd *cobra.Command, binds map[string]string) (*config.Config, *viper.Viper, error) {
	v := viper.New()
	for key, name := range binds {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, nil, WrapExitError(ExitCommandError, "bind flag", err)
			}
		}
	}
	cfg, err := config.Load(v, o.Config)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	return cfg, v, nil
}

// logger builds the process logger. --verbose forces debug.
func (o *RootOptions) logger(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, *slog.LevelVar, io.Closer, error) {
	level := new(slog.LevelVar)
	logger, closer, err := config.NewLogger(cfg.Log, cmd.ErrOrStderr(), level)
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitCommandError, "logger", err)
	}
	if o.Verbose {
		level.Set(slog.LevelDebug)
	}
	return logger, level, closer, nil
}

// session is a configured, initialized Runtime for one-shot commands.
type session struct {
	rt     *bridge.Runtime
	logger *slog.Logger
	closer io.Closer
}

func (o *RootOptions) openSession(ctx context.Context, cmd *cobra.Command) (*session, error) {
	cfg, _, err := o.loadConfig(cmd, map[string]string{"db": "db"})
	if err != nil {
		return nil, err
	}
	logger, _, closer, err := o.logger(cmd, cfg)
	if err != nil {
		return nil, err
	}
	rt := bridge.NewRuntime(cfg.RuntimeOptions(logger)...)
	if err := rt.Init(ctx); err != nil {
		closer.Close()
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("open %s", cfg.DB), err)
	}
	return &session{rt: rt, logger: logger, closer: closer}, nil
}

func (s *session) Close() {
	if err := s.rt.Teardown(); err != nil {
		s.logger.Warn("teardown", "error", err)
	}
	s.closer.Close()
}
