package cli

import (
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/config"
)

// loadSettings parses BULKFLOW_* settings and installs the process logger.
// --verbose forces debug logging.
func loadSettings(opts *RootOptions, stderr io.Writer) (config.Config, error) {
	cfg, err := config.Parse()
	if err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid settings", err)
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, WrapExitError(ExitCommandError, "invalid settings", err)
	}

	level, _ := cfg.Level()
	if opts.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	return cfg, nil
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}
