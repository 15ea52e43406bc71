package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
)

// ValidationResult describes a decoded envelope.
type ValidationResult struct {
	Valid  bool       `json:"valid"`
	Name   event.Name `json:"name,omitempty"`
	Kind   string     `json:"kind,omitempty"` // "command" | "domain event"
	BulkID string     `json:"bulkId,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <envelope.json>",
		Short: "Check a command or domain event envelope",
		Long: `Decode a JSON envelope the way the bus boundary does: the name must
be a known command or domain event and the content must satisfy its
schema. Use - to read from stdin.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(cmd.InOrStdin())
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		if outErr := formatter.Error(ErrCodeInvalidInput, err.Error(), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "failed to read envelope", err)
	}

	env, err := event.ParseEnvelope(data)
	if err == nil {
		var p event.Payload
		if p, err = event.Decode(env); err == nil {
			result := ValidationResult{Valid: true, Name: p.EventName(), Kind: "domain event", BulkID: p.Bulk()}
			if event.IsCommand(p.EventName()) {
				result.Kind = "command"
			}
			formatter.VerboseLog("envelope timestamp %s", env.Time())
			return formatter.Success(result, func(w io.Writer) {
				fmt.Fprintf(w, "✓ %s %s (bulk %s)\n", result.Kind, result.Name, result.BulkID)
			})
		}
	}

	if outErr := formatter.Error(ErrCodeInvalid, err.Error(), nil); outErr != nil {
		return outErr
	}
	return WrapExitError(ExitFailure, "invalid envelope", err)
}
