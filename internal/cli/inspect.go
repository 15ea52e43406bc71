package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

// Inspection is the stored aggregate of one bulk.
type Inspection struct {
	Bulk      model.BulkTransaction      `json:"bulk"`
	Counters  model.Counters             `json:"counters"`
	Transfers []model.IndividualTransfer `json:"transfers"`
	Batches   []model.BulkBatch          `json:"batches"`
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <bulk-id>",
		Short: "Print the stored state of a bulk",
		Long: `Print a bulk transaction as stored: its state and counters, every
individual transfer and every batch.

The database comes from --db or BULKFLOW_DB_PATH; BULKFLOW_KEY_PREFIX
selects the namespace.

Example:
  bulkflow inspect --db ./bulk.db bulk-0001
  bulkflow inspect --db ./bulk.db --format json bulk-0001`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database")

	return cmd
}

func runInspect(opts *InspectOptions, bulkID string, cmd *cobra.Command) error {
	cfg, err := loadSettings(opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	path, prefix := storeSettings(cfg, opts.Database)
	if path == "" {
		return NewExitError(ExitCommandError, "no database: pass --db or set BULKFLOW_DB_PATH")
	}

	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	repo := store.NewRepository(st, store.WithKeyPrefix(prefix))
	if err := repo.Init(ctx); err != nil {
		return WrapExitError(ExitCommandError, "failed to open repository", err)
	}

	formatter := newFormatter(opts.RootOptions, cmd)
	in, err := loadInspection(ctx, repo, bulkID)
	if errors.Is(err, store.ErrNotFound) {
		if outErr := formatter.Error(ErrCodeNotFound, fmt.Sprintf("bulk %s not found", bulkID), nil); outErr != nil {
			return outErr
		}
		return WrapExitError(ExitCommandError, "bulk not found", err)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read bulk", err)
	}

	return formatter.Success(in, func(w io.Writer) { printInspection(w, in) })
}

func loadInspection(ctx context.Context, repo *store.Repository, bulkID string) (*Inspection, error) {
	bt, err := repo.Load(ctx, bulkID)
	if err != nil {
		return nil, err
	}
	in := &Inspection{
		Bulk:      bt,
		Counters:  bt.Counters,
		Transfers: make([]model.IndividualTransfer, 0, len(bt.IndividualTransferIDs)),
		Batches:   make([]model.BulkBatch, 0, len(bt.BatchIDs)),
	}
	for _, id := range bt.IndividualTransferIDs {
		it, err := repo.GetIndividualTransfer(ctx, bulkID, id)
		if err != nil {
			return nil, err
		}
		in.Transfers = append(in.Transfers, it)
	}
	for _, id := range bt.BatchIDs {
		b, err := repo.GetBulkBatch(ctx, bulkID, id)
		if err != nil {
			return nil, err
		}
		in.Batches = append(in.Batches, b)
	}
	return in, nil
}

func printInspection(w io.Writer, in *Inspection) {
	bt := in.Bulk
	fmt.Fprintf(w, "bulk: %s %s\n", bt.ID, bt.State)
	if bt.BulkHomeTransactionID != "" {
		fmt.Fprintf(w, "home: %s\n", bt.BulkHomeTransactionID)
	}
	if exp := bt.Options.BulkExpiration; !exp.IsZero() {
		fmt.Fprintf(w, "expires: %s\n", exp.UTC().Format("2006-01-02T15:04:05Z"))
	}
	c := in.Counters
	fmt.Fprintf(w, "counters: partyLookup=%d/%d/%d bulkQuotes=%d/%d/%d bulkTransfers=%d/%d/%d\n",
		c.PartyLookup.Total, c.PartyLookup.Success, c.PartyLookup.Failed,
		c.BulkQuotes.Total, c.BulkQuotes.Success, c.BulkQuotes.Failed,
		c.BulkTransfers.Total, c.BulkTransfers.Success, c.BulkTransfers.Failed,
	)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "transfers:")
	for _, it := range in.Transfers {
		code := "-"
		if it.LastError != nil {
			code = it.LastError.ErrorCode
		}
		fsp := it.DestinationFspID()
		if fsp == "" {
			fsp = "-"
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\t%s\n", it.ID, it.Request.HomeTransactionID, it.State, fsp, code)
	}
	fmt.Fprintln(tw, "batches:")
	for _, b := range in.Batches {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%d\n", b.ID, b.DestinationFspID, b.State, len(b.IndividualTransferIDs))
	}
	_ = tw.Flush()
}
