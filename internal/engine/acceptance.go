package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// decisionSetter records a caller decision on a transfer.
type decisionSetter func(t *model.IndividualTransfer, accept bool)

func setAcceptParty(t *model.IndividualTransfer, accept bool) {
	t.AcceptParty = &accept
	t.State = model.TransferStateDiscoveryRejected
	if accept {
		t.State = model.TransferStateDiscoveryAccepted
	}
}

func setAcceptQuote(t *model.IndividualTransfer, accept bool) {
	t.AcceptQuote = &accept
	t.State = model.TransferStateAgreementRejected
	if accept {
		t.State = model.TransferStateAgreementAccepted
	}
}

// decide applies a decision to one transfer if it is still in state from.
func (p *Processor) decide(ctx context.Context, bulkID, id string, from model.TransferState, accept bool, set decisionSetter) error {
	_, _, err := p.repo.TransitionIndividualTransfer(ctx, bulkID, id,
		[]model.TransferState{from},
		func(t *model.IndividualTransfer) error {
			set(t, accept)
			return nil
		},
	)
	return err
}

// applyDecisions applies caller decisions to every transfer of bt in
// state from. Transfers the caller did not mention are rejected;
// decisions for transfers outside the bulk are ignored.
func (p *Processor) applyDecisions(
	ctx context.Context,
	c event.Command,
	bt model.BulkTransaction,
	decisions []model.AcceptDecision,
	from model.TransferState,
	set decisionSetter,
) error {
	accepted := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if !slices.Contains(bt.IndividualTransferIDs, d.TransferID) {
			slog.Warn("ignoring decision for unknown transfer",
				"command", c.EventName(),
				"bulk_id", bt.ID,
				"transfer_id", d.TransferID,
			)
			continue
		}
		accepted[d.TransferID] = d.Accept
	}

	for _, id := range bt.IndividualTransferIDs {
		if err := p.decide(ctx, bt.ID, id, from, accepted[id], set); err != nil {
			return storageError(c, "apply decision", err)
		}
	}
	return nil
}
