package engine

import (
	"context"
	"log/slog"
	"slices"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/event"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/ids"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/store"
)

// discoveryStates are the bulk states in which the discovery outcome is
// still the latest news.
var discoveryStates = []model.BulkState{
	model.BulkStateDiscoveryCompleted,
	model.BulkStateDiscoveryAcceptancePending,
	model.BulkStateDiscoveryAcceptanceCompleted,
}

// handleBulkRequest creates the bulk and its transfers. A bulk id that
// already exists is a replay.
func (p *Processor) handleBulkRequest(ctx context.Context, c *event.ProcessSDKOutboundBulkRequest, out *outbox) error {
	req := c.Request
	if err := req.Validate(); err != nil {
		return malformed(c, err, "invalid bulk request")
	}
	bulkID := req.BulkTransactionID

	exists, err := p.repo.IsBulkIDExists(ctx, bulkID)
	if err != nil {
		return storageError(c, "check bulk", err)
	}
	if exists {
		return p.replayBulkRequest(ctx, c, out)
	}

	now := p.clock.Now()
	opts := req.Options
	if opts.BulkExpiration.IsZero() && p.defaultExpiry > 0 {
		opts.BulkExpiration = now.Add(p.defaultExpiry)
	}

	// Transfers first: a bulk that exists always has all of its transfers.
	// Neither write replaces what a concurrent duplicate already stored.
	transferIDs := make([]string, len(req.IndividualTransfers))
	for i, tr := range req.IndividualTransfers {
		id := ids.TransferID(bulkID, i)
		transferIDs[i] = id
		it := model.IndividualTransfer{
			ID:                id,
			BulkTransactionID: bulkID,
			Request:           tr,
			State:             model.TransferStateNew,
		}
		if _, err := p.repo.CreateIndividualTransfer(ctx, bulkID, id, it); err != nil {
			return storageError(c, "store transfer", err)
		}
	}

	bt := model.BulkTransaction{
		ID:                    bulkID,
		BulkHomeTransactionID: req.BulkHomeTransactionID,
		From:                  req.From,
		Options:               opts,
		IndividualTransferIDs: transferIDs,
		BatchIDs:              []string{},
		State:                 model.BulkStateReceived,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	created, err := p.repo.CreateBulk(ctx, bulkID, bt)
	if err != nil {
		return storageError(c, "store bulk", err)
	}
	if !created {
		return p.replayBulkRequest(ctx, c, out)
	}

	slog.Info("bulk received",
		"bulk_id", bulkID,
		"transfers", len(transferIDs),
		"expires", opts.BulkExpiration,
	)
	out.add(&event.SDKOutboundBulkRequestReceived{Ref: event.Ref{BulkID: bulkID}, State: bt.State, Options: opts})
	return nil
}

func (p *Processor) replayBulkRequest(ctx context.Context, c *event.ProcessSDKOutboundBulkRequest, out *outbox) error {
	bulkID := c.Request.BulkTransactionID
	bt, err := p.repo.Load(ctx, bulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	slog.Debug("bulk request replayed", "bulk_id", bulkID, "state", bt.State)
	out.add(&event.SDKOutboundBulkRequestReceived{Ref: event.Ref{BulkID: bulkID}, State: bt.State, Options: bt.Options})
	return nil
}

// handlePartyInfoRequest starts discovery: one lookup per transfer unless
// the request already names the payee institution and lookups are
// skipped.
func (p *Processor) handlePartyInfoRequest(ctx context.Context, c *event.ProcessSDKOutboundBulkPartyInfoRequest, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}

	switch bt.State {
	case model.BulkStateReceived:
		// The total is set before any item moves so that the join can
		// never observe a closed phase while lookups are still going out.
		total := store.CounterIncrement{Field: store.FieldPartyLookupTotal, Delta: int64(len(bt.IndividualTransferIDs))}
		_, bt, err = p.repo.TransitionBulkState(ctx, c.BulkID,
			[]model.BulkState{model.BulkStateReceived},
			p.setBulkState(model.BulkStateDiscoveryProcessing),
			total,
		)
		if err != nil {
			return storageError(c, "start discovery", err)
		}
		if bt.State != model.BulkStateDiscoveryProcessing {
			return p.replayDiscovery(ctx, c, bt, out)
		}
		slog.Info("discovery started", "bulk_id", c.BulkID, "transfers", len(bt.IndividualTransferIDs))
	case model.BulkStateDiscoveryProcessing:
		// Redelivery: finish the fan-out below.
	default:
		return p.replayDiscovery(ctx, c, bt, out)
	}

	skip := bt.Options.SkipPartyLookup
	for _, id := range bt.IndividualTransferIDs {
		it, err := p.repo.GetIndividualTransfer(ctx, c.BulkID, id)
		if err != nil {
			return storageError(c, "load transfer", err)
		}

		if it.State == model.TransferStateNew && skip && it.Request.To.FspID() != "" {
			_, _, err := p.repo.TransitionIndividualTransfer(ctx, c.BulkID, id,
				[]model.TransferState{model.TransferStateNew},
				func(t *model.IndividualTransfer) error {
					party := t.Request.To
					t.PartyResponse = &party
					t.State = model.TransferStateDiscoverySuccess
					return nil
				},
				store.Inc(store.FieldPartyLookupSuccess),
			)
			if err != nil {
				return storageError(c, "skip lookup", err)
			}
			continue
		}

		if it.State == model.TransferStateNew {
			_, it, err = p.repo.TransitionIndividualTransfer(ctx, c.BulkID, id,
				[]model.TransferState{model.TransferStateNew},
				func(t *model.IndividualTransfer) error {
					t.State = model.TransferStateDiscoveryProcessing
					return nil
				},
			)
			if err != nil {
				return storageError(c, "request party", err)
			}
		}

		if it.State == model.TransferStateDiscoveryProcessing {
			out.add(&event.PartyInfoRequested{
				Ref:         event.Ref{BulkID: c.BulkID},
				TransferID:  id,
				PartyIDInfo: it.Request.To.PartyIDInfo,
			})
		}
	}

	return p.joinDiscovery(ctx, c, out, false)
}

// replayDiscovery handles a party info request that arrives after
// discovery started elsewhere.
func (p *Processor) replayDiscovery(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	if bt.State == model.BulkStateDiscoveryProcessing || slices.Contains(discoveryStates, bt.State) {
		return p.joinDiscovery(ctx, c, out, true)
	}
	return unexpectedState(c, bt.State)
}

// handlePartyInfoCallback records one lookup result.
func (p *Processor) handlePartyInfoCallback(ctx context.Context, c *event.ProcessPartyInfoCallback, out *outbox) error {
	found := c.ErrorInformation == nil && c.Party.FspID() != ""

	inc := store.Inc(store.FieldPartyLookupFailed)
	if found {
		inc = store.Inc(store.FieldPartyLookupSuccess)
	}

	applied, it, err := p.repo.TransitionIndividualTransfer(ctx, c.BulkID, c.TransferID,
		[]model.TransferState{model.TransferStateDiscoveryProcessing},
		func(t *model.IndividualTransfer) error {
			if found {
				party := *c.Party
				t.PartyResponse = &party
				t.State = model.TransferStateDiscoverySuccess
				return nil
			}
			errInfo := c.ErrorInformation
			if errInfo == nil {
				errInfo = model.NewErrorInformation(model.ErrorCodePartyNotFound, "party has no owning institution")
			}
			t.PartyError = errInfo
			t.LastError = errInfo
			t.State = model.TransferStateDiscoveryFailed
			return nil
		},
		inc,
	)
	if err != nil {
		return storageError(c, "record party", err)
	}
	if !applied && it.State == model.TransferStateNew {
		return &ProcessingError{
			Code:    ErrCodeOrdering,
			Message: "party callback before lookup was requested",
			Command: c.EventName(),
			BulkID:  c.BulkID,
		}
	}

	slog.Debug("party lookup recorded",
		"bulk_id", c.BulkID,
		"transfer_id", c.TransferID,
		"state", it.State,
		"replay", !applied,
	)
	out.add(&event.PartyInfoCallbackProcessed{Ref: event.Ref{BulkID: c.BulkID}, TransferID: c.TransferID, State: it.State})

	return p.joinDiscovery(ctx, c, out, !applied)
}

// joinDiscovery closes discovery once every lookup has an outcome. Of the
// handlers that see the phase closed, the one whose transition applies
// continues; the others stay silent unless they are replays.
func (p *Processor) joinDiscovery(ctx context.Context, c event.Command, out *outbox, replay bool) error {
	bt, err := p.repo.Load(ctx, c.Bulk())
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	if !bt.Counters.PartyLookup.Closed() {
		return nil
	}

	if bt.State == model.BulkStateDiscoveryProcessing {
		var applied bool
		applied, bt, err = p.repo.TransitionBulkState(ctx, bt.ID,
			[]model.BulkState{model.BulkStateDiscoveryProcessing},
			p.setBulkState(model.BulkStateDiscoveryCompleted),
		)
		if err != nil {
			return storageError(c, "complete discovery", err)
		}
		if !applied && !replay {
			return nil
		}
		if applied {
			slog.Info("discovery completed",
				"bulk_id", bt.ID,
				"success", bt.Counters.PartyLookup.Success,
				"failed", bt.Counters.PartyLookup.Failed,
			)
		}
	} else if !replay {
		return nil
	}

	return p.advanceDiscovery(ctx, c, bt, out)
}

// advanceDiscovery moves a completed discovery to acceptance and emits
// the phase events for whatever state the bulk is in.
func (p *Processor) advanceDiscovery(ctx context.Context, c event.Command, bt model.BulkTransaction, out *outbox) error {
	if bt.State == model.BulkStateDiscoveryCompleted && !bt.Options.OnlyValidateParty {
		next := model.BulkStateDiscoveryAcceptancePending
		if bt.Options.AcceptsPartyAutomatically() {
			next = model.BulkStateDiscoveryAcceptanceCompleted
			for _, id := range bt.IndividualTransferIDs {
				if err := p.decide(ctx, bt.ID, id, model.TransferStateDiscoverySuccess, true, setAcceptParty); err != nil {
					return storageError(c, "accept party", err)
				}
			}
		}
		var err error
		_, bt, err = p.repo.TransitionBulkState(ctx, bt.ID,
			[]model.BulkState{model.BulkStateDiscoveryCompleted},
			p.setBulkState(next),
		)
		if err != nil {
			return storageError(c, "advance discovery", err)
		}
	}

	if !slices.Contains(discoveryStates, bt.State) {
		return nil
	}

	ref := event.Ref{BulkID: bt.ID}
	out.add(&event.SDKOutboundBulkPartyInfoRequestProcessed{Ref: ref, State: bt.State, Counters: bt.Counters.PartyLookup})

	if bt.State == model.BulkStateDiscoveryAcceptancePending {
		items, err := p.loadTransfers(ctx, bt)
		if err != nil {
			return storageError(c, "load transfers", err)
		}
		out.add(&event.SDKOutboundBulkAcceptPartyInfoRequested{
			Ref:       ref,
			Transfers: acceptanceItems(items, model.TransferStateDiscoverySuccess),
		})
	}
	return nil
}

// handleAcceptPartyInfo applies the caller's party decisions. Transfers
// without a decision are rejected.
func (p *Processor) handleAcceptPartyInfo(ctx context.Context, c *event.ProcessSDKOutboundBulkAcceptPartyInfo, out *outbox) error {
	bt, err := p.repo.Load(ctx, c.BulkID)
	if err != nil {
		return storageError(c, "load bulk", err)
	}
	ref := event.Ref{BulkID: c.BulkID}

	switch bt.State {
	case model.BulkStateDiscoveryAcceptancePending:
	case model.BulkStateDiscoveryAcceptanceCompleted:
		out.add(&event.SDKOutboundBulkAcceptPartyInfoProcessed{Ref: ref, State: bt.State})
		return nil
	default:
		return unexpectedState(c, bt.State)
	}

	if err := p.applyDecisions(ctx, c, bt, c.Decisions, model.TransferStateDiscoverySuccess, setAcceptParty); err != nil {
		return err
	}

	_, bt, err = p.repo.TransitionBulkState(ctx, c.BulkID,
		[]model.BulkState{model.BulkStateDiscoveryAcceptancePending},
		p.setBulkState(model.BulkStateDiscoveryAcceptanceCompleted),
	)
	if err != nil {
		return storageError(c, "complete party acceptance", err)
	}
	if bt.State != model.BulkStateDiscoveryAcceptanceCompleted {
		return unexpectedState(c, bt.State)
	}

	slog.Info("party acceptance completed", "bulk_id", c.BulkID, "decisions", len(c.Decisions))
	out.add(&event.SDKOutboundBulkAcceptPartyInfoProcessed{Ref: ref, State: bt.State})
	return nil
}
