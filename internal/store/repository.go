package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync/atomic"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

var (
	// ErrRepositoryNotReady is returned by every Repository method until
	// Init has succeeded.
	ErrRepositoryNotReady = errors.New("store: repository not ready")

	// ErrNotFound is returned when a bulk, transfer or batch does not exist.
	ErrNotFound = errors.New("store: not found")
)

const (
	keyBase              = "outboundBulkTransaction_"
	fieldBulkTransaction = "bulkTransaction"
	fieldItemPrefix      = "individualItem_"
	fieldBatchPrefix     = "bulkBatch_"
)

// CounterField names one of the nine native counter fields of a bulk.
type CounterField string

const (
	FieldPartyLookupTotal     CounterField = "partyLookupTotalCount"
	FieldPartyLookupSuccess   CounterField = "partyLookupSuccessCount"
	FieldPartyLookupFailed    CounterField = "partyLookupFailedCount"
	FieldBulkQuotesTotal      CounterField = "bulkQuotesTotalCount"
	FieldBulkQuotesSuccess    CounterField = "bulkQuotesSuccessCount"
	FieldBulkQuotesFailed     CounterField = "bulkQuotesFailedCount"
	FieldBulkTransfersTotal   CounterField = "bulkTransfersTotalCount"
	FieldBulkTransfersSuccess CounterField = "bulkTransfersSuccessCount"
	FieldBulkTransfersFailed  CounterField = "bulkTransfersFailedCount"
)

// CounterIncrement is applied together with a conditional transition.
type CounterIncrement struct {
	Field CounterField
	Delta int64
}

// Inc is a CounterIncrement of one.
func Inc(field CounterField) CounterIncrement {
	return CounterIncrement{Field: field, Delta: 1}
}

// RepositoryOption configures a Repository.
type RepositoryOption func(*Repository)

// WithKeyPrefix namespaces every key, e.g. per deployment.
func WithKeyPrefix(prefix string) RepositoryOption {
	return func(r *Repository) {
		r.prefix = prefix
	}
}

// Repository stores bulk transactions, their transfers and batches in a
// HashStore.
type Repository struct {
	hash   HashStore
	prefix string
	ready  atomic.Bool
}

// NewRepository creates a repository over hash. Call Init before use.
func NewRepository(hash HashStore, opts ...RepositoryOption) *Repository {
	r := &Repository{hash: hash}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Init checks the backend is reachable and marks the repository ready.
func (r *Repository) Init(ctx context.Context) error {
	if err := r.hash.Ping(ctx); err != nil {
		return fmt.Errorf("init repository: %w", err)
	}
	r.ready.Store(true)
	return nil
}

// Ready reports whether Init has succeeded.
func (r *Repository) Ready() bool {
	return r.ready.Load()
}

func (r *Repository) check() error {
	if !r.ready.Load() {
		return ErrRepositoryNotReady
	}
	return nil
}

func (r *Repository) key(bulkID string) string {
	return r.prefix + keyBase + bulkID
}

func (r *Repository) view(ctx context.Context, bulkID string) HashTx {
	return keyView{ctx: ctx, hash: r.hash, key: r.key(bulkID)}
}

// notFound converts ErrFieldNotFound into ErrNotFound for callers.
func notFound(what, id string, err error) error {
	if errors.Is(err, ErrFieldNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("%s %s: %w", what, id, err)
}

// Load returns the bulk transaction with its counters.
func (r *Repository) Load(ctx context.Context, bulkID string) (model.BulkTransaction, error) {
	if err := r.check(); err != nil {
		return model.BulkTransaction{}, err
	}
	bt, err := readBulk(r.view(ctx, bulkID))
	if err != nil {
		return model.BulkTransaction{}, notFound("load bulk", bulkID, err)
	}
	return bt, nil
}

// Store writes the bulk transaction blob. Counters are not written.
func (r *Repository) Store(ctx context.Context, bulkID string, bt model.BulkTransaction) error {
	if err := r.check(); err != nil {
		return err
	}
	data, err := marshalBlob(bt)
	if err != nil {
		return fmt.Errorf("store bulk %s: %w", bulkID, err)
	}
	if err := r.hash.HSet(ctx, r.key(bulkID), fieldBulkTransaction, data); err != nil {
		return fmt.Errorf("store bulk %s: %w", bulkID, err)
	}
	return nil
}

// Remove deletes the bulk transaction and everything stored under it.
func (r *Repository) Remove(ctx context.Context, bulkID string) error {
	if err := r.check(); err != nil {
		return err
	}
	if err := r.hash.Del(ctx, r.key(bulkID)); err != nil {
		return fmt.Errorf("remove bulk %s: %w", bulkID, err)
	}
	return nil
}

// IsBulkIDExists reports whether the bulk transaction blob is stored.
func (r *Repository) IsBulkIDExists(ctx context.Context, bulkID string) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	_, err := r.hash.HGet(ctx, r.key(bulkID), fieldBulkTransaction)
	if errors.Is(err, ErrFieldNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists bulk %s: %w", bulkID, err)
	}
	return true, nil
}

// GetAllBulkIDs lists every stored bulk id.
func (r *Repository) GetAllBulkIDs(ctx context.Context) ([]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	base := r.prefix + keyBase
	keys, err := r.hash.Keys(ctx, base)
	if err != nil {
		return nil, fmt.Errorf("list bulks: %w", err)
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, base))
	}
	return out, nil
}

// GetIndividualTransfer returns one transfer of the bulk.
func (r *Repository) GetIndividualTransfer(ctx context.Context, bulkID, id string) (model.IndividualTransfer, error) {
	if err := r.check(); err != nil {
		return model.IndividualTransfer{}, err
	}
	data, err := r.hash.HGet(ctx, r.key(bulkID), fieldItemPrefix+id)
	if err != nil {
		return model.IndividualTransfer{}, notFound("get transfer", id, err)
	}
	return unmarshalBlob[model.IndividualTransfer](data)
}

// SetIndividualTransfer writes one transfer of the bulk.
func (r *Repository) SetIndividualTransfer(ctx context.Context, bulkID, id string, it model.IndividualTransfer) error {
	if err := r.check(); err != nil {
		return err
	}
	data, err := marshalBlob(it)
	if err != nil {
		return fmt.Errorf("set transfer %s: %w", id, err)
	}
	if err := r.hash.HSet(ctx, r.key(bulkID), fieldItemPrefix+id, data); err != nil {
		return fmt.Errorf("set transfer %s: %w", id, err)
	}
	return nil
}

// GetAllIndividualTransferIDs lists the transfer ids stored for the bulk,
// sorted. Use BulkTransaction.IndividualTransferIDs for request order.
func (r *Repository) GetAllIndividualTransferIDs(ctx context.Context, bulkID string) ([]string, error) {
	return r.fieldIDs(ctx, bulkID, fieldItemPrefix)
}

// GetBulkBatch returns one batch of the bulk.
func (r *Repository) GetBulkBatch(ctx context.Context, bulkID, id string) (model.BulkBatch, error) {
	if err := r.check(); err != nil {
		return model.BulkBatch{}, err
	}
	data, err := r.hash.HGet(ctx, r.key(bulkID), fieldBatchPrefix+id)
	if err != nil {
		return model.BulkBatch{}, notFound("get batch", id, err)
	}
	return unmarshalBlob[model.BulkBatch](data)
}

// SetBulkBatch writes one batch of the bulk.
func (r *Repository) SetBulkBatch(ctx context.Context, bulkID, id string, b model.BulkBatch) error {
	if err := r.check(); err != nil {
		return err
	}
	data, err := marshalBlob(b)
	if err != nil {
		return fmt.Errorf("set batch %s: %w", id, err)
	}
	if err := r.hash.HSet(ctx, r.key(bulkID), fieldBatchPrefix+id, data); err != nil {
		return fmt.Errorf("set batch %s: %w", id, err)
	}
	return nil
}

// CreateIndividualTransfer writes the transfer only if it is not stored
// yet, and reports whether it did.
func (r *Repository) CreateIndividualTransfer(ctx context.Context, bulkID, id string, it model.IndividualTransfer) (bool, error) {
	created, err := r.create(ctx, bulkID, fieldItemPrefix+id, it)
	if err != nil {
		return false, notFound("create transfer", id, err)
	}
	return created, nil
}

// CreateBulk writes the bulk transaction blob only if the bulk is not
// stored yet, and reports whether it did.
func (r *Repository) CreateBulk(ctx context.Context, bulkID string, bt model.BulkTransaction) (bool, error) {
	created, err := r.create(ctx, bulkID, fieldBulkTransaction, bt)
	if err != nil {
		return false, notFound("create bulk", bulkID, err)
	}
	return created, nil
}

func (r *Repository) create(ctx context.Context, bulkID, field string, v any) (bool, error) {
	if err := r.check(); err != nil {
		return false, err
	}
	data, err := marshalBlob(v)
	if err != nil {
		return false, err
	}

	var created bool
	err = r.hash.Atomic(ctx, r.key(bulkID), func(tx HashTx) error {
		created, err = setAbsent(tx, field, data)
		return err
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// setAbsent writes data to field unless the field already holds a blob.
func setAbsent(tx HashTx, field string, data []byte) (bool, error) {
	_, err := tx.Get(field)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, ErrFieldNotFound) {
		return false, err
	}
	return true, tx.Set(field, data)
}

// GetAllBulkBatchIDs lists the batch ids stored for the bulk, sorted.
func (r *Repository) GetAllBulkBatchIDs(ctx context.Context, bulkID string) ([]string, error) {
	return r.fieldIDs(ctx, bulkID, fieldBatchPrefix)
}

func (r *Repository) fieldIDs(ctx context.Context, bulkID, prefix string) ([]string, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	fields, err := r.hash.HKeys(ctx, r.key(bulkID), prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s of %s: %w", prefix, bulkID, err)
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, strings.TrimPrefix(f, prefix))
	}
	return out, nil
}

// GetCounters reads the nine counters of the bulk.
func (r *Repository) GetCounters(ctx context.Context, bulkID string) (model.Counters, error) {
	if err := r.check(); err != nil {
		return model.Counters{}, err
	}
	c, err := readCounters(r.view(ctx, bulkID))
	if err != nil {
		return c, fmt.Errorf("counters %s: %w", bulkID, err)
	}
	return c, nil
}

// increment adds delta to a counter of an existing bulk. A bulk that is
// not stored fails with ErrNotFound instead of growing stray counters.
func (r *Repository) increment(ctx context.Context, bulkID string, field CounterField, delta int64) (int64, error) {
	if err := r.check(); err != nil {
		return 0, err
	}
	var n int64
	err := r.hash.Atomic(ctx, r.key(bulkID), func(tx HashTx) error {
		if _, err := tx.Get(fieldBulkTransaction); err != nil {
			return err
		}
		var err error
		n, err = tx.IncrBy(string(field), delta)
		return err
	})
	if err != nil {
		return 0, notFound("increment "+string(field)+" of bulk", bulkID, err)
	}
	return n, nil
}

// IncrementPartyLookupTotalCount adds delta to the number of lookups
// started and returns the new value.
func (r *Repository) IncrementPartyLookupTotalCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldPartyLookupTotal, delta)
}

// IncrementPartyLookupSuccessCount adds delta to the resolved lookups.
func (r *Repository) IncrementPartyLookupSuccessCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldPartyLookupSuccess, delta)
}

// IncrementPartyLookupFailedCount adds delta to the failed lookups.
func (r *Repository) IncrementPartyLookupFailedCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldPartyLookupFailed, delta)
}

// IncrementBulkQuotesTotalCount adds delta to the number of quote batches
// sent.
func (r *Repository) IncrementBulkQuotesTotalCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkQuotesTotal, delta)
}

// IncrementBulkQuotesSuccessCount adds delta to the quote batches that
// closed successfully.
func (r *Repository) IncrementBulkQuotesSuccessCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkQuotesSuccess, delta)
}

// IncrementBulkQuotesFailedCount adds delta to the failed quote batches.
func (r *Repository) IncrementBulkQuotesFailedCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkQuotesFailed, delta)
}

// IncrementBulkTransfersTotalCount adds delta to the number of transfer
// batches sent.
func (r *Repository) IncrementBulkTransfersTotalCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkTransfersTotal, delta)
}

// IncrementBulkTransfersSuccessCount adds delta to the transfer batches
// that closed successfully.
func (r *Repository) IncrementBulkTransfersSuccessCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkTransfersSuccess, delta)
}

// IncrementBulkTransfersFailedCount adds delta to the failed transfer
// batches.
func (r *Repository) IncrementBulkTransfersFailedCount(ctx context.Context, bulkID string, delta int64) (int64, error) {
	return r.increment(ctx, bulkID, FieldBulkTransfersFailed, delta)
}

// TransitionBulkState applies mutate to the bulk only if its current state
// is one of from. The blob write and incs commit together.
//
// Returns whether the transition applied and the bulk as it is after the
// call (with counters).
func (r *Repository) TransitionBulkState(
	ctx context.Context,
	bulkID string,
	from []model.BulkState,
	mutate func(*model.BulkTransaction) error,
	incs ...CounterIncrement,
) (bool, model.BulkTransaction, error) {
	return r.transitionBulk(ctx, bulkID, from, mutate, nil, incs)
}

// TransitionBulkStateWithBatches is TransitionBulkState that also stores
// batches in the same commit, so that the batches exist exactly when the
// transition applied. A batch that is already stored is left as it is.
func (r *Repository) TransitionBulkStateWithBatches(
	ctx context.Context,
	bulkID string,
	from []model.BulkState,
	mutate func(*model.BulkTransaction) error,
	batches []model.BulkBatch,
	incs ...CounterIncrement,
) (bool, model.BulkTransaction, error) {
	blobs := make(map[string][]byte, len(batches))
	for _, b := range batches {
		data, err := marshalBlob(b)
		if err != nil {
			return false, model.BulkTransaction{}, fmt.Errorf("transition bulk %s: batch %s: %w", bulkID, b.ID, err)
		}
		blobs[fieldBatchPrefix+b.ID] = data
	}
	return r.transitionBulk(ctx, bulkID, from, mutate, func(tx HashTx) error {
		for field, data := range blobs {
			if _, err := setAbsent(tx, field, data); err != nil {
				return err
			}
		}
		return nil
	}, incs)
}

func (r *Repository) transitionBulk(
	ctx context.Context,
	bulkID string,
	from []model.BulkState,
	mutate func(*model.BulkTransaction) error,
	also func(HashTx) error,
	incs []CounterIncrement,
) (bool, model.BulkTransaction, error) {
	if err := r.check(); err != nil {
		return false, model.BulkTransaction{}, err
	}

	var applied bool
	var out model.BulkTransaction
	err := r.hash.Atomic(ctx, r.key(bulkID), func(tx HashTx) error {
		bt, err := readBulk(tx)
		if err != nil {
			return err
		}
		out = bt
		if !slices.Contains(from, bt.State) {
			return nil
		}
		if mutate != nil {
			if err := mutate(&bt); err != nil {
				return err
			}
		}
		if also != nil {
			if err := also(tx); err != nil {
				return err
			}
		}
		if err := writeAndCount(tx, fieldBulkTransaction, bt, incs); err != nil {
			return err
		}
		if bt.Counters, err = readCounters(tx); err != nil {
			return err
		}
		out, applied = bt, true
		return nil
	})
	if err != nil {
		return false, model.BulkTransaction{}, notFound("transition bulk", bulkID, err)
	}
	return applied, out, nil
}

// TransitionIndividualTransfer applies mutate to the transfer only if its
// current state is one of from.
func (r *Repository) TransitionIndividualTransfer(
	ctx context.Context,
	bulkID, id string,
	from []model.TransferState,
	mutate func(*model.IndividualTransfer) error,
	incs ...CounterIncrement,
) (bool, model.IndividualTransfer, error) {
	if err := r.check(); err != nil {
		return false, model.IndividualTransfer{}, err
	}

	field := fieldItemPrefix + id
	var applied bool
	var out model.IndividualTransfer
	err := r.hash.Atomic(ctx, r.key(bulkID), func(tx HashTx) error {
		data, err := tx.Get(field)
		if err != nil {
			return err
		}
		it, err := unmarshalBlob[model.IndividualTransfer](data)
		if err != nil {
			return err
		}
		out = it
		if !slices.Contains(from, it.State) {
			return nil
		}
		if mutate != nil {
			if err := mutate(&it); err != nil {
				return err
			}
		}
		if err := writeAndCount(tx, field, it, incs); err != nil {
			return err
		}
		out, applied = it, true
		return nil
	})
	if err != nil {
		return false, model.IndividualTransfer{}, notFound("transition transfer", id, err)
	}
	return applied, out, nil
}

// TransitionBulkBatch applies mutate to the batch only if its current
// state is one of from.
func (r *Repository) TransitionBulkBatch(
	ctx context.Context,
	bulkID, id string,
	from []model.BatchState,
	mutate func(*model.BulkBatch) error,
	incs ...CounterIncrement,
) (bool, model.BulkBatch, error) {
	if err := r.check(); err != nil {
		return false, model.BulkBatch{}, err
	}

	field := fieldBatchPrefix + id
	var applied bool
	var out model.BulkBatch
	err := r.hash.Atomic(ctx, r.key(bulkID), func(tx HashTx) error {
		data, err := tx.Get(field)
		if err != nil {
			return err
		}
		b, err := unmarshalBlob[model.BulkBatch](data)
		if err != nil {
			return err
		}
		out = b
		if !slices.Contains(from, b.State) {
			return nil
		}
		if mutate != nil {
			if err := mutate(&b); err != nil {
				return err
			}
		}
		if err := writeAndCount(tx, field, b, incs); err != nil {
			return err
		}
		out, applied = b, true
		return nil
	})
	if err != nil {
		return false, model.BulkBatch{}, notFound("transition batch", id, err)
	}
	return applied, out, nil
}

func writeAndCount(tx HashTx, field string, v any, incs []CounterIncrement) error {
	data, err := marshalBlob(v)
	if err != nil {
		return err
	}
	if err := tx.Set(field, data); err != nil {
		return err
	}
	for _, inc := range incs {
		if _, err := tx.IncrBy(string(inc.Field), inc.Delta); err != nil {
			return err
		}
	}
	return nil
}
