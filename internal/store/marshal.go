package store

import (
	"encoding/json"
	"fmt"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

func marshalBlob(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return data, nil
}

func unmarshalBlob[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("unmarshal: %w", err)
	}
	return v, nil
}

func readBulk(tx HashTx) (model.BulkTransaction, error) {
	data, err := tx.Get(fieldBulkTransaction)
	if err != nil {
		return model.BulkTransaction{}, err
	}
	bt, err := unmarshalBlob[model.BulkTransaction](data)
	if err != nil {
		return bt, err
	}
	bt.Counters, err = readCounters(tx)
	return bt, err
}

func readCounters(tx HashTx) (model.Counters, error) {
	var c model.Counters
	targets := []struct {
		field CounterField
		dst   *int64
	}{
		{FieldPartyLookupTotal, &c.PartyLookup.Total},
		{FieldPartyLookupSuccess, &c.PartyLookup.Success},
		{FieldPartyLookupFailed, &c.PartyLookup.Failed},
		{FieldBulkQuotesTotal, &c.BulkQuotes.Total},
		{FieldBulkQuotesSuccess, &c.BulkQuotes.Success},
		{FieldBulkQuotesFailed, &c.BulkQuotes.Failed},
		{FieldBulkTransfersTotal, &c.BulkTransfers.Total},
		{FieldBulkTransfersSuccess, &c.BulkTransfers.Success},
		{FieldBulkTransfersFailed, &c.BulkTransfers.Failed},
	}
	for _, t := range targets {
		n, err := tx.GetInt(string(t.field))
		if err != nil {
			return c, err
		}
		*t.dst = n
	}
	return c, nil
}
