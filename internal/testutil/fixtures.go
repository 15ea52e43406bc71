package testutil

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// Payee describes one transfer of a fixture bulk request.
type Payee struct {
	// Identifier is the payee MSISDN; the home transaction id is derived
	// from it.
	Identifier string

	// FspID is set on the request party, as a caller that already knows
	// the payee institution would.
	FspID string

	// Amount defaults to 10.
	Amount string
}

// BulkRequest builds a valid request with one transfer per payee.
func BulkRequest(bulkID string, opts model.BulkOptions, payees ...Payee) model.BulkRequest {
	transfers := make([]model.IndividualTransferRequest, 0, len(payees))
	for _, p := range payees {
		amount := p.Amount
		if amount == "" {
			amount = "10"
		}
		transfers = append(transfers, model.IndividualTransferRequest{
			HomeTransactionID: "home-" + p.Identifier,
			To: model.Party{PartyIDInfo: model.PartyIDInfo{
				PartyIDType:     "MSISDN",
				PartyIdentifier: p.Identifier,
				FspID:           p.FspID,
			}},
			AmountType: model.AmountTypeSend,
			Currency:   "USD",
			Amount:     decimal.RequireFromString(amount),
		})
	}
	return model.BulkRequest{
		BulkTransactionID:     bulkID,
		BulkHomeTransactionID: "home-" + bulkID,
		Options:               opts,
		From: model.Party{PartyIDInfo: model.PartyIDInfo{
			PartyIDType:     "MSISDN",
			PartyIdentifier: "1000",
			FspID:           "payerfsp",
		}},
		IndividualTransfers: transfers,
	}
}

// Payees returns n payees with identifiers "2001", "2002", ...
func Payees(n int) []Payee {
	out := make([]Payee, n)
	for i := range out {
		out[i] = Payee{Identifier: fmt.Sprintf("%d", 2001+i)}
	}
	return out
}

// ResolvedParty returns the party a lookup service would return for
// identifier at fspID.
func ResolvedParty(identifier, fspID string) *model.Party {
	return &model.Party{
		PartyIDInfo: model.PartyIDInfo{
			PartyIDType:     "MSISDN",
			PartyIdentifier: identifier,
			FspID:           fspID,
		},
		Name: "Payee " + identifier,
	}
}
