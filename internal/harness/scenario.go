package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// Scenario describes one bulk run end to end: the request, how the
// simulated counterparties answer, the caller's decisions and the
// expected outcome.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// MaxBatchSize caps the transfers per batch. Zero keeps the engine
	// default.
	MaxBatchSize int `yaml:"max_batch_size,omitempty"`

	Request  RequestSpec  `yaml:"request"`
	Provider ProviderSpec `yaml:"provider,omitempty"`
	Accept   AcceptSpec   `yaml:"accept,omitempty"`

	// Advance moves the clock forward once the bulk has settled and runs
	// an expiry sweep.
	Advance time.Duration `yaml:"advance,omitempty"`

	Expect Expectation `yaml:"expect"`
}

// RequestSpec is the bulk request submitted by the caller.
type RequestSpec struct {
	// BulkID is assigned by the decision process when empty.
	BulkID string `yaml:"bulk_id,omitempty"`

	Options OptionsSpec `yaml:"options,omitempty"`

	// Expires sets bulkExpiration relative to the scenario start.
	Expires time.Duration `yaml:"expires,omitempty"`

	Transfers []TransferSpec `yaml:"transfers"`
}

// OptionsSpec mirrors the bulk options.
type OptionsSpec struct {
	OnlyValidateParty bool `yaml:"only_validate_party,omitempty"`
	SkipPartyLookup   bool `yaml:"skip_party_lookup,omitempty"`
	AutoAcceptParty   bool `yaml:"auto_accept_party,omitempty"`
	AutoAcceptQuote   bool `yaml:"auto_accept_quote,omitempty"`
	Synchronous       bool `yaml:"synchronous,omitempty"`
}

// TransferSpec is one transfer of the request.
type TransferSpec struct {
	Home       string `yaml:"home"`
	Identifier string `yaml:"identifier"`
	// FspID is the payee institution known to the caller, if any.
	FspID    string `yaml:"fsp_id,omitempty"`
	Amount   string `yaml:"amount,omitempty"`
	Currency string `yaml:"currency,omitempty"`
}

// ProviderSpec drives the simulated lookup service and destination
// institutions.
type ProviderSpec struct {
	// Parties maps a payee identifier to its owning institution.
	// Identifiers that are not listed are not found.
	Parties map[string]string `yaml:"parties,omitempty"`

	// SilentParties are never answered.
	SilentParties []string `yaml:"silent_parties,omitempty"`

	// Quotes and Transfers set the behaviour per destination. Unlisted
	// destinations answer ok.
	Quotes    map[string]Behaviour `yaml:"quotes,omitempty"`
	Transfers map[string]Behaviour `yaml:"transfers,omitempty"`
}

// Behaviour is how one destination answers a batch.
type Behaviour struct {
	Mode string `yaml:"mode,omitempty"`

	// Fail lists home transaction ids that get a per-item error in an
	// ok answer.
	Fail []string `yaml:"fail,omitempty"`
}

// Destination answer modes.
const (
	ModeOK     = "ok"
	ModeEmpty  = "empty"
	ModeError  = "error"
	ModeSilent = "silent"
)

// AcceptSpec lists the transfers the caller rejects, by home transaction
// id. Everything else is accepted.
type AcceptSpec struct {
	RejectParties []string `yaml:"reject_parties,omitempty"`
	RejectQuotes  []string `yaml:"reject_quotes,omitempty"`
}

// Expectation is checked against the settled bulk. Empty fields are not
// checked.
type Expectation struct {
	State    model.BulkState `yaml:"state"`
	Response string          `yaml:"response,omitempty"`
	Counters *CountersSpec   `yaml:"counters,omitempty"`

	// Transfers maps a home transaction id to its expected state.
	Transfers map[string]model.TransferState `yaml:"transfers,omitempty"`
}

// CountersSpec holds [total, success, failed] per phase.
type CountersSpec struct {
	PartyLookup   []int64 `yaml:"party_lookup,omitempty"`
	BulkQuotes    []int64 `yaml:"bulk_quotes,omitempty"`
	BulkTransfers []int64 `yaml:"bulk_transfers,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadDir loads every *.yaml scenario in dir whose name contains filter,
// sorted by file name.
func LoadDir(dir, filter string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, path := range paths {
		s, err := LoadScenario(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
		if filter != "" && !strings.Contains(s.Name, filter) {
			continue
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.MaxBatchSize < 0 {
		return fmt.Errorf("max_batch_size must be non-negative")
	}
	if s.Advance < 0 || s.Request.Expires < 0 {
		return fmt.Errorf("durations must be non-negative")
	}
	if len(s.Request.Transfers) == 0 {
		return fmt.Errorf("request.transfers is required and must be non-empty")
	}

	seen := make(map[string]bool, len(s.Request.Transfers))
	for i, t := range s.Request.Transfers {
		if t.Home == "" {
			return fmt.Errorf("request.transfers[%d]: home is required", i)
		}
		if seen[t.Home] {
			return fmt.Errorf("request.transfers[%d]: duplicate home %q", i, t.Home)
		}
		seen[t.Home] = true
		if t.Identifier == "" {
			return fmt.Errorf("request.transfers[%d]: identifier is required", i)
		}
		if t.Amount != "" {
			amount, err := decimal.NewFromString(t.Amount)
			if err != nil || !amount.IsPositive() {
				return fmt.Errorf("request.transfers[%d]: amount %q is not a positive number", i, t.Amount)
			}
		}
	}

	for fsp, b := range s.Provider.Quotes {
		if err := validateBehaviour("provider.quotes."+fsp, b); err != nil {
			return err
		}
	}
	for fsp, b := range s.Provider.Transfers {
		if err := validateBehaviour("provider.transfers."+fsp, b); err != nil {
			return err
		}
	}

	if s.Expect.State == "" {
		return fmt.Errorf("expect.state is required")
	}
	if !s.Expect.State.IsValid() {
		return fmt.Errorf("expect.state: unknown state %q", s.Expect.State)
	}
	for home, state := range s.Expect.Transfers {
		if !seen[home] {
			return fmt.Errorf("expect.transfers: unknown home %q", home)
		}
		if !state.IsValid() {
			return fmt.Errorf("expect.transfers.%s: unknown state %q", home, state)
		}
	}
	if c := s.Expect.Counters; c != nil {
		for name, v := range map[string][]int64{
			"party_lookup":   c.PartyLookup,
			"bulk_quotes":    c.BulkQuotes,
			"bulk_transfers": c.BulkTransfers,
		} {
			if v != nil && len(v) != 3 {
				return fmt.Errorf("expect.counters.%s: want [total, success, failed]", name)
			}
		}
	}
	return nil
}

func validateBehaviour(path string, b Behaviour) error {
	switch b.Mode {
	case "", ModeOK, ModeEmpty, ModeError, ModeSilent:
		return nil
	default:
		return fmt.Errorf("%s: unknown mode %q", path, b.Mode)
	}
}

// BulkRequest builds the request the scenario submits at start.
func (s *Scenario) BulkRequest(start time.Time) model.BulkRequest {
	transfers := make([]model.IndividualTransferRequest, 0, len(s.Request.Transfers))
	for _, t := range s.Request.Transfers {
		amount := decimal.NewFromInt(10)
		if t.Amount != "" {
			amount = decimal.RequireFromString(t.Amount)
		}
		currency := t.Currency
		if currency == "" {
			currency = "USD"
		}
		transfers = append(transfers, model.IndividualTransferRequest{
			HomeTransactionID: t.Home,
			To: model.Party{PartyIDInfo: model.PartyIDInfo{
				PartyIDType:     "MSISDN",
				PartyIdentifier: t.Identifier,
				FspID:           t.FspID,
			}},
			AmountType: model.AmountTypeSend,
			Currency:   currency,
			Amount:     amount,
		})
	}

	o := s.Request.Options
	opts := model.BulkOptions{
		OnlyValidateParty: o.OnlyValidateParty,
		SkipPartyLookup:   o.SkipPartyLookup,
		AutoAcceptParty:   o.AutoAcceptParty,
		AutoAcceptQuote:   o.AutoAcceptQuote,
		Synchronous:       o.Synchronous,
	}
	if s.Request.Expires > 0 {
		opts.BulkExpiration = start.Add(s.Request.Expires)
	}

	return model.BulkRequest{
		BulkTransactionID:     s.Request.BulkID,
		BulkHomeTransactionID: s.Name,
		Options:               opts,
		From: model.Party{PartyIDInfo: model.PartyIDInfo{
			PartyIDType:     "MSISDN",
			PartyIdentifier: "1000",
			FspID:           PayerFspID,
		}},
		IndividualTransfers: transfers,
	}
}
