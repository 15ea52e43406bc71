package harness

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/mojaloop/sdk-scheme-adapter-sub003/internal/model"
)

// AssertionError is returned when an expectation does not hold.
type AssertionError struct {
	Field    string // Path of the expectation, e.g. "counters.bulk_quotes"
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("%s: expected %s, got %s", e.Field, e.Expected, e.Actual)
}

// Evaluate checks the expectation against a settled result and returns
// one message per mismatch, in a stable order.
func Evaluate(expect Expectation, r *Result) []string {
	var errs []error

	if expect.State != "" && r.State != expect.State {
		errs = append(errs, &AssertionError{Field: "state", Expected: string(expect.State), Actual: string(r.State)})
	}

	if expect.Response != "" {
		switch {
		case r.Response == nil:
			errs = append(errs, &AssertionError{Field: "response", Expected: expect.Response, Actual: "no response"})
		case r.Response.CurrentState != expect.Response:
			errs = append(errs, &AssertionError{Field: "response", Expected: expect.Response, Actual: r.Response.CurrentState})
		}
	}

	if c := expect.Counters; c != nil {
		errs = appendCounter(errs, "counters.party_lookup", c.PartyLookup, r.Counters.PartyLookup)
		errs = appendCounter(errs, "counters.bulk_quotes", c.BulkQuotes, r.Counters.BulkQuotes)
		errs = appendCounter(errs, "counters.bulk_transfers", c.BulkTransfers, r.Counters.BulkTransfers)
	}

	for _, home := range slices.Sorted(maps.Keys(expect.Transfers)) {
		want := expect.Transfers[home]
		got, ok := r.Transfer(home)
		switch {
		case !ok:
			errs = append(errs, &AssertionError{Field: "transfers." + home, Expected: string(want), Actual: "no such transfer"})
		case got.State != want:
			errs = append(errs, &AssertionError{Field: "transfers." + home, Expected: string(want), Actual: string(got.State)})
		}
	}

	msgs := make([]string, len(errs))
	for i, err := range errs {
		msgs[i] = err.Error()
	}
	return msgs
}

func appendCounter(errs []error, field string, want []int64, got model.PhaseCounters) []error {
	if want == nil {
		return errs
	}
	actual := []int64{got.Total, got.Success, got.Failed}
	if slices.Equal(want, actual) {
		return errs
	}
	return append(errs, &AssertionError{Field: field, Expected: formatCounts(want), Actual: formatCounts(actual)})
}

func formatCounts(v []int64) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, "/")
}

func formatPhase(c model.PhaseCounters) string {
	return formatCounts([]int64{c.Total, c.Success, c.Failed})
}
