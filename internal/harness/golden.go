package harness

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/sebdah/goldie/v2"
)

// Snapshot renders the settled outcome of a scenario as stable text:
// the bulk state, the counters, every transfer by home id and the number
// of domain events per name.
func Snapshot(scenarioName string, r *Result) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "scenario: %s\n", scenarioName)
	fmt.Fprintf(&b, "bulk: %s %s\n", r.BulkID, r.State)
	if r.Response != nil {
		fmt.Fprintf(&b, "response: %s\n", r.Response.CurrentState)
	}
	fmt.Fprintf(&b, "counters: partyLookup=%s bulkQuotes=%s bulkTransfers=%s\n",
		formatPhase(r.Counters.PartyLookup),
		formatPhase(r.Counters.BulkQuotes),
		formatPhase(r.Counters.BulkTransfers),
	)

	b.WriteString("transfers:\n")
	for _, t := range r.Transfers {
		fmt.Fprintf(&b, "  %s %s", t.HomeTransactionID, t.State)
		if t.ErrorCode != "" {
			fmt.Fprintf(&b, " %s", t.ErrorCode)
		}
		b.WriteString("\n")
	}

	b.WriteString("events:\n")
	for _, e := range r.Events {
		fmt.Fprintf(&b, "  %s %d\n", e.Name, e.Count)
	}
	return b.Bytes()
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario, opts...)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, Snapshot(scenarioName, result))
}
