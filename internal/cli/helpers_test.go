package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const happyScenario = `
name: happy
description: two payees at one institution, everything accepted
request:
  options: { auto_accept_party: true, auto_accept_quote: true }
  transfers:
    - { home: h1, identifier: "2001" }
    - { home: h2, identifier: "2002" }
provider:
  parties: { "2001": fspA, "2002": fspA }
expect:
  state: RESPONSE_SENT
  response: COMPLETED
  transfers: { h1: TRANSFER_SUCCESS, h2: TRANSFER_SUCCESS }
`

const failingScenario = `
name: wrong
description: expects a transfer the provider aborts to succeed
request:
  options: { auto_accept_party: true, auto_accept_quote: true }
  transfers:
    - { home: h1, identifier: "2001" }
provider:
  parties: { "2001": fspA }
  transfers: { fspA: { fail: [h1] } }
expect:
  state: RESPONSE_SENT
  transfers: { h1: TRANSFER_SUCCESS }
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}
