package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Text(t *testing.T) {
	path := writeFile(t, t.TempDir(), "happy.yaml", happyScenario)

	out, err := execute(t, "run", path)
	require.NoError(t, err)

	assert.Contains(t, out, "bulk: bulk-0001 RESPONSE_SENT\n")
	assert.Contains(t, out, "response: COMPLETED\n")
	assert.Contains(t, out, "  h1 TRANSFER_SUCCESS\n")
	assert.Contains(t, out, "✓ scenario passed")
}

func TestRun_JSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "happy.yaml", happyScenario)

	out, err := execute(t, "--format", "json", "run", path)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   struct {
			Pass     bool   `json:"pass"`
			BulkID   string `json:"bulkId"`
			Response struct {
				CurrentState string `json:"currentState"`
			} `json:"response"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, "bulk-0001", resp.Data.BulkID)
	assert.Equal(t, "COMPLETED", resp.Data.Response.CurrentState)
}

func TestRun_FailedExpectation(t *testing.T) {
	path := writeFile(t, t.TempDir(), "wrong.yaml", failingScenario)

	out, err := execute(t, "run", path)
	require.Error(t, err)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ scenario failed")
	assert.Contains(t, out, "transfers.h1: expected TRANSFER_SUCCESS, got TRANSFER_FAILED")
}

func TestRun_MissingScenario(t *testing.T) {
	_, err := execute(t, "run", filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRun_MissingArgs(t *testing.T) {
	_, err := execute(t, "run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestRun_InvalidSettings(t *testing.T) {
	t.Setenv("BULKFLOW_MAX_BATCH_SIZE", "0")
	path := writeFile(t, t.TempDir(), "happy.yaml", happyScenario)

	_, err := execute(t, "run", path)
	require.Error(t, err)

	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "max batch size")
}

func TestRun_ServesMetrics(t *testing.T) {
	path := writeFile(t, t.TempDir(), "happy.yaml", happyScenario)

	_, err := execute(t, "run", "--metrics-addr", "127.0.0.1:0", path)
	require.NoError(t, err)
}
