package testutil

import (
	"io"
	"log/slog"
	"testing"
)

// DiscardLogs routes the default logger to io.Discard until the test
// ends.
func DiscardLogs(t testing.TB) {
	t.Helper()
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })
}
