// Package testutil provides shared helpers for tests that coordinate
// with goroutines through channels.
package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Common test timeout constants.
const (
	// DefaultTestTimeout is the standard timeout for most async test operations.
	DefaultTestTimeout = 5 * time.Second

	// ShortTestTimeout is for operations expected to complete quickly.
	ShortTestTimeout = 2 * time.Second
)

// WaitForChannel waits for a signal on the channel or fails after timeout.
// Use this for waiting on done channels and loop-shutdown signals.
func WaitForChannel(t *testing.T, ch <-chan struct{}, timeout time.Duration, msg string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		require.Fail(t, msg)
	}
}

// WaitForError waits for a value on an error channel or fails after
// timeout. The received error is returned for further assertions.
func WaitForError(t *testing.T, ch <-chan error, timeout time.Duration, msg string) error {
	t.Helper()
	select {
	case err := <-ch:
		return err
	case <-time.After(timeout):
		require.Fail(t, msg)
		return nil
	}
}
