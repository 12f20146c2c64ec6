// Package testutil holds fixtures shared across package tests.
package testutil

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/heardlabs/heard/internal/config"
	"github.com/heardlabs/heard/internal/session"
)

// TestConfig returns a valid configuration pointed at per-test temp
// storage, with a fake Deepgram key so validation and key checks pass.
func TestConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Providers["deepgram"] = config.ProviderConfig{APIKey: "test-api-key"}
	cfg.Storage.Path = filepath.Join(t.TempDir(), "sessions.db")
	return cfg
}

// Session builds a stopped session with n final segments, 1.5 seconds
// each, texts "segment 1" .. "segment n".
func Session(id string, n int) *session.Session {
	s := session.New(id, "en-US", "deepgram")
	for i := 0; i < n; i++ {
		start := float64(i) * 1.5
		s.Append(session.Segment{
			ID:         fmt.Sprintf("deepgram-%d", i+1),
			Text:       fmt.Sprintf("segment %d", i+1),
			Start:      start,
			End:        start + 1.5,
			Final:      true,
			ReceivedAt: s.StartedAt.Add(time.Duration(i) * time.Second),
		})
	}
	s.Stop()
	return s
}

// WaitFor polls cond until it holds or the timeout elapses.
func WaitFor(t *testing.T, cond func() bool, timeout time.Duration, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
