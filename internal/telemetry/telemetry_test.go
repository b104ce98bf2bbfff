package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
)

func TestGenerateSystemID(t *testing.T) {
	seen := make(map[string]bool)
	for range 10 {
		id, err := GenerateSystemID()
		if err != nil {
			t.Fatalf("GenerateSystemID() error = %v", err)
		}
		if !isValidSystemID(id) {
			t.Errorf("generated ID %q does not match XXXX-XXXX-XXXX", id)
		}
		if seen[id] {
			t.Errorf("generated duplicate ID %q", id)
		}
		seen[id] = true
	}
}

func TestIsValidSystemID(t *testing.T) {
	tests := []struct {
		id    string
		valid bool
	}{
		{"A1B2-C3D4-E5F6", true},
		{"0000-0000-0000", true},
		{"a1b2-c3d4-e5f6", true},
		{"A1B2C3D4E5F6", false},
		{"A1B2-C3D4-E5F", false},
		{"G1B2-C3D4-E5F6", false},
		{"A1B2_C3D4_E5F6", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := isValidSystemID(tt.id); got != tt.valid {
			t.Errorf("isValidSystemID(%q) = %v, want %v", tt.id, got, tt.valid)
		}
	}
}

func TestLoadOrCreateSystemID(t *testing.T) {
	dir := t.TempDir()

	first, err := LoadOrCreateSystemID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSystemID() error = %v", err)
	}
	if !isValidSystemID(first) {
		t.Fatalf("created ID %q is not valid", first)
	}

	// Second call must return the persisted ID, not a new one.
	second, err := LoadOrCreateSystemID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSystemID() second call error = %v", err)
	}
	if second != first {
		t.Errorf("system ID changed between calls: %q then %q", first, second)
	}

	// A corrupted file is replaced with a fresh valid ID.
	idFile := filepath.Join(dir, systemIDFile)
	if err := os.WriteFile(idFile, []byte("garbage"), 0o644); err != nil {
		t.Fatal(err)
	}
	third, err := LoadOrCreateSystemID(dir)
	if err != nil {
		t.Fatalf("LoadOrCreateSystemID() after corruption error = %v", err)
	}
	if !isValidSystemID(third) {
		t.Errorf("replacement ID %q is not valid", third)
	}
}

func TestApplyPrivacyFilters(t *testing.T) {
	event := &sentry.Event{
		ServerName: "my-hostname",
		Message:    "post to https://discord.com/api/webhooks/1/secret-token failed",
		Exception: []sentry.Exception{
			{Type: "EnhancedError", Value: "dial tcp://user:pw@broker.lan:1883: connection refused"},
		},
		User: sentry.User{ID: "someone", IPAddress: "10.0.0.1"},
		Contexts: map[string]sentry.Context{
			"device":   {"name": "host"},
			"os":       {"name": "linux"},
			"platform": {"arch": "arm64"},
		},
		Extra: map[string]any{
			"component":  "scheduler",
			"error_type": "timeout",
			"home_dir":   "/home/someone",
		},
		Tags: map[string]string{
			"hostname":  "my-hostname",
			"component": "scheduler",
		},
	}

	filtered := applyPrivacyFilters(event, nil)

	if filtered.ServerName != "" {
		t.Error("server name survived privacy filtering")
	}
	if !filtered.User.IsEmpty() {
		t.Error("user data survived privacy filtering")
	}
	if _, ok := filtered.Contexts["device"]; ok {
		t.Error("device context survived privacy filtering")
	}
	if _, ok := filtered.Contexts["platform"]; !ok {
		t.Error("platform context was dropped, it carries no personal data")
	}
	if _, ok := filtered.Extra["home_dir"]; ok {
		t.Error("extra field outside the allowlist survived")
	}
	if _, ok := filtered.Extra["component"]; !ok {
		t.Error("allowlisted extra field was dropped")
	}
	if _, ok := filtered.Tags["hostname"]; ok {
		t.Error("hostname tag survived privacy filtering")
	}
	if _, ok := filtered.Tags["component"]; !ok {
		t.Error("component tag was dropped")
	}
	if strings.Contains(filtered.Message, "discord.com") || strings.Contains(filtered.Message, "secret-token") {
		t.Errorf("webhook URL survived in message: %q", filtered.Message)
	}
	if strings.Contains(filtered.Exception[0].Value, "broker.lan") {
		t.Errorf("broker URL survived in exception: %q", filtered.Exception[0].Value)
	}
}
