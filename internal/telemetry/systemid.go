// System ID generation and persistence. The ID is anonymous, it only
// lets multiple reports from the same installation be correlated.
package telemetry

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const systemIDFile = ".system_id"

// GenerateSystemID creates a unique system identifier formatted as
// XXXX-XXXX-XXXX, URL-safe and case-insensitive.
func GenerateSystemID() (string, error) {
	bytes := make([]byte, 6)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	id := hex.EncodeToString(bytes)
	formatted := fmt.Sprintf("%s-%s-%s", id[0:4], id[4:8], id[8:12])
	return strings.ToUpper(formatted), nil
}

// LoadOrCreateSystemID loads the system ID from the config directory,
// creating and persisting a fresh one if no valid ID exists yet.
func LoadOrCreateSystemID(configDir string) (string, error) {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	idFile := filepath.Join(configDir, systemIDFile)

	if data, err := os.ReadFile(idFile); err == nil {
		id := strings.TrimSpace(string(data))
		if isValidSystemID(id) {
			return id, nil
		}
	}

	id, err := GenerateSystemID()
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(idFile, []byte(id), 0o644); err != nil {
		return "", fmt.Errorf("failed to save system ID: %w", err)
	}

	return id, nil
}

// isValidSystemID checks the XXXX-XXXX-XXXX format.
func isValidSystemID(id string) bool {
	if len(id) != 14 || id[4] != '-' || id[9] != '-' {
		return false
	}
	for i, r := range id {
		if i == 4 || i == 9 {
			continue
		}
		isHex := (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
		if !isHex {
			return false
		}
	}
	return true
}
