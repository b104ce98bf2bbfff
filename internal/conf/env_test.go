package conf

import (
	"strings"
	"testing"
)

func TestEnvValidators(t *testing.T) {
	tests := []struct {
		name     string
		validate func(string) error
		value    string
		wantErr  bool
	}{
		{"bool true", validateEnvBool, "true", false},
		{"bool numeric", validateEnvBool, "1", false},
		{"bool invalid", validateEnvBool, "yes", true},
		{"latitude valid", validateEnvLatitude, "60.17", false},
		{"latitude out of range", validateEnvLatitude, "95", true},
		{"latitude not a number", validateEnvLatitude, "north", true},
		{"longitude valid", validateEnvLongitude, "-122.4", false},
		{"longitude out of range", validateEnvLongitude, "200", true},
		{"confidence valid", validateEnvConfidence, "0.8", false},
		{"confidence out of range", validateEnvConfidence, "1.2", true},
		{"url valid", validateEnvURL, "https://example.com/hook", false},
		{"url bad scheme", validateEnvURL, "ftp://example.com", true},
		{"path valid", validateEnvPath, "/data/birdnet.db", false},
		{"path empty", validateEnvPath, "  ", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.validate(tt.value)
			if (err != nil) != tt.wantErr {
				t.Errorf("got error %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestBindEnvVarsReportsInvalidValues(t *testing.T) {
	t.Setenv("BIRDNET_LATITUDE", "not-a-number")

	err := bindEnvVars()
	if err == nil {
		t.Fatal("expected an error for invalid BIRDNET_LATITUDE")
	}
	if !strings.Contains(err.Error(), "BIRDNET_LATITUDE") {
		t.Errorf("error %q does not mention BIRDNET_LATITUDE", err)
	}
}
