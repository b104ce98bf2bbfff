package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// validSettings returns a settings struct that passes validation.
func validSettings() *Settings {
	s := &Settings{}
	s.Main.Name = "TestNode"
	s.Database.SQLite = SQLiteSettings{Enabled: true, Path: "birdnet.db"}
	s.Location = LocationSettings{Latitude: 60.1699, Longitude: 24.9384}
	s.Notify = NotifySettings{
		Enabled:       true,
		MinConfidence: 0.7,
		FirstEver:     true,
		Watcher:       WatcherSettings{Enabled: true, PollSeconds: 15},
	}
	s.Webhook = WebhookSettings{DefaultURL: "https://discord.com/api/webhooks/123/abc", TimeoutSeconds: 10}
	s.Summaries = []SummaryJobSettings{
		{Name: "daily", Enabled: true, Schedule: "0 8 * * *", LookbackMinutes: 1440, TopSpecies: 5},
	}
	s.Scheduler = SchedulerSettings{PollSeconds: 30}
	return s
}

func TestValidateSettingsValid(t *testing.T) {
	require.NoError(t, ValidateSettings(validSettings()))
}

func TestValidateSettingsCollectsAllErrors(t *testing.T) {
	s := validSettings()
	s.Database.SQLite.Path = ""
	s.Location.Latitude = 91
	s.Notify.MinConfidence = 1.5
	s.Scheduler.PollSeconds = 0

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Errors, 4, "each broken section should report")
}

func TestValidateDatabaseSettings(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*DatabaseSettings)
		wantErr string
	}{
		{"both enabled", func(db *DatabaseSettings) { db.MySQL.Enabled = true }, "only one database"},
		{"none enabled", func(db *DatabaseSettings) { db.SQLite.Enabled = false }, "either SQLite or MySQL"},
		{"sqlite path missing", func(db *DatabaseSettings) { db.SQLite.Path = "" }, "path must not be empty"},
		{"mysql bad port", func(db *DatabaseSettings) {
			db.SQLite.Enabled = false
			db.MySQL = MySQLSettings{Enabled: true, Username: "u", Database: "d", Host: "h", Port: "notaport"}
		}, "between 1 and 65535"},
		{"mysql missing host", func(db *DatabaseSettings) {
			db.SQLite.Enabled = false
			db.MySQL = MySQLSettings{Enabled: true, Username: "u", Database: "d", Port: "3306"}
		}, "host must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := DatabaseSettings{SQLite: SQLiteSettings{Enabled: true, Path: "x.db"}}
			tt.mutate(&db)
			err := validateDatabaseSettings(&db)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidateLocationSettings(t *testing.T) {
	tests := []struct {
		name    string
		lat     float64
		lon     float64
		wantErr bool
	}{
		{"valid", 60.17, 24.94, false},
		{"zero is valid", 0, 0, false},
		{"latitude too high", 90.1, 0, true},
		{"latitude too low", -90.1, 0, true},
		{"longitude too high", 0, 180.1, true},
		{"longitude too low", 0, -180.1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateLocationSettings(&LocationSettings{Latitude: tt.lat, Longitude: tt.lon})
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSeasonSettings(t *testing.T) {
	tests := []struct {
		name    string
		seasons map[string]SeasonStart
		wantErr bool
	}{
		{"no overrides", nil, false},
		{"valid override", map[string]SeasonStart{"winter": {Month: 11, Day: 15}}, false},
		{"mixed case name", map[string]SeasonStart{"Spring": {Month: 3, Day: 1}}, false},
		{"unknown season", map[string]SeasonStart{"monsoon": {Month: 6, Day: 1}}, true},
		{"month out of range", map[string]SeasonStart{"spring": {Month: 13, Day: 1}}, true},
		{"impossible day", map[string]SeasonStart{"winter": {Month: 2, Day: 30}}, true},
		{"leap day rejected", map[string]SeasonStart{"spring": {Month: 2, Day: 29}}, true},
		{"zero day", map[string]SeasonStart{"fall": {Month: 9, Day: 0}}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSeasonSettings(tt.seasons)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidateSummarySettings(t *testing.T) {
	tests := []struct {
		name    string
		jobs    []SummaryJobSettings
		wantErr string
	}{
		{
			"valid five field schedule",
			[]SummaryJobSettings{{Name: "daily", Schedule: "0 8 * * *", LookbackMinutes: 1440}},
			"",
		},
		{
			"descriptor schedule",
			[]SummaryJobSettings{{Name: "hourly", Schedule: "@hourly", LookbackMinutes: 60}},
			"",
		},
		{
			"invalid cron expression",
			[]SummaryJobSettings{{Name: "bad", Schedule: "not a cron", LookbackMinutes: 60}},
			"not a valid cron expression",
		},
		{
			"duplicate names",
			[]SummaryJobSettings{
				{Name: "daily", Schedule: "0 8 * * *", LookbackMinutes: 1440},
				{Name: "daily", Schedule: "0 20 * * *", LookbackMinutes: 1440},
			},
			"used more than once",
		},
		{
			"missing name",
			[]SummaryJobSettings{{Schedule: "0 8 * * *", LookbackMinutes: 60}},
			"must have a name",
		},
		{
			"zero lookback",
			[]SummaryJobSettings{{Name: "daily", Schedule: "0 8 * * *", LookbackMinutes: 0}},
			"lookbackminutes must be at least 1",
		},
		{
			"negative top species",
			[]SummaryJobSettings{{Name: "daily", Schedule: "0 8 * * *", LookbackMinutes: 60, TopSpecies: -1}},
			"topspecies must not be negative",
		},
		{
			"bad override url",
			[]SummaryJobSettings{{Name: "daily", Schedule: "0 8 * * *", LookbackMinutes: 60, WebhookURL: "ftp://example.com"}},
			"must use http or https",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateSummarySettings(tt.jobs)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestValidateMQTTSettings(t *testing.T) {
	err := validateMQTTSettings(&MQTTSettings{Enabled: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker")
	assert.Contains(t, err.Error(), "topic")

	assert.NoError(t, validateMQTTSettings(&MQTTSettings{Enabled: false}))
	assert.NoError(t, validateMQTTSettings(&MQTTSettings{
		Enabled: true,
		Broker:  "tcp://localhost:1883",
		Topic:   "birdnet/notifications",
	}))
}

func TestValidateAPISettings(t *testing.T) {
	assert.NoError(t, validateAPISettings(&APISettings{Enabled: false}))
	assert.NoError(t, validateAPISettings(&APISettings{Enabled: true, Listen: "0.0.0.0:8090"}))

	err := validateAPISettings(&APISettings{Enabled: true, Listen: "8090"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "host:port")
}

func TestValidateMonitoringSettings(t *testing.T) {
	// Disabled monitoring skips every threshold check.
	assert.NoError(t, validateMonitoringSettings(&MonitoringSettings{
		Enabled: false,
		CPU:     ResourceThresholds{Enabled: true, Warning: 200, Critical: 10},
	}))

	valid := &MonitoringSettings{
		Enabled:           true,
		CheckSeconds:      30,
		HysteresisPercent: 5,
		CPU:               ResourceThresholds{Enabled: true, Warning: 85, Critical: 95},
		Memory:            ResourceThresholds{Enabled: true, Warning: 85, Critical: 95},
		Disk:              DiskThresholds{Enabled: true, Warning: 85, Critical: 95, Paths: []string{"/"}},
	}
	assert.NoError(t, validateMonitoringSettings(valid))

	err := validateMonitoringSettings(&MonitoringSettings{
		Enabled:      true,
		CheckSeconds: 1,
		CPU:          ResourceThresholds{Enabled: true, Warning: 95, Critical: 85},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checkseconds must be at least 5")
	assert.Contains(t, err.Error(), "cpu warning must be below critical")

	// A disabled resource is not threshold checked.
	err = validateMonitoringSettings(&MonitoringSettings{
		Enabled:      true,
		CheckSeconds: 30,
		Disk:         DiskThresholds{Enabled: false, Warning: 120, Critical: 10},
	})
	assert.NoError(t, err)
}

func TestValidateDestinations(t *testing.T) {
	// Notifications enabled with nowhere to deliver to is a configuration error.
	s := validSettings()
	s.Webhook.DefaultURL = ""
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no webhook, shoutrrr or MQTT destination")

	// An enabled summary without a shared destination needs its own override.
	s.Notify.Enabled = false
	err = ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "summary job 'daily' is enabled but has no destination")

	s.Summaries[0].WebhookURL = "https://example.com/hook"
	assert.NoError(t, ValidateSettings(s))

	// Shoutrrr alone satisfies the shared destination requirement.
	s = validSettings()
	s.Webhook.DefaultURL = ""
	s.Shoutrrr = ShoutrrrSettings{Enabled: true, URLs: []string{"discord://token@id"}}
	assert.NoError(t, ValidateSettings(s))
}
