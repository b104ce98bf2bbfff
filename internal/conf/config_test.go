package conf

import (
	"strings"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestEmbeddedDefaultConfig(t *testing.T) {
	data, err := getDefaultConfig()
	require.NoError(t, err)
	require.NotEmpty(t, data)

	var raw map[string]any
	require.NoError(t, yaml.Unmarshal([]byte(data), &raw))

	sections := []string{
		"main", "database", "location", "notify", "seasons",
		"webhook", "shoutrrr", "mqtt", "summaries", "scheduler",
		"api", "sentry", "images", "monitoring",
	}
	for _, section := range sections {
		assert.Contains(t, raw, section, "embedded config is missing the %s section", section)
	}
}

func TestEmbeddedDefaultConfigValidates(t *testing.T) {
	// The file written on first run must pass validation as-is.
	data, err := getDefaultConfig()
	require.NoError(t, err)

	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(data)))

	settings := &Settings{}
	require.NoError(t, v.Unmarshal(settings))
	require.NoError(t, ValidateSettings(settings))
}

func TestSetDefaultConfig(t *testing.T) {
	setDefaultConfig()

	assert.Equal(t, DefaultPollSeconds, viper.GetInt("scheduler.pollseconds"))
	assert.Equal(t, DefaultWebhookTimeout, viper.GetInt("webhook.timeoutseconds"))
	assert.InDelta(t, 0.7, viper.GetFloat64("notify.minconfidence"), 0.001)
	assert.True(t, viper.GetBool("database.sqlite.enabled"))
	assert.False(t, viper.GetBool("notify.enabled"), "notifications must be off until a destination is configured")
	assert.Equal(t, "wikimedia", viper.GetString("images.provider"))
	assert.False(t, viper.GetBool("monitoring.enabled"))
	assert.InDelta(t, 95.0, viper.GetFloat64("monitoring.disk.critical"), 0.001)
}

func TestSettingsUnmarshalSeasons(t *testing.T) {
	raw := `
seasons:
  winter:
    month: 11
    day: 15
  spring:
    month: 4
    day: 1
`
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(raw)))

	settings := &Settings{}
	require.NoError(t, v.Unmarshal(settings))

	require.Len(t, settings.Seasons, 2)
	assert.Equal(t, SeasonStart{Month: 11, Day: 15}, settings.Seasons["winter"])
	assert.Equal(t, SeasonStart{Month: 4, Day: 1}, settings.Seasons["spring"])
}

func TestSettingsUnmarshalSummaries(t *testing.T) {
	raw := `
summaries:
  - name: hourly
    enabled: true
    schedule: "0 * * * *"
    lookbackminutes: 60
    topspecies: 3
  - name: daily
    enabled: false
    schedule: "0 8 * * *"
    lookbackminutes: 1440
    webhookurl: https://example.com/hook
`
	v := viper.New()
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(raw)))

	settings := &Settings{}
	require.NoError(t, v.Unmarshal(settings))

	require.Len(t, settings.Summaries, 2)
	assert.Equal(t, "hourly", settings.Summaries[0].Name)
	assert.True(t, settings.Summaries[0].Enabled)
	assert.Equal(t, 60, settings.Summaries[0].LookbackMinutes)
	assert.Equal(t, 3, settings.Summaries[0].TopSpecies)
	assert.Equal(t, "https://example.com/hook", settings.Summaries[1].WebhookURL)
}
