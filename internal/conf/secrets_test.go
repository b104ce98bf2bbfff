package conf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandSecrets(t *testing.T) {
	t.Setenv("NOTIFIER_TEST_WEBHOOK", "https://discord.com/api/webhooks/1/tok")
	t.Setenv("NOTIFIER_TEST_MQTT_PW", "hunter2")

	settings := &Settings{}
	settings.Webhook.DefaultURL = "${NOTIFIER_TEST_WEBHOOK}"
	settings.MQTT.Broker = "tcp://broker.lan:1883"
	settings.MQTT.Password = "${NOTIFIER_TEST_MQTT_PW}"
	settings.Shoutrrr.URLs = []string{"telegram://${NOTIFIER_TEST_MQTT_PW}@telegram?chats=1"}
	settings.Summaries = []SummaryJobSettings{{Name: "daily", WebhookURL: "${NOTIFIER_TEST_WEBHOOK}"}}

	require.NoError(t, expandSecrets(settings))

	assert.Equal(t, "https://discord.com/api/webhooks/1/tok", settings.Webhook.DefaultURL)
	assert.Equal(t, "tcp://broker.lan:1883", settings.MQTT.Broker, "values without references stay verbatim")
	assert.Equal(t, "hunter2", settings.MQTT.Password)
	assert.Equal(t, "telegram://hunter2@telegram?chats=1", settings.Shoutrrr.URLs[0])
	assert.Equal(t, "https://discord.com/api/webhooks/1/tok", settings.Summaries[0].WebhookURL)
}

func TestExpandSecretsMissingVariable(t *testing.T) {
	settings := &Settings{}
	settings.Sentry.DSN = "${NOTIFIER_TEST_ABSENT_DSN}"

	err := expandSecrets(settings)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sentry.dsn", "error should name the failing setting")
	assert.Contains(t, err.Error(), "NOTIFIER_TEST_ABSENT_DSN")
}
