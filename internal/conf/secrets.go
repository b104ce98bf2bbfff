package conf

import (
	"fmt"

	"github.com/tphakala/birdnet-notifier/internal/secrets"
)

// expandSecrets resolves ${VAR} and ${VAR:-default} references in every
// credential-bearing setting, so tokens live in the environment or in
// mounted secret files instead of config.yaml. Non-secret settings are
// left untouched; a copied config never expands by accident.
func expandSecrets(settings *Settings) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"database.mysql.username", &settings.Database.MySQL.Username},
		{"database.mysql.password", &settings.Database.MySQL.Password},
		{"webhook.defaulturl", &settings.Webhook.DefaultURL},
		{"mqtt.broker", &settings.MQTT.Broker},
		{"mqtt.username", &settings.MQTT.Username},
		{"mqtt.password", &settings.MQTT.Password},
		{"sentry.dsn", &settings.Sentry.DSN},
	}
	for i := range settings.Shoutrrr.URLs {
		fields = append(fields, struct {
			name  string
			value *string
		}{fmt.Sprintf("shoutrrr.urls[%d]", i), &settings.Shoutrrr.URLs[i]})
	}
	for i := range settings.Summaries {
		fields = append(fields, struct {
			name  string
			value *string
		}{fmt.Sprintf("summaries[%d].webhookurl", i), &settings.Summaries[i].WebhookURL})
	}

	for _, f := range fields {
		expanded, err := secrets.ExpandString(*f.value)
		if err != nil {
			return fmt.Errorf("expanding %s: %w", f.name, err)
		}
		*f.value = expanded
	}
	return nil
}
