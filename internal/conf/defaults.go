// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration. These mirror the embedded
// config.yaml so a missing file and a missing key behave the same way.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "BirdNET-Notifier")
	viper.SetDefault("main.timeas24h", true)
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "notifier.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 1048576)
	viper.SetDefault("main.log.rotationday", "Sunday")

	viper.SetDefault("database.sqlite.enabled", true)
	viper.SetDefault("database.sqlite.path", "birdnet.db")
	viper.SetDefault("database.mysql.enabled", false)
	viper.SetDefault("database.mysql.username", "birdnet")
	viper.SetDefault("database.mysql.password", "secret")
	viper.SetDefault("database.mysql.database", "birdnet")
	viper.SetDefault("database.mysql.host", "localhost")
	viper.SetDefault("database.mysql.port", "3306")

	viper.SetDefault("location.latitude", 0.000)
	viper.SetDefault("location.longitude", 0.000)

	viper.SetDefault("notify.enabled", false)
	viper.SetDefault("notify.minconfidence", 0.7)
	viper.SetDefault("notify.firstever", true)
	viper.SetDefault("notify.firstofyear", true)
	viper.SetDefault("notify.firstofseason", false)
	viper.SetDefault("notify.cooldownminutes", 60)
	viper.SetDefault("notify.whitelist", []string{})
	viper.SetDefault("notify.blacklist", []string{})
	viper.SetDefault("notify.ratelimit.maxperhour", 0)
	viper.SetDefault("notify.ratelimit.burst", 5)
	viper.SetDefault("notify.watcher.enabled", true)
	viper.SetDefault("notify.watcher.pollseconds", DefaultWatcherPollSeconds)

	viper.SetDefault("webhook.defaulturl", "")
	viper.SetDefault("webhook.timeoutseconds", DefaultWebhookTimeout)

	viper.SetDefault("shoutrrr.enabled", false)
	viper.SetDefault("shoutrrr.urls", []string{})

	viper.SetDefault("mqtt.enabled", false)
	viper.SetDefault("mqtt.broker", "tcp://localhost:1883")
	viper.SetDefault("mqtt.topic", "birdnet/notifications")
	viper.SetDefault("mqtt.username", "")
	viper.SetDefault("mqtt.password", "")
	viper.SetDefault("mqtt.retain", false)

	viper.SetDefault("scheduler.pollseconds", DefaultPollSeconds)
	viper.SetDefault("scheduler.statefile", "")

	viper.SetDefault("api.enabled", false)
	viper.SetDefault("api.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("images.enabled", true)
	viper.SetDefault("images.provider", "wikimedia")
	viper.SetDefault("images.cachettlminutes", 60)

	viper.SetDefault("monitoring.enabled", false)
	viper.SetDefault("monitoring.checkseconds", 30)
	viper.SetDefault("monitoring.criticalresendminutes", 30)
	viper.SetDefault("monitoring.hysteresispercent", 5.0)
	viper.SetDefault("monitoring.cpu.enabled", true)
	viper.SetDefault("monitoring.cpu.warning", 85.0)
	viper.SetDefault("monitoring.cpu.critical", 95.0)
	viper.SetDefault("monitoring.memory.enabled", true)
	viper.SetDefault("monitoring.memory.warning", 85.0)
	viper.SetDefault("monitoring.memory.critical", 95.0)
	viper.SetDefault("monitoring.disk.enabled", true)
	viper.SetDefault("monitoring.disk.warning", 85.0)
	viper.SetDefault("monitoring.disk.critical", 95.0)
	viper.SetDefault("monitoring.disk.paths", []string{"/"})
}
