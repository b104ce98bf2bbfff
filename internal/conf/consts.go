// conf/consts.go hard coded constants
package conf

const (
	DefaultPollSeconds        = 30 // scheduler tick interval in seconds
	DefaultTopSpecies         = 5  // number of species listed in a summary
	DefaultWebhookTimeout     = 10 // seconds allowed for each delivery attempt
	DefaultWatcherPollSeconds = 15 // detection watcher poll interval in seconds

	SchedulerStateFile = "scheduler-state.json" // state file name in the config directory
)
