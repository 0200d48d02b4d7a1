package cron_config

type Config struct {
	// Seconds-granularity cron expressions.
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 */5 * * * *"`
	CronSchedulePollTick  string `env:"CRON_SCHEDULE_POLL_TICK" envDefault:"*/15 * * * * *"`
}
