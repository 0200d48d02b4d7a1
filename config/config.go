package config

type AppConfig struct {
	APIPort     string `env:"PORT,required" envDefault:"12333"`
	APIKey      string `env:"API_KEY,required"`
	RabbitMQURL string `env:"RABBITMQ_URL"`
}

type EngineConfig struct {
	// PollWorkers caps the number of inboxes polled concurrently.
	PollWorkers int `env:"ENGINE_POLL_WORKERS" envDefault:"8"`
	// MessageWorkers caps concurrent pipeline runs within one inbox cycle.
	MessageWorkers int `env:"ENGINE_MESSAGE_WORKERS" envDefault:"4"`
	// ReplyWorkers caps concurrent auto-reply SMTP sends.
	ReplyWorkers int `env:"ENGINE_REPLY_WORKERS" envDefault:"2"`
	// MaxAttempts is the per-message retry budget before a record is parked.
	MaxAttempts int `env:"ENGINE_MAX_ATTEMPTS" envDefault:"5"`
	// LeaseTTLSeconds bounds how long a crashed worker blocks an inbox.
	LeaseTTLSeconds int `env:"ENGINE_LEASE_TTL_SECONDS" envDefault:"300"`
	// FetchBatchSize caps messages pulled per poll cycle per inbox.
	FetchBatchSize int `env:"ENGINE_FETCH_BATCH_SIZE" envDefault:"200"`
}

type EngineDatabaseConfig struct {
	Host            string `env:"MAILROOM_POSTGRES_HOST,required"`
	Port            string `env:"MAILROOM_POSTGRES_PORT,required"`
	User            string `env:"MAILROOM_POSTGRES_USER,required"`
	DBName          string `env:"MAILROOM_POSTGRES_DB_NAME,required"`
	Password        string `env:"MAILROOM_POSTGRES_PASSWORD,required"`
	MaxConn         int    `env:"MAILROOM_POSTGRES_DB_MAX_CONN" envDefault:"50"`
	MaxIdleConn     int    `env:"MAILROOM_POSTGRES_DB_MAX_IDLE_CONN" envDefault:"10"`
	ConnMaxLifetime int    `env:"MAILROOM_POSTGRES_DB_CONN_MAX_LIFETIME" envDefault:"60"`
	LogLevel        string `env:"MAILROOM_POSTGRES_LOG_LEVEL" envDefault:"WARN"`
	SSLMode         string `env:"MAILROOM_POSTGRES_SSL_MODE" envDefault:"disable"`
}
