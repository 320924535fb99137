package config

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"

	ExecutorPool  = "pool"
	ExecutorAsynq = "asynq"

	// DefaultEventsChannel is the Redis pub/sub channel for task events.
	DefaultEventsChannel = "bgtask:events"
)

const (
	defaultConfigPath        = "~/.config/bgtask/config.toml"
	defaultDataDir           = "~/.local/share/bgtask"
	defaultLogDir            = "~/.local/share/bgtask/logs"
	defaultAPIBind           = "127.0.0.1:7491"
	defaultBusyTimeoutMS     = 5000
	defaultMaxOpenConns      = 8
	defaultExecutorWorkers   = 4
	defaultExecutorQueueSize = 64
	defaultRedisAddr         = "127.0.0.1:6379"
	defaultAsynqQueue        = "bgtask"
	defaultAPIRateLimit      = 20
	defaultAPIBurst          = 40
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
	defaultLogRetentionDays  = 30
	defaultStaleAfterMinutes = 60
	defaultListLimit         = 200
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
			APIBind: defaultAPIBind,
		},
		Store: Store{
			Driver:        DriverSQLite,
			BusyTimeoutMS: defaultBusyTimeoutMS,
			MaxOpenConns:  defaultMaxOpenConns,
		},
		Executor: Executor{
			Kind:       ExecutorPool,
			Workers:    defaultExecutorWorkers,
			QueueSize:  defaultExecutorQueueSize,
			RedisAddr:  defaultRedisAddr,
			AsynqQueue: defaultAsynqQueue,
		},
		Events: Events{
			RedisAddr: defaultRedisAddr,
			Channel:   DefaultEventsChannel,
		},
		API: API{
			RateLimit: defaultAPIRateLimit,
			Burst:     defaultAPIBurst,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Tasks: Tasks{
			StaleAfterMinutes: defaultStaleAfterMinutes,
			ListLimit:         defaultListLimit,
		},
	}
}
