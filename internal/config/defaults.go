package config

// Default values for configuration options: layer 0 of the override chain.
const (
	defaultLogLevel            = "info"
	defaultLogFormat           = "auto"
	defaultScheme              = "hdfs"
	defaultFS                  = "hdfs://localhost:8020"
	defaultRepairInitialDelay  = "10s"
	defaultRepairPeriod        = "1s"
	defaultRemoteAddress       = "localhost"
	defaultRPCPort             = 8038
	defaultConnectionTimeout   = "200s"
	defaultRPCRetryTotal       = 3
	defaultFullRetryTotal      = 2
	defaultPoolMaxTotal        = 8
	defaultPoolMaxIdle         = 8
	defaultPoolMinIdle         = 0
	defaultCatalogPollInterval = "1s"
	defaultCatalogBatchSize    = 100
	defaultServeListen         = ":8038"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their
// defaults.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Paths: PathsConfig{
			Scheme:    defaultScheme,
			DefaultFS: defaultFS,
		},
		Repair: RepairConfig{
			InitialDelay: defaultRepairInitialDelay,
			Period:       defaultRepairPeriod,
		},
		Remote: RemoteConfig{
			Addresses:         []string{defaultRemoteAddress},
			RPCPort:           defaultRPCPort,
			ConnectionTimeout: defaultConnectionTimeout,
			RPCRetryTotal:     defaultRPCRetryTotal,
			FullRetryTotal:    defaultFullRetryTotal,
			PoolMaxTotal:      defaultPoolMaxTotal,
			PoolMaxIdle:       defaultPoolMaxIdle,
			PoolMinIdle:       defaultPoolMinIdle,
			Compress:          true,
		},
		Catalog: CatalogConfig{
			PollInterval: defaultCatalogPollInterval,
			BatchSize:    defaultCatalogBatchSize,
		},
		Daemon: DaemonConfig{
			ServeListen: defaultServeListen,
		},
	}
}
