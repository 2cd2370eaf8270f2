// Package config implements TOML configuration loading and validation for
// sentry-paths. Values resolve through four layers: defaults, the config
// file, environment variables, then CLI flags.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Logging LoggingConfig `toml:"logging"`
	Paths   PathsConfig   `toml:"paths"`
	Repair  RepairConfig  `toml:"repair"`
	Remote  RemoteConfig  `toml:"remote"`
	Catalog CatalogConfig `toml:"catalog"`
	Daemon  DaemonConfig  `toml:"daemon"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// PathsConfig describes the filesystem namespace whose paths are tracked.
// Locations without a scheme take the scheme of DefaultFS.
type PathsConfig struct {
	Scheme    string `toml:"scheme"`
	DefaultFS string `toml:"default_fs"`
}

// RepairConfig controls the divergence repair timer.
type RepairConfig struct {
	InitialDelay string `toml:"initial_delay"`
	Period       string `toml:"period"`
}

// RemoteConfig locates the remote authorization service and sizes the
// client's retry budget and connection pool.
type RemoteConfig struct {
	Addresses         []string `toml:"addresses"`
	RPCPort           int      `toml:"rpc_port"`
	ConnectionTimeout string   `toml:"connection_timeout"`
	RPCRetryTotal     int      `toml:"rpc_retry_total"`
	FullRetryTotal    int      `toml:"full_retry_total"`
	PoolMaxTotal      int      `toml:"pool_max_total"`
	PoolMaxIdle       int      `toml:"pool_max_idle"`
	PoolMinIdle       int      `toml:"pool_min_idle"`
	Compress          bool     `toml:"compress"`
}

// CatalogConfig locates the catalog database and tunes the notification
// listener.
type CatalogConfig struct {
	DBPath       string `toml:"db_path"`
	PollInterval string `toml:"poll_interval"`
	BatchSize    int    `toml:"batch_size"`
}

// DaemonConfig holds process-level settings for the run and serve commands.
type DaemonConfig struct {
	PIDFile       string `toml:"pid_file"`
	MetricsListen string `toml:"metrics_listen"`
	ServeListen   string `toml:"serve_listen"`
}

// CLIOverrides holds values from CLI flags. Pointer and empty fields mean
// "not specified".
type CLIOverrides struct {
	ConfigPath string   // --config flag (empty = use default)
	Remote     []string // --remote flag
	CatalogDB  string   // --catalog flag
	LogLevel   string   // derived from --verbose/--debug/--quiet
}
