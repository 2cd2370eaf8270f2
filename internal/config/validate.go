package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPort            = 1
	maxPort            = 65535
	minRetryTotal      = 1
	maxRetryTotal      = 100
	maxPoolSize        = 1024
	minBatchSize       = 1
	maxBatchSize       = 10_000
	minRepairPeriod    = 10 * time.Millisecond
	minCatalogPoll     = 10 * time.Millisecond
	minConnectTimeout  = 1 * time.Second
	maxSchemeLength    = 32
	schemeAllowedExtra = "+-."
)

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

// Validate checks all configuration values and returns all errors found,
// so a bad file is reported in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validatePaths(&cfg.Paths)...)
	errs = append(errs, validateRepair(&cfg.Repair)...)
	errs = append(errs, validateRemote(&cfg.Remote)...)
	errs = append(errs, validateCatalog(&cfg.Catalog)...)

	return errors.Join(errs...)
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validatePaths(p *PathsConfig) []error {
	var errs []error

	if err := validateScheme(p.Scheme); err != nil {
		errs = append(errs, fmt.Errorf("paths.scheme: %w", err))
	}

	if p.DefaultFS != "" {
		u, err := url.Parse(p.DefaultFS)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("paths.default_fs: %w", err))
		case u.Scheme == "":
			errs = append(errs, fmt.Errorf("paths.default_fs: must include a scheme, got %q", p.DefaultFS))
		}
	}

	return errs
}

func validateScheme(s string) error {
	if s == "" {
		return errors.New("must not be empty")
	}

	if len(s) > maxSchemeLength {
		return fmt.Errorf("must be at most %d characters, got %d", maxSchemeLength, len(s))
	}

	for i, r := range s {
		letter := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		if letter || (i > 0 && ((r >= '0' && r <= '9') || strings.ContainsRune(schemeAllowedExtra, r))) {
			continue
		}

		return fmt.Errorf("invalid character %q in %q", r, s)
	}

	return nil
}

func validateRepair(r *RepairConfig) []error {
	var errs []error

	if err := validateDuration("repair.initial_delay", r.InitialDelay, minRepairPeriod); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("repair.period", r.Period, minRepairPeriod); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateRemote(r *RemoteConfig) []error {
	var errs []error

	if len(r.Addresses) == 0 {
		errs = append(errs, errors.New("remote.addresses: at least one address is required"))
	}

	for _, addr := range r.Addresses {
		if strings.TrimSpace(addr) == "" {
			errs = append(errs, errors.New("remote.addresses: empty address"))
		}
	}

	if r.RPCPort < minPort || r.RPCPort > maxPort {
		errs = append(errs, fmt.Errorf("remote.rpc_port: must be between %d and %d, got %d", minPort, maxPort, r.RPCPort))
	}

	if err := validateDuration("remote.connection_timeout", r.ConnectionTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateRange("remote.rpc_retry_total", r.RPCRetryTotal, minRetryTotal, maxRetryTotal)...)
	errs = append(errs, validateRange("remote.full_retry_total", r.FullRetryTotal, minRetryTotal, maxRetryTotal)...)
	errs = append(errs, validateRange("remote.pool_max_total", r.PoolMaxTotal, 1, maxPoolSize)...)
	errs = append(errs, validateRange("remote.pool_max_idle", r.PoolMaxIdle, 0, maxPoolSize)...)
	errs = append(errs, validateRange("remote.pool_min_idle", r.PoolMinIdle, 0, maxPoolSize)...)

	if r.PoolMinIdle > r.PoolMaxTotal {
		errs = append(errs, fmt.Errorf("remote.pool_min_idle: must not exceed pool_max_total (%d), got %d",
			r.PoolMaxTotal, r.PoolMinIdle))
	}

	return errs
}

func validateCatalog(c *CatalogConfig) []error {
	var errs []error

	if err := validateDuration("catalog.poll_interval", c.PollInterval, minCatalogPoll); err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateRange("catalog.batch_size", c.BatchSize, minBatchSize, maxBatchSize)...)

	return errs
}

func validateRange(key string, v, lo, hi int) []error {
	if v < lo || v > hi {
		return []error{fmt.Errorf("%s: must be between %d and %d, got %d", key, lo, hi, v)}
	}

	return nil
}

func validateDuration(key, s string, minimum time.Duration) error {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", key, s, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be at least %s, got %s", key, minimum, s)
	}

	return nil
}

// duration parses a validated duration string. Invalid input yields zero,
// which consumers treat as "use the default".
func duration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}

// InitialDelayDuration returns the parsed repair initial delay.
func (r RepairConfig) InitialDelayDuration() time.Duration { return duration(r.InitialDelay) }

// PeriodDuration returns the parsed repair period.
func (r RepairConfig) PeriodDuration() time.Duration { return duration(r.Period) }

// ConnectionTimeoutDuration returns the parsed remote connection timeout.
func (r RemoteConfig) ConnectionTimeoutDuration() time.Duration { return duration(r.ConnectionTimeout) }

// PollIntervalDuration returns the parsed catalog poll interval.
func (c CatalogConfig) PollIntervalDuration() time.Duration { return duration(c.PollInterval) }
