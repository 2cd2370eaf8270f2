package config

import (
	"os"
	"strings"
)

// Environment variable names for overrides.
const (
	EnvConfig  = "SENTRY_PATHS_CONFIG"
	EnvRemote  = "SENTRY_PATHS_REMOTE"
	EnvCatalog = "SENTRY_PATHS_CATALOG"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string   // SENTRY_PATHS_CONFIG: config file path
	Remote     []string // SENTRY_PATHS_REMOTE: comma-separated remote addresses
	CatalogDB  string   // SENTRY_PATHS_CATALOG: catalog database path
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Remote:     splitList(os.Getenv(EnvRemote)),
		CatalogDB:  os.Getenv(EnvCatalog),
	}
}

// splitList splits a comma-separated list, dropping blanks.
func splitList(s string) []string {
	var out []string

	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}

	return out
}
