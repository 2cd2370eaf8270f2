package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of each config section.
var knownKeys = map[string][]string{
	"logging": {"log_format", "log_level"},
	"paths":   {"default_fs", "scheme"},
	"repair":  {"initial_delay", "period"},
	"remote": {
		"addresses", "compress", "connection_timeout", "full_retry_total", "pool_max_idle",
		"pool_max_total", "pool_min_idle", "rpc_port", "rpc_retry_total",
	},
	"catalog": {"batch_size", "db_path", "poll_interval"},
	"daemon":  {"metrics_listen", "pid_file", "serve_listen"},
}

// knownSectionsList is the sorted section list for Levenshtein matching.
// Sorted for deterministic suggestions on equal edit distance.
var knownSectionsList = func() []string {
	sections := make([]string, 0, len(knownKeys))
	for s := range knownKeys {
		sections = append(sections, s)
	}

	sort.Strings(sections)

	return sections
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key. Keys
// under an unknown section are reported once, at the section.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	reported := make(map[string]bool)

	for _, key := range md.Undecoded() {
		section := key[0]
		if reported[section] {
			continue
		}

		if _, ok := knownKeys[section]; !ok {
			reported[section] = true
			errs = append(errs, unknownSectionError(section))

			continue
		}

		if len(key) > 1 {
			errs = append(errs, unknownKeyError(section, key[1:]))
		}
	}

	return errors.Join(errs...)
}

func unknownSectionError(section string) error {
	if suggestion := closestMatch(section, knownSectionsList); suggestion != "" {
		return fmt.Errorf("unknown config section %q, did you mean %q?", section, suggestion)
	}

	return fmt.Errorf("unknown config section %q", section)
}

func unknownKeyError(section string, rest []string) error {
	name := strings.Join(rest, ".")

	if suggestion := closestMatch(rest[0], knownKeys[section]); suggestion != "" {
		return fmt.Errorf("unknown config key %q in [%s], did you mean %q?", name, section, suggestion)
	}

	return fmt.Errorf("unknown config key %q in [%s]", name, section)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Use single-row optimization to avoid allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
