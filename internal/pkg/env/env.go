// Package env provides utilities for working with environment variables.
package env

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Get returns the value of the environment variable or the default if not set.
func Get(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

// GetInt returns the environment variable parsed as an int, or the default
// when it is unset or not a number.
func GetInt(key string, defaultValue int) int {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetInt64 is GetInt for 64-bit values such as chain IDs.
func GetInt64(key string, defaultValue int64) int64 {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetBool accepts the usual strconv.ParseBool spellings.
func GetBool(key string, defaultValue bool) bool {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetDuration parses values like "500ms" or "2s".
func GetDuration(key string, defaultValue time.Duration) time.Duration {
	raw := Get(key, "")
	if raw == "" {
		return defaultValue
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return defaultValue
	}
	return v
}

// GetList splits a comma-separated variable, dropping empty items.
func GetList(key string) []string {
	raw := Get(key, "")
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
