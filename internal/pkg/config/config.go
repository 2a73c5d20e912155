// Package config reads service settings from a file with environment overrides.
package config

import (
	"io"
	"time"
)

// DurationConfig defines helpers for retrieving time-based configuration values.
type DurationConfig interface {
	// GetMillisecond returns the integer value of key as milliseconds.
	GetMillisecond(key string) time.Duration

	// GetSecond returns the integer value of key as seconds.
	GetSecond(key string) time.Duration

	// GetMinute returns the integer value of key as minutes.
	GetMinute(key string) time.Duration
}

// Config defines a set of methods for retrieving configuration values of various types.
//
// Missing keys yield the zero value of the requested type unless a default was
// registered for them.
type Config interface {
	io.Closer
	DurationConfig

	GetBool(key string) bool
	GetInt(key string) int
	GetInt64(key string) int64
	GetFloat64(key string) float64
	GetString(key string) string

	// GetArray returns the value as a list. Both YAML sequences and
	// "a,b,c" strings are accepted; blank elements are dropped.
	GetArray(key string) []string

	// IsSet reports whether key has a value from the file, the environment or a default.
	IsSet(key string) bool
}
