// Package config loads, normalizes, and validates dlq configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), and reads TOML files. The Config type centralizes every knob the
// daemon and CLI need: directories, the concurrency limit and next action,
// interaction timeouts, the bandwidth cap, and category destinations.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths and clear validation errors.
package config
