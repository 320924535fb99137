// Package config loads, normalizes, and validates bgtask configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// BGTASK_STORE_DSN and BGTASK_REDIS_ADDR. The Config type centralizes every
// knob the daemon and CLI need: the store backend, the executor, event
// publication, and the HTTP API.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical driver names, and clear validation errors.
package config
