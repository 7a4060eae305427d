// Package config loads, normalizes, and validates nfckeyboard configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// NFCKEYBOARD_LOG_LEVEL. The Config type centralizes every knob the watcher and
// CLI need: reader polling cadence, the instance lock strategy, how a UID is
// delivered to the focused application, and log output.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical enum values, and clear validation errors.
package config
