// Package config loads service configuration from multiple sources (a YAML or
// TOML file, environment variables, CLI flags) with precedence: CLI flags >
// Environment variables > config file > Defaults. It exposes strongly typed
// settings to the rest of the application.
package config
