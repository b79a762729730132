// Package config loads the go-vault-sync daemon configuration from
// environment variables, command-line flags, an optional JSON file, and
// built-in defaults, merged in that priority order.
//
// See [GetConfig] for the entry point.
package config
