// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

import (
	"time"
)

// StructuredConfig is the top-level configuration container for the
// go-vault-sync daemon. It aggregates all sub-configurations and is populated
// by merging values from environment variables, command-line flags, an
// optional JSON file, and built-in defaults.
//
// Struct tags:
//   - envPrefix: prefix applied to all nested env tag lookups (caarlos0/env).
//   - env: direct environment variable name for scalar fields.
type StructuredConfig struct {
	// App holds application-level settings such as the version string.
	App App `envPrefix:"APP_"`

	// Adapter holds the remote storage endpoint and authentication settings.
	Adapter Adapter `envPrefix:"ADAPTER_"`

	// Storage holds local filesystem locations: the folder root under which
	// container folders live and the directory holding per-container index
	// files.
	Storage Storage `envPrefix:"STORAGE_"`

	// Sync holds scheduler tuning: concurrency bound, retry policy, and the
	// quota cooldown window.
	Sync Sync `envPrefix:"SYNC_"`

	// Encryption holds encryption gateway settings: request queue size,
	// worker count, and the OS keyring service name used for passphrases.
	Encryption Encryption `envPrefix:"ENCRYPTION_"`

	// Workers holds background job intervals.
	Workers Workers `envPrefix:"WORKERS_"`

	// JSONFilePath is the optional path to a JSON configuration file.
	// When non-empty, the file is parsed and merged on top of the values
	// already loaded from environment variables and flags.
	// Populated via the CONFIG environment variable or the -c / -config flag.
	JSONFilePath string `env:"CONFIG"`
}

// App holds application-level configuration values.
type App struct {
	// Version is the semantic version string of the running application.
	// Env: APP_VERSION
	Version string `env:"VERSION"`
}

// Adapter holds configuration for the remote storage HTTP client.
type Adapter struct {
	// HTTPAddress is the base URL of the remote storage API
	// (e.g. "https://storage.example.com").
	// Env: ADAPTER_ADDRESS
	HTTPAddress string `env:"ADDRESS"`

	// TokenURL is the OAuth2 token endpoint used for the password grant.
	// Env: ADAPTER_TOKEN_URL
	TokenURL string `env:"TOKEN_URL"`

	// ClientID identifies this application to the token endpoint.
	// Env: ADAPTER_CLIENT_ID
	ClientID string `env:"CLIENT_ID"`

	// ClientSecret authenticates this application to the token endpoint.
	// Env: ADAPTER_CLIENT_SECRET
	ClientSecret string `env:"CLIENT_SECRET"`

	// Username is the account name used for the OAuth2 password grant.
	// Env: ADAPTER_USERNAME
	Username string `env:"USERNAME"`

	// Password is the account password used for the OAuth2 password grant.
	// Env: ADAPTER_PASSWORD
	Password string `env:"PASSWORD"`

	// RequestTimeout is the maximum duration allowed for a single outbound
	// request before it is treated as a transient failure (e.g. "30s").
	// Env: ADAPTER_REQUEST_TIMEOUT
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT"`
}

// Storage holds local filesystem locations used by the engine.
type Storage struct {
	// RootDir is the directory under which container folders are bound
	// (e.g. "~/Vault"). Each LocalContainer path lives below it.
	// Env: STORAGE_ROOT_DIR
	RootDir string `env:"ROOT_DIR"`

	// IndexDir is the directory holding one index file per container.
	// Env: STORAGE_INDEX_DIR
	IndexDir string `env:"INDEX_DIR"`
}

// Sync holds task scheduler tuning parameters.
type Sync struct {
	// MaxConcurrentTasks bounds the number of tasks running at once across
	// all containers.
	// Env: SYNC_MAX_CONCURRENT_TASKS
	MaxConcurrentTasks int `env:"MAX_CONCURRENT_TASKS"`

	// MaxAttempts is the per-task retry budget for transient failures.
	// Env: SYNC_MAX_ATTEMPTS
	MaxAttempts int `env:"MAX_ATTEMPTS"`

	// RetryBase is the base delay of the exponential retry backoff.
	// Env: SYNC_RETRY_BASE
	RetryBase time.Duration `env:"RETRY_BASE"`

	// RetryMaxDelay caps the delay produced by the retry backoff.
	// Env: SYNC_RETRY_MAX_DELAY
	RetryMaxDelay time.Duration `env:"RETRY_MAX_DELAY"`

	// QuotaCooldown is the container-wide upload deferral window applied
	// after a quota-exceeded response from storage.
	// Env: SYNC_QUOTA_COOLDOWN
	QuotaCooldown time.Duration `env:"QUOTA_COOLDOWN"`
}

// Encryption holds encryption gateway settings.
type Encryption struct {
	// QueueSize bounds the gateway request queue. Submissions beyond it
	// wait until a worker frees up or the caller's context expires.
	// Env: ENCRYPTION_QUEUE_SIZE
	QueueSize int `env:"QUEUE_SIZE"`

	// Workers is the number of goroutines serving cipher requests.
	// Env: ENCRYPTION_WORKERS
	Workers int `env:"WORKERS"`

	// KeyringService is the OS keyring service name under which container
	// passphrases are stored.
	// Env: ENCRYPTION_KEYRING_SERVICE
	KeyringService string `env:"KEYRING_SERVICE"`
}

// Workers holds background job intervals.
type Workers struct {
	// SyncInterval is how often each container runs a full diff pass in the
	// absence of watcher events.
	// Env: WORKERS_SYNC_INTERVAL
	SyncInterval time.Duration `env:"SYNC_INTERVAL"`

	// RefreshInterval is how often the container registry reconciles with
	// the remote account listing.
	// Env: WORKERS_REFRESH_INTERVAL
	RefreshInterval time.Duration `env:"REFRESH_INTERVAL"`
}

// GetConfig loads, merges, and validates the daemon configuration from all
// available sources in the following priority order (earlier sources win for
// non-zero fields):
//  1. Environment variables
//  2. Command-line flags (args, excluding the program name)
//  3. JSON file (path resolved from sources 1 and 2)
//  4. Built-in defaults
//
// Returns a fully populated *StructuredConfig or an error if any source fails
// to load or the final config fails validation.
func GetConfig(args []string) (*StructuredConfig, error) {
	return newConfigBuilder().
		withEnv().
		withFlags(args).
		withJSON().
		withDefaults().
		build()
}
