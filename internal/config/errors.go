package config

import "errors"

// Validation errors returned by [StructuredConfig.validate] when required
// configuration groups are incomplete or invalid.
var (
	// ErrInvalidAdapterConfigs indicates invalid remote storage settings
	// (for example, missing base URL or zero request timeout).
	ErrInvalidAdapterConfigs = errors.New("invalid adapter configuration")
	// ErrInvalidStorageConfigs indicates invalid local storage settings
	// (for example, missing root or index directory).
	ErrInvalidStorageConfigs = errors.New("invalid storage configuration")
	// ErrInvalidSyncConfigs indicates invalid scheduler settings
	// (for example, a non-positive concurrency bound).
	ErrInvalidSyncConfigs = errors.New("invalid sync configuration")
	// ErrInvalidEncryptionConfigs indicates invalid encryption gateway
	// settings (for example, a non-positive queue size).
	ErrInvalidEncryptionConfigs = errors.New("invalid encryption configuration")
	// ErrInvalidWorkerConfigs indicates invalid background worker settings
	// (for example, zero sync interval).
	ErrInvalidWorkerConfigs = errors.New("invalid worker configuration")
)
