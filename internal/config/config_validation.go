// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package config

// validate checks that the final merged [StructuredConfig] satisfies the
// engine's invariants before it is used at startup.
//
// Returns nil if the configuration is valid, or one of the sentinel errors
// from errors.go otherwise.
func (cfg *StructuredConfig) validate() error {
	if cfg.Adapter.HTTPAddress == "" || cfg.Adapter.RequestTimeout <= 0 {
		return ErrInvalidAdapterConfigs
	}

	if cfg.Storage.RootDir == "" || cfg.Storage.IndexDir == "" {
		return ErrInvalidStorageConfigs
	}

	if cfg.Sync.MaxConcurrentTasks <= 0 || cfg.Sync.MaxAttempts <= 0 ||
		cfg.Sync.RetryBase <= 0 || cfg.Sync.QuotaCooldown <= 0 {
		return ErrInvalidSyncConfigs
	}

	if cfg.Encryption.QueueSize <= 0 || cfg.Encryption.Workers <= 0 {
		return ErrInvalidEncryptionConfigs
	}

	if cfg.Workers.SyncInterval <= 0 || cfg.Workers.RefreshInterval <= 0 {
		return ErrInvalidWorkerConfigs
	}

	return nil
}
