package config

import "time"

// Default scheduler and gateway tuning. The 35-task bound and the five-minute
// quota cooldown match the product's shipped behavior.
const (
	DefaultMaxConcurrentTasks = 35
	DefaultMaxAttempts        = 5
	DefaultRetryBase          = 2 * time.Second
	DefaultRetryMaxDelay      = 2 * time.Minute
	DefaultQuotaCooldown      = 5 * time.Minute
	DefaultRequestTimeout     = 30 * time.Second
	DefaultQueueSize          = 64
	DefaultGatewayWorkers     = 2
	DefaultKeyringService     = "go-vault-sync"
	DefaultSyncInterval       = 30 * time.Second
	DefaultRefreshInterval    = 5 * time.Minute
)

func defaults() *StructuredConfig {
	return &StructuredConfig{
		Adapter: Adapter{
			RequestTimeout: DefaultRequestTimeout,
		},
		Sync: Sync{
			MaxConcurrentTasks: DefaultMaxConcurrentTasks,
			MaxAttempts:        DefaultMaxAttempts,
			RetryBase:          DefaultRetryBase,
			RetryMaxDelay:      DefaultRetryMaxDelay,
			QuotaCooldown:      DefaultQuotaCooldown,
		},
		Encryption: Encryption{
			QueueSize:      DefaultQueueSize,
			Workers:        DefaultGatewayWorkers,
			KeyringService: DefaultKeyringService,
		},
		Workers: Workers{
			SyncInterval:    DefaultSyncInterval,
			RefreshInterval: DefaultRefreshInterval,
		},
	}
}
