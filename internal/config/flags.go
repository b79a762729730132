package config

import (
	"flag"
	"time"
)

// parseFlags parses configuration flags from args (the command line without
// the program name). A dedicated FlagSet is used so the daemon's CLI layer can
// pass through its own argument slice.
//
// Flags:
//
//	-a remote storage base URL
//	-token-url OAuth2 token endpoint
//	-client-id OAuth2 client id
//	-client-secret OAuth2 client secret
//	-username account name for the password grant
//	-password account password for the password grant
//	-request-timeout outbound request timeout (e.g., "30s", "1m")
//	-root local folder root directory
//	-index-dir per-container index file directory
//	-max-tasks concurrent task bound
//	-max-attempts per-task retry budget
//	-quota-cooldown container upload deferral window (e.g., "5m")
//	-sync-interval periodic diff pass interval
//	-refresh-interval container list refresh interval
//	-c/-config json file path with configs
func parseFlags(args []string) (*StructuredConfig, error) {
	fs := flag.NewFlagSet("vaultsync", flag.ContinueOnError)

	var (
		address         string
		tokenURL        string
		clientID        string
		clientSecret    string
		username        string
		password        string
		requestTimeout  time.Duration
		rootDir         string
		indexDir        string
		maxTasks        int
		maxAttempts     int
		quotaCooldown   time.Duration
		syncInterval    time.Duration
		refreshInterval time.Duration
		jsonConfigPath  string
	)

	fs.StringVar(&address, "a", "", "Remote storage base URL")
	fs.StringVar(&tokenURL, "token-url", "", "OAuth2 token endpoint")
	fs.StringVar(&clientID, "client-id", "", "OAuth2 client id")
	fs.StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret")
	fs.StringVar(&username, "username", "", "Account name for the password grant")
	fs.StringVar(&password, "password", "", "Account password for the password grant")
	fs.DurationVar(&requestTimeout, "request-timeout", 0, "Request timeout (e.g., 30s, 1m)")
	fs.StringVar(&rootDir, "root", "", "Local folder root directory")
	fs.StringVar(&indexDir, "index-dir", "", "Index file directory")
	fs.IntVar(&maxTasks, "max-tasks", 0, "Concurrent task bound")
	fs.IntVar(&maxAttempts, "max-attempts", 0, "Per-task retry budget")
	fs.DurationVar(&quotaCooldown, "quota-cooldown", 0, "Upload deferral window after quota errors")
	fs.DurationVar(&syncInterval, "sync-interval", 0, "Periodic diff pass interval")
	fs.DurationVar(&refreshInterval, "refresh-interval", 0, "Container list refresh interval")
	fs.StringVar(&jsonConfigPath, "c", "", "JSON config file path")
	fs.StringVar(&jsonConfigPath, "config", "", "JSON config file path (alias)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	return &StructuredConfig{
		Adapter: Adapter{
			HTTPAddress:    address,
			TokenURL:       tokenURL,
			ClientID:       clientID,
			ClientSecret:   clientSecret,
			Username:       username,
			Password:       password,
			RequestTimeout: requestTimeout,
		},
		Storage: Storage{
			RootDir:  rootDir,
			IndexDir: indexDir,
		},
		Sync: Sync{
			MaxConcurrentTasks: maxTasks,
			MaxAttempts:        maxAttempts,
			QuotaCooldown:      quotaCooldown,
		},
		Workers: Workers{
			SyncInterval:    syncInterval,
			RefreshInterval: refreshInterval,
		},
		JSONFilePath: jsonConfigPath,
	}, nil
}
