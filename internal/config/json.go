package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// StructuredJSONConfig mirrors [StructuredConfig] with json tags and
// string-friendly durations, so a config file can spell "5m" instead of
// nanosecond integers.
type StructuredJSONConfig struct {
	App struct {
		Version string `json:"version"`
	} `json:"app,omitempty"`

	Adapter struct {
		HTTPAddress    string   `json:"address"`
		TokenURL       string   `json:"token_url"`
		ClientID       string   `json:"client_id"`
		ClientSecret   string   `json:"client_secret"`
		Username       string   `json:"username"`
		Password       string   `json:"password"`
		RequestTimeout Duration `json:"request_timeout"`
	} `json:"adapter,omitempty"`

	Storage struct {
		RootDir  string `json:"root_dir"`
		IndexDir string `json:"index_dir"`
	} `json:"storage,omitempty"`

	Sync struct {
		MaxConcurrentTasks int      `json:"max_concurrent_tasks"`
		MaxAttempts        int      `json:"max_attempts"`
		RetryBase          Duration `json:"retry_base"`
		RetryMaxDelay      Duration `json:"retry_max_delay"`
		QuotaCooldown      Duration `json:"quota_cooldown"`
	} `json:"sync,omitempty"`

	Encryption struct {
		QueueSize      int    `json:"queue_size"`
		Workers        int    `json:"workers"`
		KeyringService string `json:"keyring_service"`
	} `json:"encryption,omitempty"`

	Workers struct {
		SyncInterval    Duration `json:"sync_interval"`
		RefreshInterval Duration `json:"refresh_interval"`
	} `json:"workers,omitempty"`
}

func parseJSON(jsonFilePath string) (*StructuredConfig, error) {
	jsonFile, err := os.Open(jsonFilePath)
	if err != nil {
		return nil, fmt.Errorf("error reading a json file: %w", err)
	}
	defer jsonFile.Close()

	var jsonCfg StructuredJSONConfig
	if err := json.NewDecoder(jsonFile).Decode(&jsonCfg); err != nil {
		return nil, fmt.Errorf("error decoding json configs: %w", err)
	}

	cfg := &StructuredConfig{
		App: App{
			Version: jsonCfg.App.Version,
		},
		Adapter: Adapter{
			HTTPAddress:    jsonCfg.Adapter.HTTPAddress,
			TokenURL:       jsonCfg.Adapter.TokenURL,
			ClientID:       jsonCfg.Adapter.ClientID,
			ClientSecret:   jsonCfg.Adapter.ClientSecret,
			Username:       jsonCfg.Adapter.Username,
			Password:       jsonCfg.Adapter.Password,
			RequestTimeout: time.Duration(jsonCfg.Adapter.RequestTimeout),
		},
		Storage: Storage{
			RootDir:  jsonCfg.Storage.RootDir,
			IndexDir: jsonCfg.Storage.IndexDir,
		},
		Sync: Sync{
			MaxConcurrentTasks: jsonCfg.Sync.MaxConcurrentTasks,
			MaxAttempts:        jsonCfg.Sync.MaxAttempts,
			RetryBase:          time.Duration(jsonCfg.Sync.RetryBase),
			RetryMaxDelay:      time.Duration(jsonCfg.Sync.RetryMaxDelay),
			QuotaCooldown:      time.Duration(jsonCfg.Sync.QuotaCooldown),
		},
		Encryption: Encryption{
			QueueSize:      jsonCfg.Encryption.QueueSize,
			Workers:        jsonCfg.Encryption.Workers,
			KeyringService: jsonCfg.Encryption.KeyringService,
		},
		Workers: Workers{
			SyncInterval:    time.Duration(jsonCfg.Workers.SyncInterval),
			RefreshInterval: time.Duration(jsonCfg.Workers.RefreshInterval),
		},
	}

	return cfg, nil
}

// Duration is a wrapper around time.Duration that supports JSON unmarshaling from strings like "1h", "30s"
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*d = Duration(tmp)
		return nil
	default:
		return json.Unmarshal(b, (*time.Duration)(d))
	}
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}
