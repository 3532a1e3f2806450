package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config holds runtime settings for the server. Values come from built-in
// defaults, overridden by an optional YAML file, overridden by environment
// variables.
type Config struct {
	ServerAddr             string `yaml:"server_addr"`
	StorageRoot            string `yaml:"storage_root"`
	MaxFileSizeMB          int    `yaml:"max_file_size_mb"`
	HourlySubmissionCap    int    `yaml:"hourly_submission_cap"`
	MaxActivePerOwner      int    `yaml:"max_active_per_owner"`
	WorkerPollMillis       int    `yaml:"worker_poll_millis"`
	MetadataTimeoutSeconds int    `yaml:"metadata_timeout_seconds"`
	CleanupIntervalMinutes int    `yaml:"cleanup_interval_minutes"`
	MaxFileAgeHours        int    `yaml:"max_file_age_hours"`
	StorageBudgetMB        int    `yaml:"storage_budget_mb"`
	HistoryLimit           int    `yaml:"history_limit"`
	DeleteAfterServe       bool   `yaml:"delete_after_serve"`
}

// Path returns the config file location, overridable through CONFIG_FILE.
func Path() string {
	return getEnv("CONFIG_FILE", "config.yaml")
}

func defaults() Config {
	return Config{
		ServerAddr:             ":8080",
		StorageRoot:            "./downloads",
		MaxFileSizeMB:          2048,
		HourlySubmissionCap:    10,
		MaxActivePerOwner:      5,
		WorkerPollMillis:       500,
		MetadataTimeoutSeconds: 15,
		CleanupIntervalMinutes: 60,
		MaxFileAgeHours:        24,
		StorageBudgetMB:        10240,
		HistoryLimit:           100,
		DeleteAfterServe:       false,
	}
}

// Load reads the optional YAML file at path and applies environment
// overrides. A missing file is not an error; an unreadable one is.
func Load(path string) (Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	cfg.ServerAddr = getEnv("SERVER_ADDR", cfg.ServerAddr)
	cfg.StorageRoot = getEnv("STORAGE_ROOT", cfg.StorageRoot)
	cfg.MaxFileSizeMB = getEnvInt("MAX_FILE_SIZE_MB", cfg.MaxFileSizeMB)
	cfg.HourlySubmissionCap = getEnvInt("HOURLY_SUBMISSION_CAP", cfg.HourlySubmissionCap)
	cfg.MaxActivePerOwner = getEnvInt("MAX_ACTIVE_PER_OWNER", cfg.MaxActivePerOwner)
	cfg.WorkerPollMillis = getEnvInt("WORKER_POLL_MILLIS", cfg.WorkerPollMillis)
	cfg.MetadataTimeoutSeconds = getEnvInt("METADATA_TIMEOUT_SECONDS", cfg.MetadataTimeoutSeconds)
	cfg.CleanupIntervalMinutes = getEnvInt("CLEANUP_INTERVAL_MINUTES", cfg.CleanupIntervalMinutes)
	cfg.MaxFileAgeHours = getEnvInt("MAX_FILE_AGE_HOURS", cfg.MaxFileAgeHours)
	cfg.StorageBudgetMB = getEnvInt("STORAGE_BUDGET_MB", cfg.StorageBudgetMB)
	cfg.HistoryLimit = getEnvInt("HISTORY_LIMIT", cfg.HistoryLimit)
	cfg.DeleteAfterServe = getEnvBool("DELETE_AFTER_SERVE", cfg.DeleteAfterServe)

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	var out int
	_, err := fmt.Sscanf(value, "%d", &out)
	if err != nil || out <= 0 {
		return fallback
	}
	return out
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch value {
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	default:
		return fallback
	}
}
