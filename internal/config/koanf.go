// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, in order.
// The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/videoos-agent/config.yaml",
	"/etc/videoos-agent/config.yml",
}

// ConfigPathEnvVar overrides the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Device: DeviceConfig{
			Host:           "",
			Port:           443,
			Username:       "",
			Password:       "",
			InsecureTLS:    true, // Factory-shipped devices present self-signed certs
			RequestTimeout: 30 * time.Second,
			RetryDelay:     2 * time.Second,
			RateLimit:      10,
			RateBurst:      5,
		},
		Poller: PollerConfig{
			PollInterval:       60 * time.Second,
			ControlCooldown:    5 * time.Second,
			RebootGrace:        200 * time.Second,
			GroupTimeout:       15 * time.Second,
			Workers:            15,
			DisabledGroups:     []string{},
			DialVerifyAttempts: 5,
			DialVerifyInterval: 1 * time.Second,
		},
		Server: ServerConfig{
			Host:              "0.0.0.0",
			Port:              8090,
			Timeout:           30 * time.Second,
			CORSOrigins:       []string{"*"},
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
			RateLimitDisabled: false,
		},
		Security: SecurityConfig{
			JWTSecret:      "",
			SessionTimeout: 24 * time.Hour,
			Users:          []UserConfig{},
			DefaultRole:    "viewer",
		},
		Events: EventsConfig{
			Enabled:       false, // Opt-in; the agent is self-sufficient without a broker
			Embedded:      true,
			URL:           "nats://127.0.0.1:4222",
			Host:          "127.0.0.1",
			Port:          4222,
			StoreDir:      "/data/nats/jetstream",
			MaxMemory:     256 << 20, // 256MB
			MaxStore:      1 << 30,   // 1GB
			TopicPrefix:   "videoos",
			MaxReconnects: 10,
			ReconnectWait: 2 * time.Second,
		},
		Journal: JournalConfig{
			Enabled:    false, // Opt-in; without it calls do not survive restarts
			Path:       "/data/videoos-journal",
			SyncWrites: true,
			GCInterval: 10 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load builds configuration using Koanf v2 with layered sources:
//  1. Defaults: built-in values
//  2. Config file: optional YAML (if found)
//  3. Environment variables: override any setting
//
// Precedence: ENV > file > defaults.
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	configPath := findConfigFile()
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// DEVICE_HOST -> device.host, POLL_INTERVAL -> poller.poll_interval
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Comma-separated env strings into slice fields
	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches the env override and then the default paths.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths are the config paths parsed as comma-separated slices
// when they arrive from the environment as plain strings.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"poller.disabled_groups",
}

// processSliceFields converts comma-separated strings to slices for the
// known slice fields. YAML-sourced values are already slices and skipped.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped variables are skipped so unrelated environment noise never
// leaks into the configuration.
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Device mappings
		"device_host":            "device.host",
		"device_port":            "device.port",
		"device_username":        "device.username",
		"device_password":        "device.password",
		"device_insecure_tls":    "device.insecure_tls",
		"device_request_timeout": "device.request_timeout",
		"device_retry_delay":     "device.retry_delay",
		"device_rate_limit":      "device.rate_limit",
		"device_rate_burst":      "device.rate_burst",

		// Poller mappings
		"poll_interval":        "poller.poll_interval",
		"control_cooldown":     "poller.control_cooldown",
		"reboot_grace":         "poller.reboot_grace",
		"poll_group_timeout":   "poller.group_timeout",
		"poll_workers":         "poller.workers",
		"poll_disabled_groups": "poller.disabled_groups",
		"dial_verify_attempts": "poller.dial_verify_attempts",
		"dial_verify_interval": "poller.dial_verify_interval",

		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_reqs",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",

		// Security mappings
		"jwt_secret":          "security.jwt_secret",
		"session_timeout":     "security.session_timeout",
		"admin_username":      "security.admin_username",
		"admin_password_hash": "security.admin_password_hash",
		"default_role":        "security.default_role",
		"policy_path":         "security.policy_path",

		// Events mappings
		"nats_enabled":        "events.enabled",
		"nats_embedded":       "events.embedded",
		"nats_url":            "events.url",
		"nats_host":           "events.host",
		"nats_port":           "events.port",
		"nats_store_dir":      "events.store_dir",
		"nats_max_memory":     "events.max_memory",
		"nats_max_store":      "events.max_store",
		"nats_topic_prefix":   "events.topic_prefix",
		"nats_max_reconnects": "events.max_reconnects",
		"nats_reconnect_wait": "events.reconnect_wait",

		// Journal mappings
		"journal_enabled":     "journal.enabled",
		"journal_path":        "journal.path",
		"journal_sync_writes": "journal.sync_writes",
		"journal_gc_interval": "journal.gc_interval",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}

	return ""
}
