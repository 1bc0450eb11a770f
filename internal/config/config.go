// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package config loads and validates agent configuration from layered
// sources: built-in defaults, an optional YAML file, and environment
// variables (highest priority).
package config

import "time"

// Config is the root configuration for the agent.
type Config struct {
	Device   DeviceConfig   `koanf:"device"`
	Poller   PollerConfig   `koanf:"poller"`
	Server   ServerConfig   `koanf:"server"`
	Security SecurityConfig `koanf:"security"`
	Events   EventsConfig   `koanf:"events"`  // Optional: NATS/Watermill event publishing
	Journal  JournalConfig  `koanf:"journal"` // Optional: Badger-backed snapshot/call journal
	Logging  LoggingConfig  `koanf:"logging"`
}

// DeviceConfig describes the monitored VideoOS device and how to reach it.
type DeviceConfig struct {
	Host     string `koanf:"host"` // Device hostname or IP
	Port     int    `koanf:"port"` // HTTPS port (default 443)
	Username string `koanf:"username"`
	Password string `koanf:"password"`

	// InsecureTLS skips certificate verification. VideoOS devices ship
	// with self-signed certificates, so this defaults to true.
	InsecureTLS bool `koanf:"insecure_tls"`

	RequestTimeout time.Duration `koanf:"request_timeout"` // Per-request timeout
	RetryDelay     time.Duration `koanf:"retry_delay"`     // Delay before the single transient retry

	// Outbound request pacing. The device runs a single embedded web
	// server; bursts beyond this are queued client-side.
	RateLimit float64 `koanf:"rate_limit"` // Requests per second
	RateBurst int     `koanf:"rate_burst"`
}

// PollerConfig tunes the polling cycle and the per-group scheduler.
type PollerConfig struct {
	PollInterval    time.Duration `koanf:"poll_interval"`    // Full poll cadence
	ControlCooldown time.Duration `koanf:"control_cooldown"` // Cache window after a control write
	RebootGrace     time.Duration `koanf:"reboot_grace"`     // Cache window after a reboot command
	GroupTimeout    time.Duration `koanf:"group_timeout"`    // Per-group fetch timeout
	Workers         int           `koanf:"workers"`          // Concurrent group fetch slots

	// DisabledGroups lists resource group names to skip entirely.
	DisabledGroups []string `koanf:"disabled_groups"`

	DialVerifyAttempts int           `koanf:"dial_verify_attempts"` // Conference lookups after dial
	DialVerifyInterval time.Duration `koanf:"dial_verify_interval"`
}

// ServerConfig configures the HTTP control-plane server.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins []string `koanf:"cors_origins"`

	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// UserConfig is one API principal. PasswordHash is a bcrypt hash; plain
// passwords are never stored.
type UserConfig struct {
	Username     string `koanf:"username"`
	PasswordHash string `koanf:"password_hash"`
	Role         string `koanf:"role"` // viewer or operator
}

// SecurityConfig configures API authentication and authorization.
type SecurityConfig struct {
	JWTSecret      string        `koanf:"jwt_secret"` // HS256 signing key, min 32 chars
	SessionTimeout time.Duration `koanf:"session_timeout"`

	// Users come from the YAML file. AdminUsername/AdminPasswordHash
	// bootstrap a single operator account from the environment.
	Users             []UserConfig `koanf:"users"`
	AdminUsername     string       `koanf:"admin_username"`
	AdminPasswordHash string       `koanf:"admin_password_hash"`

	DefaultRole string `koanf:"default_role"`

	// PolicyPath points at a CSV file overriding the embedded
	// authorization policy. The file is watched and reloaded.
	PolicyPath string `koanf:"policy_path"`
}

// EventsConfig configures NATS JetStream event publishing.
type EventsConfig struct {
	Enabled bool `koanf:"enabled"`

	// Embedded runs an in-process NATS server; URL then points at it.
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`

	Host     string `koanf:"host"`      // Embedded server bind host
	Port     int    `koanf:"port"`      // Embedded server port
	StoreDir string `koanf:"store_dir"` // JetStream storage directory

	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	TopicPrefix   string        `koanf:"topic_prefix"`
	MaxReconnects int           `koanf:"max_reconnects"`
	ReconnectWait time.Duration `koanf:"reconnect_wait"`
}

// JournalConfig configures the Badger journal that persists the latest
// snapshot and the active call record across restarts.
type JournalConfig struct {
	Enabled    bool          `koanf:"enabled"`
	Path       string        `koanf:"path"`
	SyncWrites bool          `koanf:"sync_writes"`
	GCInterval time.Duration `koanf:"gc_interval"`
}

// LoggingConfig configures the global logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// AllUsers returns the configured users plus the bootstrap admin, if set.
func (c *SecurityConfig) AllUsers() []UserConfig {
	users := make([]UserConfig, 0, len(c.Users)+1)
	users = append(users, c.Users...)
	if c.AdminUsername != "" && c.AdminPasswordHash != "" {
		users = append(users, UserConfig{
			Username:     c.AdminUsername,
			PasswordHash: c.AdminPasswordHash,
			Role:         "operator",
		})
	}
	return users
}
