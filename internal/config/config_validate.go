// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package config

import (
	"fmt"
	"strings"
	"time"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateDevice(); err != nil {
		return err
	}

	if err := c.validatePoller(); err != nil {
		return err
	}

	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateSecurity(); err != nil {
		return err
	}

	if err := c.validateEvents(); err != nil {
		return err
	}

	if err := c.validateJournal(); err != nil {
		return err
	}

	return c.validateLogging()
}

func (c *Config) validateDevice() error {
	if c.Device.Host == "" {
		return fmt.Errorf("DEVICE_HOST is required")
	}
	if strings.ContainsAny(c.Device.Host, "/ ") {
		return fmt.Errorf("DEVICE_HOST must be a bare hostname or IP, got %q", c.Device.Host)
	}
	if c.Device.Port < 1 || c.Device.Port > 65535 {
		return fmt.Errorf("DEVICE_PORT must be between 1 and 65535")
	}
	if c.Device.Username == "" {
		return fmt.Errorf("DEVICE_USERNAME is required")
	}
	if c.Device.Password == "" {
		return fmt.Errorf("DEVICE_PASSWORD is required")
	}
	if c.Device.RequestTimeout < time.Second {
		return fmt.Errorf("DEVICE_REQUEST_TIMEOUT must be at least 1s")
	}
	if c.Device.RetryDelay < 0 {
		return fmt.Errorf("DEVICE_RETRY_DELAY must not be negative")
	}
	if c.Device.RateLimit <= 0 {
		return fmt.Errorf("DEVICE_RATE_LIMIT must be positive")
	}
	if c.Device.RateBurst < 1 {
		return fmt.Errorf("DEVICE_RATE_BURST must be at least 1")
	}
	return nil
}

func (c *Config) validatePoller() error {
	if c.Poller.PollInterval < time.Second {
		return fmt.Errorf("POLL_INTERVAL must be at least 1s")
	}
	if c.Poller.ControlCooldown < 0 {
		return fmt.Errorf("CONTROL_COOLDOWN must not be negative")
	}
	if c.Poller.RebootGrace < 0 {
		return fmt.Errorf("REBOOT_GRACE must not be negative")
	}
	if c.Poller.GroupTimeout < time.Second {
		return fmt.Errorf("POLL_GROUP_TIMEOUT must be at least 1s")
	}
	if c.Poller.Workers < 1 || c.Poller.Workers > 64 {
		return fmt.Errorf("POLL_WORKERS must be between 1 and 64")
	}
	if c.Poller.DialVerifyAttempts < 1 || c.Poller.DialVerifyAttempts > 20 {
		return fmt.Errorf("DIAL_VERIFY_ATTEMPTS must be between 1 and 20")
	}
	if c.Poller.DialVerifyInterval < 100*time.Millisecond {
		return fmt.Errorf("DIAL_VERIFY_INTERVAL must be at least 100ms")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout < time.Second {
		return fmt.Errorf("HTTP_TIMEOUT must be at least 1s")
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be at least 1")
		}
		if c.Server.RateLimitWindow < time.Second {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s")
		}
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if len(c.Security.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET is required and must be at least 32 characters")
	}
	if c.Security.SessionTimeout < time.Minute {
		return fmt.Errorf("SESSION_TIMEOUT must be at least 1m")
	}

	users := c.Security.AllUsers()
	if len(users) == 0 {
		return fmt.Errorf("at least one API user is required (security.users or ADMIN_USERNAME/ADMIN_PASSWORD_HASH)")
	}
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u.Username == "" {
			return fmt.Errorf("API user with empty username")
		}
		if seen[u.Username] {
			return fmt.Errorf("duplicate API user %q", u.Username)
		}
		seen[u.Username] = true
		// bcrypt hashes: $2a$, $2b$, $2y$
		if !strings.HasPrefix(u.PasswordHash, "$2") {
			return fmt.Errorf("password_hash for user %q is not a bcrypt hash", u.Username)
		}
		switch u.Role {
		case "viewer", "operator":
		default:
			return fmt.Errorf("user %q has unknown role %q (want viewer or operator)", u.Username, u.Role)
		}
	}

	switch c.Security.DefaultRole {
	case "viewer", "operator":
	default:
		return fmt.Errorf("DEFAULT_ROLE must be viewer or operator")
	}
	return nil
}

func (c *Config) validateEvents() error {
	if !c.Events.Enabled {
		return nil
	}
	if c.Events.Embedded {
		if c.Events.Port < 1 || c.Events.Port > 65535 {
			return fmt.Errorf("NATS_PORT must be between 1 and 65535")
		}
		if c.Events.StoreDir == "" {
			return fmt.Errorf("NATS_STORE_DIR is required when NATS_EMBEDDED=true")
		}
	} else if c.Events.URL == "" {
		return fmt.Errorf("NATS_URL is required when NATS_ENABLED=true and NATS_EMBEDDED=false")
	}
	if c.Events.TopicPrefix == "" {
		return fmt.Errorf("NATS_TOPIC_PREFIX must not be empty")
	}
	return nil
}

func (c *Config) validateJournal() error {
	if !c.Journal.Enabled {
		return nil
	}
	if c.Journal.Path == "" {
		return fmt.Errorf("JOURNAL_PATH is required when JOURNAL_ENABLED=true")
	}
	if c.Journal.GCInterval < time.Minute {
		return fmt.Errorf("JOURNAL_GC_INTERVAL must be at least 1m")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "disabled":
	default:
		return fmt.Errorf("LOG_LEVEL %q is not valid (trace, debug, info, warn, error, fatal)", c.Logging.Level)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("LOG_FORMAT %q is not valid (json, console)", c.Logging.Format)
	}
	return nil
}
