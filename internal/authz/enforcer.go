// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

// Package authz decides what an authenticated caller may do. It wraps a
// Casbin RBAC enforcer whose model and policy ship embedded in the
// binary: viewers read, operators write, and operators inherit the
// viewer surface. A policy file on disk can override the embedded rules
// and is reloaded while the agent runs.
//
// Identity is internal/auth's concern; this package only answers
// whether a role may perform an action on a path.
package authz

import (
	_ "embed"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Config holds enforcer settings. The zero value uses the embedded
// model and policy with auto-reload disabled.
type Config struct {
	// ModelPath overrides the embedded Casbin model.
	ModelPath string

	// PolicyPath overrides the embedded policy CSV. Required for
	// auto-reload; the embedded policy is immutable.
	PolicyPath string

	// AutoReload re-reads PolicyPath on a timer so policy edits take
	// effect without a restart.
	AutoReload     bool
	ReloadInterval time.Duration
}

// DefaultConfig returns the enforcer defaults.
func DefaultConfig() *Config {
	return &Config{
		AutoReload:     true,
		ReloadInterval: 30 * time.Second,
	}
}

// Enforcer answers role/path/action authorization questions.
type Enforcer struct {
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an enforcer from cfg. Missing override files fall
// back to the embedded model and policy rather than failing startup.
func NewEnforcer(cfg *Config) (*Enforcer, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	var m model.Model
	var err error
	if cfg.ModelPath != "" && fileExists(cfg.ModelPath) {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load authorization model: %w", err)
	}

	var enforcer *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" && fileExists(cfg.PolicyPath) {
		adapter := fileadapter.NewAdapter(cfg.PolicyPath)
		enforcer, err = casbin.NewSyncedEnforcer(m, adapter)
	} else {
		enforcer, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadEmbeddedPolicy(enforcer, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create authorization enforcer: %w", err)
	}

	if cfg.AutoReload && cfg.PolicyPath != "" {
		interval := cfg.ReloadInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		enforcer.StartAutoLoadPolicy(interval)
	}

	return &Enforcer{enforcer: enforcer}, nil
}

// loadEmbeddedPolicy parses the embedded policy CSV into the enforcer.
// The embedded policy has no adapter, so rows are added one by one.
func loadEmbeddedPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.Split(line, ",")
		if len(parts) < 2 {
			continue
		}
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		rule := parts[1:]
		switch parts[0] {
		case "p":
			if len(rule) >= 3 {
				if _, err := enforcer.AddPolicy(rule[0], rule[1], rule[2]); err != nil {
					return fmt.Errorf("add policy %v: %w", rule, err)
				}
			}
		case "g":
			if len(rule) >= 2 {
				if _, err := enforcer.AddGroupingPolicy(rule[0], rule[1]); err != nil {
					return fmt.Errorf("add role inheritance %v: %w", rule, err)
				}
			}
		}
	}
	return nil
}

// Enforce reports whether role may perform action on the request path.
func (e *Enforcer) Enforce(role, path, action string) (bool, error) {
	allowed, err := e.enforcer.Enforce(role, path, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", role, action, path, err)
	}
	return allowed, nil
}

// Close stops the policy reload timer, if one is running.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
}

// ActionForMethod maps an HTTP method onto the policy's action
// vocabulary. Safe methods are reads, mutating methods are writes.
func ActionForMethod(method string) string {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return "read"
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return "write"
	case http.MethodDelete:
		return "delete"
	default:
		return "read"
	}
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
