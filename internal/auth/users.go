// Poly VideoOS Agent - Resilient Monitoring and Control for Poly Video Devices
// Copyright 2026 AVI-SPL, Inc.
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos

package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/AVISPL/dal-codecs-singlecodecs-polycom-videoos/internal/config"
)

// ErrInvalidCredentials is returned for any authentication failure. Unknown
// user and wrong password are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid username or password")

type userEntry struct {
	passwordHash []byte
	role         string
}

// UserStore verifies API credentials against the configured principals:
// the YAML user list plus the environment-bootstrapped admin account.
type UserStore struct {
	users map[string]userEntry

	// dummyHash absorbs a bcrypt comparison for unknown usernames so a
	// missing account costs the same as a wrong password.
	dummyHash []byte
}

// NewUserStore indexes the configured users. Entries without a role fall
// back to cfg.DefaultRole, then to viewer.
func NewUserStore(cfg *config.SecurityConfig) *UserStore {
	dummy, err := bcrypt.GenerateFromPassword([]byte("timing-equalizer"), bcrypt.DefaultCost)
	if err != nil {
		// GenerateFromPassword only fails on an out-of-range cost.
		panic(err)
	}

	store := &UserStore{
		users:     make(map[string]userEntry),
		dummyHash: dummy,
	}
	for _, u := range cfg.AllUsers() {
		if u.Username == "" || u.PasswordHash == "" {
			continue
		}
		role := u.Role
		if role == "" {
			role = cfg.DefaultRole
		}
		if role == "" {
			role = RoleViewer
		}
		store.users[u.Username] = userEntry{
			passwordHash: []byte(u.PasswordHash),
			role:         role,
		}
	}
	return store
}

// Authenticate verifies a username/password pair and returns the user's
// role. bcrypt comparison keeps password checks constant-time.
func (s *UserStore) Authenticate(username, password string) (string, error) {
	entry, ok := s.users[username]
	if !ok {
		bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(entry.passwordHash, []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return entry.role, nil
}

// Len reports how many principals are configured.
func (s *UserStore) Len() int {
	return len(s.users)
}
