// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package session tracks the client sessions of the HTTP transports and
// expires idle ones.
package session

import (
	"sync"
	"time"
)

// DefaultSessionTTL is the default time-to-live for idle sessions (2 hours)
const DefaultSessionTTL = 2 * time.Hour

// Session is a client session held by a Manager.
type Session interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Touch()
	// Close releases the session. It is called once, when the session is
	// deleted or expires.
	Close()
}

// Base implements the bookkeeping part of Session. Transports embed a
// *Base in their own session types.
type Base struct {
	id      string
	created time.Time
	updated time.Time
	mu      sync.RWMutex
}

// NewBase creates a Base with the given ID.
func NewBase(id string) *Base {
	now := time.Now()
	return &Base{id: id, created: now, updated: now}
}

// ID returns the session ID.
func (b *Base) ID() string { return b.id }

// CreatedAt returns the creation time of the session.
func (b *Base) CreatedAt() time.Time { return b.created }

// UpdatedAt returns the last updated time of the session.
func (b *Base) UpdatedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.updated
}

// Touch updates the session's last updated time to the current time.
func (b *Base) Touch() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updated = time.Now()
}
