/*
AUTHORS
  Open LMS (https://www.openlms.net)

LICENSE
  Copyright (C) 2018-2026 Open LMS (https://www.openlms.net)

  This is free software: you can redistribute it and/or modify it
  under the terms of the GNU General Public License as published by
  the Free Software Foundation, either version 3 of the License, or
  (at your option) any later version.

  This is distributed in the hope that it will be useful, but WITHOUT
  ANY WARRANTY; without even the implied warranty of MERCHANTABILITY
  or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU General Public
  License for more details.

  You should have received a copy of the GNU General Public License
  in gpl.txt. If not, see http://www.gnu.org/licenses/.
*/

package kv

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   string
	expires time.Time // Zero for no expiry.
}

// MemoryKV, which implements KV, is a process-local cache. It is used
// when no Redis server is configured and in tests.
type MemoryKV struct {
	data  map[string]entry
	mutex sync.RWMutex
	now   func() time.Time
}

// NewMemoryKV returns a new MemoryKV.
func NewMemoryKV() *MemoryKV {
	return &MemoryKV{data: make(map[string]entry), now: time.Now}
}

// WithClock sets the clock used for expiry and returns the cache.
func (m *MemoryKV) WithClock(now func() time.Time) *MemoryKV {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.now = now
	return m
}

// Get returns the value for key, or ErrMiss.
func (m *MemoryKV) Get(ctx context.Context, key string) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	e, ok := m.data[key]
	if !ok {
		return "", ErrMiss
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		return "", ErrMiss
	}
	return e.value, nil
}

// Set stores a value.
func (m *MemoryKV) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	e := entry{value: value}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	m.data[key] = e
	return nil
}

// Delete removes a key.
func (m *MemoryKV) Delete(ctx context.Context, key string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	delete(m.data, key)
	return nil
}

// Reset clears the cache.
func (m *MemoryKV) Reset() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data = make(map[string]entry)
}
