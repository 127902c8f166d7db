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

package drift

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/open-lms-open-source/moodle-local-drift/kv"
)

// Usage cache keys. Each holds a JSON object keyed by month, e.g., {"Sep":12}.
const (
	KeyLastMonthUsers      = "lastmonthusers"
	KeyLastMonthRegistered = "lastmonthregistered"
)

// Storage figure names reported by Reporter.Storage.
const (
	StorageMoodleData = "mdata_filedir_storage"
	StorageS3         = "s3_filedir_storage"
)

// Reporter supplies usage and licensing figures for the site.
type Reporter interface {
	// LastMonthActiveAndRegistered returns the average active and
	// registered user counts for the previous calendar month.
	LastMonthActiveAndRegistered(ctx context.Context) (active, registered int64, err error)

	// Storage returns file storage figures in kilobytes by name.
	Storage(ctx context.Context) (map[string]int64, error)
}

// Usage holds the figures sent with a profile.
type Usage struct {
	Month      string           // Three letter abbreviation of the month the counts are for.
	Active     int64            // Average active users.
	Registered int64            // Average registered users.
	Storage    map[string]int64 // Storage figures in kilobytes.
}

// LastMonthKey returns the three letter abbreviation of the calendar
// month before the one containing t.
func LastMonthKey(t time.Time) string {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, -1, 0).Format("Jan")
}

// untilNextMonth returns the time from t until the start of the next month.
func untilNextMonth(t time.Time) time.Duration {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return first.AddDate(0, 1, 0).Sub(t)
}

// UsageCache caches last month's user counts. Counts are cached in a
// shared KV when one is configured, otherwise in the caller's session.
// Storage figures are always read from the reporter.
type UsageCache struct {
	Reporter Reporter
	Shared   kv.KV // Optional.
	Now      func() time.Time

	group singleflight.Group
}

// NewUsageCache returns a UsageCache. shared may be nil.
func NewUsageCache(r Reporter, shared kv.KV) *UsageCache {
	return &UsageCache{Reporter: r, Shared: shared, Now: time.Now}
}

func (u *UsageCache) now() time.Time {
	if u.Now == nil {
		return time.Now()
	}
	return u.Now()
}

// LastMonth returns last month's usage. local caches the counts when no
// shared KV is configured. Counts that are absent, zero or for another
// month are recomputed by the reporter and cached until the end of the
// current month.
func (u *UsageCache) LastMonth(ctx context.Context, local kv.KV) (*Usage, error) {
	now := u.now()
	month := LastMonthKey(now)
	cache := u.Shared
	if cache == nil {
		cache = local
	}

	active, okA := monthValue(ctx, cache, KeyLastMonthUsers, month)
	registered, okR := monthValue(ctx, cache, KeyLastMonthRegistered, month)
	if !okA || !okR {
		var counts [2]int64
		var err error
		if u.Shared != nil {
			// Collapse concurrent misses from all sessions.
			var v interface{}
			v, err, _ = u.group.Do(month, func() (interface{}, error) {
				return u.Refresh(ctx, cache, now)
			})
			if err == nil {
				counts = v.([2]int64)
			}
		} else {
			counts, err = u.Refresh(ctx, cache, now)
		}
		if err != nil {
			return nil, err
		}
		active, registered = counts[0], counts[1]
	}

	storage, err := u.Reporter.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not get storage figures: %w", err)
	}
	return &Usage{Month: month, Active: active, Registered: registered, Storage: storage}, nil
}

// Refresh computes last month's counts relative to now and stores them
// in cache. It returns the active and registered counts.
func (u *UsageCache) Refresh(ctx context.Context, cache kv.KV, now time.Time) ([2]int64, error) {
	month := LastMonthKey(now)
	active, registered, err := u.Reporter.LastMonthActiveAndRegistered(ctx)
	if err != nil {
		return [2]int64{}, fmt.Errorf("could not get user counts: %w", err)
	}
	ttl := untilNextMonth(now)
	for key, n := range map[string]int64{KeyLastMonthUsers: active, KeyLastMonthRegistered: registered} {
		b, _ := json.Marshal(map[string]int64{month: n})
		err := cache.Set(ctx, key, string(b), ttl)
		if err != nil {
			return [2]int64{}, fmt.Errorf("could not cache %s: %w", key, err)
		}
	}
	return [2]int64{active, registered}, nil
}

// monthValue returns the non-zero count cached under key for month.
func monthValue(ctx context.Context, cache kv.KV, key, month string) (int64, bool) {
	s, err := cache.Get(ctx, key)
	if err != nil {
		return 0, false
	}
	var m map[string]int64
	if json.Unmarshal([]byte(s), &m) != nil {
		return 0, false
	}
	n := m[month]
	return n, n != 0
}
