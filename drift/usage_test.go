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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-lms-open-source/moodle-local-drift/kv"
	"github.com/open-lms-open-source/moodle-local-drift/model"
)

func TestUsageCache(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	reporter := &fakeReporter{active: 12, registered: 40, storage: map[string]int64{StorageS3: 7}}
	u := NewUsageCache(reporter, nil)
	u.Now = func() time.Time { return now }
	local := kv.NewMemoryKV()

	usage, err := u.LastMonth(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, &Usage{Month: "Sep", Active: 12, Registered: 40, Storage: map[string]int64{StorageS3: 7}}, usage)
	assert.Equal(t, 1, reporter.calls)

	v, err := local.Get(ctx, KeyLastMonthUsers)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Sep":12}`, v)
	v, err = local.Get(ctx, KeyLastMonthRegistered)
	require.NoError(t, err)
	assert.JSONEq(t, `{"Sep":40}`, v)

	// Cached.
	reporter.active = 99
	usage, err = u.LastMonth(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, int64(12), usage.Active)
	assert.Equal(t, 1, reporter.calls)

	// A figure for another month is a miss.
	now = time.Date(2026, time.November, 2, 0, 0, 0, 0, time.UTC)
	usage, err = u.LastMonth(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, "Oct", usage.Month)
	assert.Equal(t, int64(99), usage.Active)
	assert.Equal(t, 2, reporter.calls)

	// A zero figure is a miss.
	require.NoError(t, local.Set(ctx, KeyLastMonthUsers, `{"Oct":0}`, 0))
	_, err = u.LastMonth(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, 3, reporter.calls)
}

func TestUsageCacheShared(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC)
	reporter := &fakeReporter{active: 5, registered: 6}
	shared := kv.NewMemoryKV().WithClock(func() time.Time { return now })
	u := NewUsageCache(reporter, shared)
	u.Now = func() time.Time { return now }

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			usage, err := u.LastMonth(ctx, kv.NewMemoryKV())
			assert.NoError(t, err)
			if usage != nil {
				assert.Equal(t, int64(5), usage.Active)
			}
		}()
	}
	wg.Wait()

	// Later sessions hit the shared cache.
	_, err := u.LastMonth(ctx, kv.NewMemoryKV())
	require.NoError(t, err)
	calls := reporter.calls
	assert.GreaterOrEqual(t, calls, 1)
	assert.LessOrEqual(t, calls, 8)
	_, err = u.LastMonth(ctx, kv.NewMemoryKV())
	require.NoError(t, err)
	assert.Equal(t, calls, reporter.calls)

	// Figures expire at the end of the month.
	now = time.Date(2026, time.November, 1, 0, 0, 0, 0, time.UTC)
	_, err = shared.Get(ctx, KeyLastMonthUsers)
	assert.ErrorIs(t, err, kv.ErrMiss)
}

func TestStoreReporter(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	sep := time.Date(2026, time.September, 10, 0, 0, 0, 0, time.UTC)
	for _, u := range []model.User{
		{ID: 1, Guest: true, LastAccess: sep},
		{ID: 2, LastAccess: sep},
		{ID: 3, LastAccess: sep.AddDate(0, 1, 0)},
	} {
		u := u
		require.NoError(t, model.PutUser(ctx, store, &u))
	}

	var r Reporter = StoreReporter{Store: store, Now: func() time.Time { return time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC) }}
	active, registered, err := r.LastMonthActiveAndRegistered(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), active)
	assert.Equal(t, int64(2), registered)

	storage, err := r.Storage(ctx)
	require.NoError(t, err)
	assert.Empty(t, storage)
}
