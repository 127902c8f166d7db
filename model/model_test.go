/*
DESCRIPTION
  model tests.

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

package model

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUID       = 101
	testUID2      = 102
	testAdminUID  = 2
	testSettingEn = "local_drift\tclientkey\tabc123\t1572157457"
)

// newTestStore returns a file store rooted in a temporary directory.
func newTestStore(t *testing.T) datastore.Store {
	t.Helper()
	RegisterEntities()
	store, err := datastore.NewStore(context.Background(), "file", "drift", t.TempDir())
	require.NoError(t, err, "could not create file store")
	return store
}

func TestEncoding(t *testing.T) {
	var s Setting
	err := s.Decode([]byte(testSettingEn))
	if err != nil {
		t.Fatalf("Setting.Decode failed with error: %v", err)
	}
	if s.Plugin != Plugin || s.Name != SettingClientKey || s.Value != "abc123" {
		t.Errorf("Setting.Decode returned unexpected setting: %+v", s)
	}
	if string(s.Encode()) != testSettingEn {
		t.Errorf("Setting.Encode failed: expected %q, got %q", testSettingEn, string(s.Encode()))
	}
	err = s.Decode([]byte("local_drift\tclientkey"))
	if !errors.Is(err, datastore.ErrDecoding) {
		t.Errorf("Setting.Decode of short input: expected ErrDecoding, got %v", err)
	}

	for _, test := range []struct {
		value string
		want  bool
	}{
		{"", false},
		{"0", false},
		{"1", true},
		{"true", true},
		{"maybe", false},
	} {
		s := Setting{Value: test.value}
		if s.Bool() != test.want {
			t.Errorf("Setting{Value: %q}.Bool() = %t, want %t", test.value, s.Bool(), test.want)
		}
	}

	user := &User{ID: testUID, FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"}
	var user2 User
	err = user2.Decode(user.Encode())
	require.NoError(t, err)
	assert.Equal(t, *user, user2)
	assert.Equal(t, "Ada Lovelace", user2.FullName())

	cp, err := user.Copy(nil)
	require.NoError(t, err)
	assert.Equal(t, user, cp)
	_, err = user.Copy(&Role{})
	assert.ErrorIs(t, err, datastore.ErrWrongType)
}

func TestSubscription(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	// A user that never chose is not subscribed.
	subscribed, err := IsSubscribed(ctx, store, testUID)
	require.NoError(t, err)
	assert.False(t, subscribed)
	_, err = GetSubscription(ctx, store, testUID)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)

	// Setting twice is the same as setting once.
	for i := 0; i < 2; i++ {
		err = SetSubscription(ctx, store, testUID, true)
		require.NoError(t, err, "SetSubscription attempt %d", i)
	}
	subscribed, err = IsSubscribed(ctx, store, testUID)
	require.NoError(t, err)
	assert.True(t, subscribed)

	err = SetSubscription(ctx, store, testUID, false)
	require.NoError(t, err)
	subscribed, err = IsSubscribed(ctx, store, testUID)
	require.NoError(t, err)
	assert.False(t, subscribed)

	// An explicit opt-out survives privileged defaults.
	created, err := EnsurePrivilegedDefault(ctx, store, testUID, true)
	require.NoError(t, err)
	assert.False(t, created)
	subscribed, err = IsSubscribed(ctx, store, testUID)
	require.NoError(t, err)
	assert.False(t, subscribed, "existing opt-out was overwritten")

	// Non-privileged users never get a default row.
	created, err = EnsurePrivilegedDefault(ctx, store, testUID2, false)
	require.NoError(t, err)
	assert.False(t, created)
	_, err = GetSubscription(ctx, store, testUID2)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)

	// The first sighting of an admin subscribes them, once.
	created, err = EnsurePrivilegedDefault(ctx, store, testAdminUID, true)
	require.NoError(t, err)
	assert.True(t, created)
	created, err = EnsurePrivilegedDefault(ctx, store, testAdminUID, true)
	require.NoError(t, err)
	assert.False(t, created)
	s, err := GetSubscription(ctx, store, testAdminUID)
	require.NoError(t, err)
	assert.Equal(t, int64(testAdminUID), s.UserID)
	assert.True(t, s.Subscribed)

	subs, err := GetSubscriptions(ctx, store)
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(testAdminUID), subs[0].UserID)
	assert.Equal(t, int64(testUID), subs[1].UserID)

	// Deleting one user leaves the other intact, and absent rows are skipped.
	err = DeleteSubscriptions(ctx, store, []int64{testUID, testUID2})
	require.NoError(t, err)
	_, err = GetSubscription(ctx, store, testUID)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
	subscribed, err = IsSubscribed(ctx, store, testAdminUID)
	require.NoError(t, err)
	assert.True(t, subscribed)

	err = DeleteSubscription(ctx, store, testUID)
	assert.NoError(t, err, "deleting an absent row should not fail")
}

func TestSetting(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	v, err := GetSettingValue(ctx, store, Plugin, SettingClientKey)
	require.NoError(t, err)
	assert.Equal(t, "", v)

	err = PutSetting(ctx, store, Plugin, SettingClientKey, "key\twith tab")
	require.NoError(t, err)
	v, err = GetSettingValue(ctx, store, Plugin, SettingClientKey)
	require.NoError(t, err)
	assert.Equal(t, "key with tab", v)

	err = UpdateSetting(ctx, store, Plugin, SettingRoles, func(cur string) string {
		if cur == "" {
			return "editingteacher"
		}
		return cur + ",manager"
	})
	require.NoError(t, err)
	err = UpdateSetting(ctx, store, Plugin, SettingRoles, func(cur string) string { return cur + ",manager" })
	require.NoError(t, err)
	v, err = GetSettingValue(ctx, store, Plugin, SettingRoles)
	require.NoError(t, err)
	assert.Equal(t, "editingteacher,manager", v)

	settings, err := GetSettings(ctx, store, Plugin)
	require.NoError(t, err)
	var names []string
	for _, s := range settings {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{SettingClientKey, SettingRoles}, names)

	err = DeleteSetting(ctx, store, Plugin, SettingClientKey)
	require.NoError(t, err)
	_, err = GetSetting(ctx, store, Plugin, SettingClientKey)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
}

func TestUpgrade(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		installed int64
		roles     string
		wantRoles string
	}{
		{name: "fresh install", installed: 0, roles: "3,4", wantRoles: ""},
		{name: "before roles reset", installed: 2018052904, roles: "3,4", wantRoles: ""},
		{name: "up to date", installed: 2019020500, roles: "manager", wantRoles: "manager"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			store := newTestStore(t)
			require.NoError(t, PutSetting(ctx, store, Plugin, SettingRoles, test.roles))

			got, err := Upgrade(ctx, store, test.installed)
			require.NoError(t, err)
			assert.Equal(t, LatestVersion, got)

			roles, err := GetSettingValue(ctx, store, Plugin, SettingRoles)
			require.NoError(t, err)
			assert.Equal(t, test.wantRoles, roles)

			if test.installed < LatestVersion {
				v, err := InstalledVersion(ctx, store)
				require.NoError(t, err)
				assert.Equal(t, LatestVersion, v)
			}
		})
	}
}

func TestUserRoles(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	for _, r := range []Role{
		{ID: 5, Shortname: "student"},
		{ID: 3, Shortname: "editingteacher"},
		{ID: 1, Shortname: "manager"},
	} {
		r := r
		require.NoError(t, PutRole(ctx, store, &r))
	}
	for _, ra := range []RoleAssignment{
		{UserID: testUID, RoleID: 5, ContextID: 10},
		{UserID: testUID, RoleID: 3, ContextID: 10},
		{UserID: testUID, RoleID: 3, ContextID: 11},
		{UserID: testUID, RoleID: 99, ContextID: 10}, // Role since removed.
		{UserID: testUID2, RoleID: 1, ContextID: 1},
	} {
		ra := ra
		require.NoError(t, PutRoleAssignment(ctx, store, &ra))
	}

	roles, err := GetUserRoles(ctx, store, testUID)
	require.NoError(t, err)
	assert.Equal(t, []Role{{ID: 3, Shortname: "editingteacher"}, {ID: 5, Shortname: "student"}}, roles)

	roles, err = GetUserRoles(ctx, store, testUID2)
	require.NoError(t, err)
	assert.Equal(t, []Role{{ID: 1, Shortname: "manager"}}, roles)

	all, err := GetRoles(ctx, store)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(1), all[0].ID)
}

func TestCountUsers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	from := time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)
	for _, u := range []User{
		{ID: 1, Guest: true, LastAccess: from.Add(time.Hour)},
		{ID: 2, SiteAdmin: true, LastAccess: from.Add(time.Hour)},
		{ID: 3, LastAccess: to},
		{ID: 4, LastAccess: from.Add(-time.Second)},
		{ID: 5, Deleted: true, LastAccess: from.Add(time.Hour)},
		{ID: 6, LastAccess: from},
	} {
		u := u
		require.NoError(t, PutUser(ctx, store, &u))
	}

	active, registered, err := CountUsers(ctx, store, from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), active)
	assert.Equal(t, int64(4), registered)

	got, err := GetUser(ctx, store, 2)
	require.NoError(t, err)
	assert.True(t, got.SiteAdmin)

	require.NoError(t, DeleteUser(ctx, store, 2))
	_, err = GetUser(ctx, store, 2)
	assert.ErrorIs(t, err, datastore.ErrNoSuchEntity)
}
