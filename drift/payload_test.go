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
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

var testUser = &model.User{
	ID:        42,
	FirstName: "Grace",
	LastName:  "Hopper",
	Email:     "grace@example.com",
	Country:   "US",
}

func TestBuildPayloadAdmin(t *testing.T) {
	admin := *testUser
	admin.SiteAdmin = true
	elig := ResolveEligibility([]model.Role{roleMentor, roleTeacher}, []string{"mentor", "editingteacher"}, true)
	p := BuildPayload(&admin, elig, true, testSite, nil)

	assert.Equal(t, "42-"+testWWWRoot, p.UserID)
	assert.Equal(t, SiteAdminRole, p.Data.RoleID)
	assert.Equal(t, SiteAdminRole, p.Data.RoleName)
	assert.Equal(t, "true", p.Data.IsSiteAdmin)
	assert.Equal(t, "Grace Hopper", p.Data.Name)
	assert.Equal(t, testWWWRoot, p.Data.SiteName)
	assert.Equal(t, "en", p.Data.Language)
}

func TestBuildPayloadLowestRole(t *testing.T) {
	teacher := model.Role{ID: 5, Shortname: "teacher"}
	elig := ResolveEligibility([]model.Role{teacher, roleStudent, roleMentor}, []string{"teacher", "mentor"}, false)
	p := BuildPayload(testUser, elig, false, testSite, nil)
	assert.Equal(t, int64(2), p.Data.RoleID)
	assert.Equal(t, "mentor", p.Data.RoleName)
	assert.Equal(t, "false", p.Data.IsSiteAdmin)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var wire struct {
		UserID string                 `json:"userid"`
		Data   map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(b, &wire))
	assert.Equal(t, "42-"+testWWWRoot, wire.UserID)
	data := wire.Data
	assert.Equal(t, "false", data["issiteadmin"], "issiteadmin must be a string")
	assert.Equal(t, float64(2), data["roleid"])
	assert.NotContains(t, data, "avgactiveusers")
	assert.NotContains(t, data, "purchasedusers")
}

func TestBuildPayloadNoRole(t *testing.T) {
	elig := ResolveEligibility([]model.Role{roleStudent}, []string{"editingteacher"}, false)
	p := BuildPayload(testUser, elig, false, testSite, nil)
	assert.Nil(t, p.Data.RoleID)
	assert.Nil(t, p.Data.RoleName)
}

func TestBuildPayloadUsage(t *testing.T) {
	usage := &Usage{
		Month:      "Sep",
		Active:     120,
		Registered: 300,
		Storage:    map[string]int64{StorageMoodleData: 600, StorageS3: 500},
	}

	tests := []struct {
		name          string
		site          Site
		usage         *Usage
		wantUsers     interface{}
		wantStorage   interface{}
		wantUserOver  bool
		wantStoreOver bool
	}{
		{
			name:        "unlicensed",
			site:        testSite,
			usage:       usage,
			wantUsers:   false,
			wantStorage: false,
		},
		{
			name:          "over both",
			site:          Site{WWWRoot: testWWWRoot, LicensedUsers: 100, LicensedStorage: 1000},
			usage:         usage,
			wantUsers:     int64(100),
			wantStorage:   "0.00 GB",
			wantUserOver:  true,
			wantStoreOver: true,
		},
		{
			name:        "within licence",
			site:        Site{WWWRoot: testWWWRoot, LicensedUsers: 500, LicensedStorage: 5 * 1024 * 1024},
			usage:       usage,
			wantUsers:   int64(500),
			wantStorage: "5.00 GB",
		},
		{
			name:        "missing s3 figure",
			site:        Site{WWWRoot: testWWWRoot, LicensedStorage: 100},
			usage:       &Usage{Active: 1, Registered: 1, Storage: map[string]int64{StorageMoodleData: 600}},
			wantUsers:   false,
			wantStorage: "0.00 GB",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			elig := ResolveEligibility([]model.Role{roleTeacher}, []string{"editingteacher"}, false)
			p := BuildPayload(testUser, elig, false, test.site, test.usage)
			require.NotNil(t, p.Data.AvgActiveUsers)
			require.NotNil(t, p.Data.AvgRegisteredUsers)
			assert.Equal(t, test.usage.Active, *p.Data.AvgActiveUsers)
			assert.Equal(t, test.usage.Registered, *p.Data.AvgRegisteredUsers)
			assert.Equal(t, test.wantUsers, p.Data.PurchasedUsers)
			assert.Equal(t, test.wantStorage, p.Data.PurchasedStorage)
			require.NotNil(t, p.Data.UserOverage)
			require.NotNil(t, p.Data.StorageOverage)
			assert.Equal(t, test.wantUserOver, *p.Data.UserOverage)
			assert.Equal(t, test.wantStoreOver, *p.Data.StorageOverage)
		})
	}
}

func TestLastMonthKey(t *testing.T) {
	tests := []struct {
		t    time.Time
		want string
	}{
		{time.Date(2026, time.October, 18, 12, 0, 0, 0, time.UTC), "Sep"},
		{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), "Dec"},
		{time.Date(2026, time.March, 31, 23, 59, 0, 0, time.UTC), "Feb"},
	}
	for _, test := range tests {
		if got := LastMonthKey(test.t); got != test.want {
			t.Errorf("LastMonthKey(%v) = %s, want %s", test.t, got, test.want)
		}
	}
}
