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
	"fmt"
	"strconv"
	"strings"

	"github.com/ausocean/openfish/datastore"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// Settings holds the administrator configured plugin settings.
type Settings struct {
	ClientKey    string   // Drift client key. Empty disables Drift.
	Roles        []string // Allow-list of role shortnames.
	UsageMetrics bool     // Send usage and licensing figures with the profile.
}

// Site holds deployment values that are not editable at runtime.
type Site struct {
	WWWRoot         string // Deployment identifier, e.g., https://lms.example.com.
	Lang            string // Default language for users without one.
	LicensedUsers   int64  // Purchased user seats, or 0 when not licensed.
	LicensedStorage int64  // Purchased storage in kilobytes, or 0 when not licensed.
}

// LoadSettings reads the plugin settings. Missing settings take their
// zero values.
func LoadSettings(ctx context.Context, store datastore.Store) (Settings, error) {
	var s Settings
	settings, err := model.GetSettings(ctx, store, model.Plugin)
	if err != nil {
		return s, fmt.Errorf("could not get settings: %w", err)
	}
	for _, setting := range settings {
		switch setting.Name {
		case model.SettingClientKey:
			s.ClientKey = setting.Value
		case model.SettingRoles:
			s.Roles = ParseAllowList(setting.Value)
		case model.SettingUsageMetrics:
			s.UsageMetrics = setting.Bool()
		}
	}
	return s, nil
}

// SaveSettings writes the plugin settings.
func SaveSettings(ctx context.Context, store datastore.Store, s Settings) error {
	for name, value := range map[string]string{
		model.SettingClientKey:    s.ClientKey,
		model.SettingRoles:        JoinAllowList(s.Roles),
		model.SettingUsageMetrics: strconv.FormatBool(s.UsageMetrics),
	} {
		err := model.PutSetting(ctx, store, model.Plugin, name, value)
		if err != nil {
			return fmt.Errorf("could not save setting %s: %w", name, err)
		}
	}
	return nil
}

// MaskKey masks all but the last four characters of a client key.
// Short keys are masked completely.
func MaskKey(key string) string {
	const visible = 4
	if len(key) <= visible {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", len(key)-visible) + key[len(key)-visible:]
}

// RoleSource returns the roles held by a user in any context.
type RoleSource interface {
	UserRoles(ctx context.Context, uid int64) ([]model.Role, error)
}

// StoreRoles is a RoleSource backed by the datastore.
type StoreRoles struct {
	Store datastore.Store
}

// UserRoles implements RoleSource.
func (s StoreRoles) UserRoles(ctx context.Context, uid int64) ([]model.Role, error) {
	return model.GetUserRoles(ctx, s.Store, uid)
}
