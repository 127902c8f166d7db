/*
DESCRIPTION
  Plugin setting type and functions. Settings are string values owned
  by a plugin and identified by plugin and name, e.g.,
  local_drift.clientkey.

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
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ausocean/openfish/datastore"
)

const typeSetting = "Setting" // Setting datastore type.

// Plugin is the owner of all Drift settings.
const Plugin = "local_drift"

// Drift setting names.
const (
	SettingClientKey    = "clientkey"
	SettingRoles        = "roles"
	SettingUsageMetrics = "usagemetrics"
)

// Setting represents a configuration value owned by a plugin.
type Setting struct {
	Plugin  string    // Owning plugin.
	Name    string    // Setting name, unique within the plugin.
	Value   string    `datastore:",noindex"` // Setting value.
	Updated time.Time // Date/time last updated.
}

// Encode serializes a Setting into tab-separated values.
func (s *Setting) Encode() []byte {
	return []byte(fmt.Sprintf("%s\t%s\t%s\t%d", s.Plugin, s.Name, s.Value, s.Updated.Unix()))
}

// Decode deserializes a Setting from tab-separated values.
func (s *Setting) Decode(b []byte) error {
	p := strings.Split(string(b), "\t")
	if len(p) != 4 {
		return datastore.ErrDecoding
	}
	s.Plugin = p[0]
	s.Name = p[1]
	s.Value = p[2]
	ts, err := strconv.ParseInt(p[3], 10, 64)
	if err != nil {
		return datastore.ErrDecoding
	}
	s.Updated = time.Unix(ts, 0)
	return nil
}

// Copy is not currently implemented.
func (s *Setting) Copy(datastore.Entity) (datastore.Entity, error) {
	return nil, datastore.ErrUnimplemented
}

// GetCache returns nil, indicating no caching. Settings can be changed
// at any time by another instance.
func (s *Setting) GetCache() datastore.Cache {
	return nil
}

// Bool interprets the setting value as a boolean. Empty and
// unparsable values are false.
func (s *Setting) Bool() bool {
	b, _ := strconv.ParseBool(s.Value)
	return b
}

func settingKey(store datastore.Store, plugin, name string) *datastore.Key {
	return store.NameKey(typeSetting, plugin+"."+name)
}

// PutSetting creates or updates a setting. Tabs are not permitted in
// values and are replaced with spaces.
func PutSetting(ctx context.Context, store datastore.Store, plugin, name, value string) error {
	s := &Setting{
		Plugin:  plugin,
		Name:    name,
		Value:   strings.ReplaceAll(value, "\t", " "),
		Updated: time.Now(),
	}
	_, err := store.Put(ctx, settingKey(store, plugin, name), s)
	return err
}

// UpdateSetting atomically replaces the value of a setting with the
// result of updateFunc applied to the current value. A missing setting
// is created with an empty value first.
func UpdateSetting(ctx context.Context, store datastore.Store, plugin, name string, updateFunc func(current string) string) error {
	key := settingKey(store, plugin, name)
	var setting Setting

update:
	err := store.Update(ctx, key, func(e datastore.Entity) {
		if s, ok := e.(*Setting); ok {
			s.Value = strings.ReplaceAll(updateFunc(s.Value), "\t", " ")
			s.Updated = time.Now()
		}
	}, &setting)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		setting = Setting{Plugin: plugin, Name: name, Updated: time.Now()}
		err := store.Create(ctx, key, &setting)
		if err != nil && !errors.Is(err, datastore.ErrEntityExists) {
			return fmt.Errorf("failed to create setting: %w", err)
		}
		goto update
	}
	if err != nil {
		return fmt.Errorf("failed to update setting: %w", err)
	}
	return nil
}

// GetSetting gets a setting.
func GetSetting(ctx context.Context, store datastore.Store, plugin, name string) (*Setting, error) {
	s := new(Setting)
	return s, store.Get(ctx, settingKey(store, plugin, name), s)
}

// GetSettingValue returns the value of a setting, or the empty string
// if the setting does not exist.
func GetSettingValue(ctx context.Context, store datastore.Store, plugin, name string) (string, error) {
	s, err := GetSetting(ctx, store, plugin, name)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("could not get setting %s.%s: %w", plugin, name, err)
	}
	return s.Value, nil
}

// GetSettings returns all settings of a plugin, ordered by name.
func GetSettings(ctx context.Context, store datastore.Store, plugin string) ([]Setting, error) {
	q := store.NewQuery(typeSetting, false, "Plugin", "Name")
	q.Filter("Plugin =", plugin)
	var settings []Setting
	_, err := store.GetAll(ctx, q, &settings)
	if err != nil {
		return nil, err
	}
	sort.Slice(settings, func(i, j int) bool { return settings[i].Name < settings[j].Name })
	return settings, nil
}

// DeleteSetting deletes a setting.
func DeleteSetting(ctx context.Context, store datastore.Store, plugin, name string) error {
	return store.DeleteMulti(ctx, []*datastore.Key{settingKey(store, plugin, name)})
}
