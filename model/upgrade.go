/*
DESCRIPTION
  Data model upgrade steps. Each step is a savepoint that is applied at
  most once, in order, and then recorded as the installed version.

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
	"fmt"
	"strconv"

	"github.com/ausocean/openfish/datastore"
)

// settingVersion holds the installed data model version.
const settingVersion = "version"

// savepoint is a single upgrade step.
type savepoint struct {
	version int64
	apply   func(ctx context.Context, store datastore.Store) error
}

var savepoints = []savepoint{
	// Subscriptions are keyed by user ID, so the kind needs no setup
	// beyond registration.
	{version: 2018052904},
	// The roles setting changed from IDs to shortnames and must be emptied.
	{version: 2019020500, apply: func(ctx context.Context, store datastore.Store) error {
		return PutSetting(ctx, store, Plugin, SettingRoles, "")
	}},
}

// LatestVersion is the version after all savepoints are applied.
var LatestVersion = savepoints[len(savepoints)-1].version

// InstalledVersion returns the recorded data model version, or 0 for a
// fresh installation.
func InstalledVersion(ctx context.Context, store datastore.Store) (int64, error) {
	v, err := GetSettingValue(ctx, store, Plugin, settingVersion)
	if err != nil {
		return 0, err
	}
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid installed version %q: %w", v, err)
	}
	return n, nil
}

// Upgrade applies every savepoint newer than oldVersion and records
// each one as it completes. It returns the resulting version.
func Upgrade(ctx context.Context, store datastore.Store, oldVersion int64) (int64, error) {
	version := oldVersion
	for _, sp := range savepoints {
		if sp.version <= oldVersion {
			continue
		}
		if sp.apply != nil {
			err := sp.apply(ctx, store)
			if err != nil {
				return version, fmt.Errorf("savepoint %d failed: %w", sp.version, err)
			}
		}
		err := PutSetting(ctx, store, Plugin, settingVersion, strconv.FormatInt(sp.version, 10))
		if err != nil {
			return version, fmt.Errorf("could not record savepoint %d: %w", sp.version, err)
		}
		version = sp.version
	}
	return version, nil
}
