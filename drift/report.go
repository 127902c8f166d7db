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
	"time"

	"github.com/ausocean/openfish/datastore"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// StoreReporter is a Reporter backed by the user records in the
// datastore. It is used when the host database is not reachable and
// reports no storage figures.
type StoreReporter struct {
	Store datastore.Store
	Now   func() time.Time
}

// LastMonthActiveAndRegistered implements Reporter by counting users
// that accessed the site during the previous calendar month.
func (r StoreReporter) LastMonthActiveAndRegistered(ctx context.Context) (int64, int64, error) {
	now := time.Now()
	if r.Now != nil {
		now = r.Now()
	}
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return model.CountUsers(ctx, r.Store, to.AddDate(0, -1, 0), to)
}

// Storage implements Reporter. The datastore holds no file storage figures.
func (r StoreReporter) Storage(ctx context.Context) (map[string]int64, error) {
	return map[string]int64{}, nil
}
