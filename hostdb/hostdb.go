/*
DESCRIPTION
  Package hostdb reads role, context and usage data directly from the
  host LMS PostgreSQL database.

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

package hostdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/model"
	"github.com/open-lms-open-source/moodle-local-drift/privacy"
)

// DefaultPrefix is the default host table prefix.
const DefaultPrefix = "mdl_"

// guestUsername is the username of the host's guest account.
const guestUsername = "guest"

// DB is a read-only view of the host database.
type DB struct {
	db     *sql.DB
	prefix string
	now    func() time.Time
}

// Open connects to the host database described by dsn and checks the
// connection.
func Open(ctx context.Context, dsn, prefix string) (*DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "could not open host database")
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)
	err = db.PingContext(ctx)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "could not ping host database")
	}
	return New(db, prefix), nil
}

// New returns a DB using an open connection pool.
func New(db *sql.DB, prefix string) *DB {
	return &DB{db: db, prefix: prefix, now: time.Now}
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) table(name string) string {
	return d.prefix + name
}

// UserRoles implements drift.RoleSource. It returns the distinct roles
// assigned to the user in any context, ordered by role ID.
func (d *DB) UserRoles(ctx context.Context, uid int64) ([]model.Role, error) {
	q := fmt.Sprintf(`SELECT DISTINCT r.id, r.shortname, r.name
FROM %s r
JOIN %s ra ON r.id = ra.roleid
WHERE ra.userid = $1
ORDER BY r.id`, d.table("role"), d.table("role_assignments"))

	rows, err := d.db.QueryContext(ctx, q, uid)
	if err != nil {
		return nil, errors.Wrapf(err, "could not query roles for user %d", uid)
	}
	defer rows.Close()

	var roles []model.Role
	for rows.Next() {
		var r model.Role
		var name sql.NullString
		err := rows.Scan(&r.ID, &r.Shortname, &name)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan role")
		}
		r.Name = name.String
		roles = append(roles, r)
	}
	return roles, errors.Wrap(rows.Err(), "could not read roles")
}

// UserContext implements privacy.ContextSource.
func (d *DB) UserContext(ctx context.Context, uid int64) (privacy.Context, error) {
	q := fmt.Sprintf(`SELECT id FROM %s WHERE contextlevel = $1 AND instanceid = $2`, d.table("context"))
	c := privacy.Context{Level: privacy.LevelUser, InstanceID: uid}
	err := d.db.QueryRowContext(ctx, q, privacy.LevelUser, uid).Scan(&c.ID)
	if err != nil {
		return c, errors.Wrapf(err, "could not get context for user %d", uid)
	}
	return c, nil
}

// LastMonthActiveAndRegistered implements drift.Reporter. Active users
// accessed the site during the previous calendar month. Registered users
// existed at the end of it. The guest account and deleted users are not
// counted.
func (d *DB) LastMonthActiveAndRegistered(ctx context.Context) (int64, int64, error) {
	now := d.now()
	to := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	from := to.AddDate(0, -1, 0)

	q := fmt.Sprintf(`SELECT
  COUNT(CASE WHEN lastaccess >= $1 AND lastaccess < $2 THEN 1 END),
  COUNT(*)
FROM %s
WHERE deleted = 0 AND username <> $3 AND timecreated < $2`, d.table("user"))

	var active, registered int64
	err := d.db.QueryRowContext(ctx, q, from.Unix(), to.Unix(), guestUsername).Scan(&active, &registered)
	if err != nil {
		return 0, 0, errors.Wrap(err, "could not count users")
	}
	return active, registered, nil
}

// Storage implements drift.Reporter. Figures are read from the hosting
// tool's storage table and are in kilobytes.
func (d *DB) Storage(ctx context.Context) (map[string]int64, error) {
	q := fmt.Sprintf(`SELECT name, value FROM %s WHERE name IN ($1, $2)`, d.table("tool_mrooms_storage"))
	rows, err := d.db.QueryContext(ctx, q, drift.StorageMoodleData, drift.StorageS3)
	if err != nil {
		return nil, errors.Wrap(err, "could not query storage")
	}
	defer rows.Close()

	storage := make(map[string]int64)
	for rows.Next() {
		var name string
		var value int64
		err := rows.Scan(&name, &value)
		if err != nil {
			return nil, errors.Wrap(err, "could not scan storage")
		}
		storage[name] = value
	}
	return storage, errors.Wrap(rows.Err(), "could not read storage")
}
