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

	"github.com/ausocean/openfish/datastore"
	"github.com/stretchr/testify/require"

	"github.com/open-lms-open-source/moodle-local-drift/backend"
	"github.com/open-lms-open-source/moodle-local-drift/model"
)

const (
	testWWWRoot = "https://lms.example.com"
	testKey     = "abcd1234efgh"
)

var (
	roleManager = model.Role{ID: 1, Shortname: "manager"}
	roleMentor  = model.Role{ID: 2, Shortname: "mentor"}
	roleTeacher = model.Role{ID: 3, Shortname: "editingteacher"}
	roleStudent = model.Role{ID: 5, Shortname: "student"}
)

var testSite = Site{WWWRoot: testWWWRoot, Lang: "en"}

// newTestStore returns a file store rooted in a temporary directory.
func newTestStore(t *testing.T) datastore.Store {
	t.Helper()
	model.RegisterEntities()
	store, err := datastore.NewStore(context.Background(), "file", "drift", t.TempDir())
	require.NoError(t, err, "could not create file store")
	return store
}

// newTestSession returns an empty cookie session.
func newTestSession(t *testing.T) backend.Session {
	t.Helper()
	sess, err := backend.NewFiberSession("test", "")
	require.NoError(t, err)
	return sess
}

// fakeRoles is a RoleSource that counts lookups.
type fakeRoles struct {
	mu    sync.Mutex
	roles map[int64][]model.Role
	calls int
}

func (f *fakeRoles) UserRoles(ctx context.Context, uid int64) ([]model.Role, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.roles[uid], nil
}

// fakeReporter is a Reporter that counts calls.
type fakeReporter struct {
	mu         sync.Mutex
	active     int64
	registered int64
	storage    map[string]int64
	calls      int
}

func (f *fakeReporter) LastMonthActiveAndRegistered(ctx context.Context) (int64, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.active, f.registered, nil
}

func (f *fakeReporter) Storage(ctx context.Context) (map[string]int64, error) {
	return f.storage, nil
}
