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
	"testing"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// newTestEngine returns an engine with the given settings saved.
func newTestEngine(t *testing.T, settings Settings, roles *fakeRoles, usage *UsageCache) *Engine {
	t.Helper()
	store := newTestStore(t)
	require.NoError(t, SaveSettings(context.Background(), store, settings))
	return NewEngine(store, roles, testSite, usage, (*logging.TestLogger)(t))
}

func TestBeforeFooter(t *testing.T) {
	ctx := context.Background()
	teacher := &model.User{ID: 7, FirstName: "Tess", Email: "tess@example.com"}
	student := &model.User{ID: 8, FirstName: "Stu"}
	admin := &model.User{ID: 2, FirstName: "Ada", SiteAdmin: true}
	guest := &model.User{ID: 1, Guest: true}
	roles := &fakeRoles{roles: map[int64][]model.Role{
		teacher.ID: {roleStudent, roleTeacher},
		student.ID: {roleStudent},
	}}

	t.Run("guest", func(t *testing.T) {
		e := newTestEngine(t, Settings{ClientKey: testKey}, roles, nil)
		for _, u := range []*model.User{nil, guest} {
			d, err := e.BeforeFooter(ctx, e.SessionCache(newTestSession(t)), u)
			require.NoError(t, err)
			assert.Equal(t, Decision{Outcome: Silent}, d)
		}
	})

	t.Run("no client key", func(t *testing.T) {
		e := newTestEngine(t, Settings{}, roles, nil)
		sc := e.SessionCache(newTestSession(t))
		d, err := e.BeforeFooter(ctx, sc, admin)
		require.NoError(t, err)
		assert.Equal(t, Decision{Outcome: Silent}, d)
		state, sub := sc.State()
		assert.Equal(t, Unknown, state, "eligibility computed without a client key")
		assert.Equal(t, Unknown, sub)
		_, err = model.GetSubscription(ctx, e.Store, admin.ID)
		assert.ErrorIs(t, err, datastore.ErrNoSuchEntity, "default subscription created without a client key")
	})

	t.Run("ineligible", func(t *testing.T) {
		e := newTestEngine(t, Settings{ClientKey: testKey, Roles: []string{"editingteacher"}}, roles, nil)
		require.NoError(t, model.SetSubscription(ctx, e.Store, student.ID, true))
		d, err := e.BeforeFooter(ctx, e.SessionCache(newTestSession(t)), student)
		require.NoError(t, err)
		assert.Equal(t, Silent, d.Outcome)
		assert.Nil(t, d.Action)
	})

	t.Run("not subscribed", func(t *testing.T) {
		e := newTestEngine(t, Settings{ClientKey: testKey, Roles: []string{"editingteacher"}}, roles, nil)
		d, err := e.BeforeFooter(ctx, e.SessionCache(newTestSession(t)), teacher)
		require.NoError(t, err)
		assert.Equal(t, Silent, d.Outcome)
	})

	t.Run("identify then init", func(t *testing.T) {
		e := newTestEngine(t, Settings{ClientKey: testKey, Roles: []string{"editingteacher", "student"}}, roles, nil)
		require.NoError(t, model.SetSubscription(ctx, e.Store, teacher.ID, true))
		sess := newTestSession(t)

		sc := e.SessionCache(sess)
		d, err := e.BeforeFooter(ctx, sc, teacher)
		require.NoError(t, err)
		assert.Equal(t, Identified, d.Outcome)
		require.NotNil(t, d.Action)
		assert.Equal(t, ScriptModule, d.Action.Script)
		assert.Equal(t, MethodSendData, d.Action.Method)
		require.Len(t, d.Action.Args, 2)
		assert.Equal(t, testKey, d.Action.Args[0])
		p, ok := d.Action.Args[1].(Payload)
		require.True(t, ok, "second argument is not a payload")
		assert.Equal(t, "7-"+testWWWRoot, p.UserID)
		assert.Equal(t, int64(3), p.Data.RoleID)
		assert.Equal(t, "editingteacher", p.Data.RoleName)
		require.NoError(t, sc.Save())

		// The next page view in the session only loads the widget.
		sc = e.SessionCache(sess)
		d, err = e.BeforeFooter(ctx, sc, teacher)
		require.NoError(t, err)
		assert.Equal(t, Decision{
			Outcome: Identified,
			Action:  &Action{Script: ScriptModule, Method: MethodInit, Args: []interface{}{testKey}},
		}, d)
	})

	t.Run("admin default", func(t *testing.T) {
		e := newTestEngine(t, Settings{ClientKey: testKey}, roles, nil)
		d, err := e.BeforeFooter(ctx, e.SessionCache(newTestSession(t)), admin)
		require.NoError(t, err)
		require.NotNil(t, d.Action)
		assert.Equal(t, MethodSendData, d.Action.Method)
		p := d.Action.Args[1].(Payload)
		assert.Equal(t, SiteAdminRole, p.Data.RoleID)
		assert.Equal(t, "true", p.Data.IsSiteAdmin)
	})

	t.Run("usage metrics", func(t *testing.T) {
		reporter := &fakeReporter{active: 3, registered: 9}
		usage := NewUsageCache(reporter, nil)
		usage.Now = func() time.Time { return time.Date(2026, time.October, 18, 0, 0, 0, 0, time.UTC) }
		e := newTestEngine(t, Settings{ClientKey: testKey, UsageMetrics: true}, roles, usage)
		d, err := e.BeforeFooter(ctx, e.SessionCache(newTestSession(t)), admin)
		require.NoError(t, err)
		require.NotNil(t, d.Action)
		b, err := json.Marshal(d.Action.Args[1])
		require.NoError(t, err)
		var wire struct {
			Data map[string]interface{} `json:"data"`
		}
		require.NoError(t, json.Unmarshal(b, &wire))
		assert.Equal(t, float64(3), wire.Data["avgactiveusers"])
		assert.Equal(t, float64(9), wire.Data["avgregisteredusers"])
		assert.Equal(t, false, wire.Data["purchasedusers"])
		assert.Equal(t, 1, reporter.calls)
	})
}

func TestUpdateSubscription(t *testing.T) {
	ctx := context.Background()
	teacher := &model.User{ID: 7, FirstName: "Tess"}
	roles := &fakeRoles{roles: map[int64][]model.Role{teacher.ID: {roleTeacher}}}
	e := newTestEngine(t, Settings{ClientKey: testKey, Roles: []string{"editingteacher"}}, roles, nil)
	sc := e.SessionCache(newTestSession(t))

	_, err := e.UpdateSubscription(ctx, sc, &model.User{ID: 1, Guest: true}, true)
	assert.ErrorIs(t, err, ErrInvalidUser)
	_, err = e.Subscription(ctx, sc, nil)
	assert.ErrorIs(t, err, ErrInvalidUser)

	show, err := e.ShowSubscriptionLink(ctx, sc, teacher)
	require.NoError(t, err)
	assert.True(t, show)
	show, err = e.ShowSubscriptionLink(ctx, sc, nil)
	require.NoError(t, err)
	assert.False(t, show)

	// Subscribing identifies immediately.
	d, err := e.UpdateSubscription(ctx, sc, teacher, true)
	require.NoError(t, err)
	require.NotNil(t, d.Action)
	assert.Equal(t, MethodSendData, d.Action.Method)
	assert.True(t, sc.Identified())

	d, err = e.BeforeFooter(ctx, sc, teacher)
	require.NoError(t, err)
	require.NotNil(t, d.Action)
	assert.Equal(t, MethodInit, d.Action.Method)

	// Unsubscribing silences the widget for the rest of the session.
	d, err = e.UpdateSubscription(ctx, sc, teacher, false)
	require.NoError(t, err)
	assert.Equal(t, Decision{Outcome: Silent}, d)
	subscribed, err := e.Subscription(ctx, sc, teacher)
	require.NoError(t, err)
	assert.False(t, subscribed)
	d, err = e.BeforeFooter(ctx, sc, teacher)
	require.NoError(t, err)
	assert.Equal(t, Decision{Outcome: Silent}, d)
}

func TestDecisionJSON(t *testing.T) {
	tests := []Decision{
		{Outcome: Silent},
		{
			Outcome: Identified,
			Action:  &Action{Script: ScriptModule, Method: MethodInit, Args: []interface{}{testKey}},
		},
	}
	for _, want := range tests {
		b, err := json.Marshal(want)
		require.NoError(t, err)
		var got Decision
		require.NoError(t, json.Unmarshal(b, &got), "could not decode %s", b)
		assert.Equal(t, want, got)
	}

	b, err := json.Marshal(Decision{Outcome: Identified})
	require.NoError(t, err)
	assert.JSONEq(t, `{"outcome":"identified"}`, string(b))

	var d Decision
	assert.Error(t, json.Unmarshal([]byte(`{"outcome":"loud"}`), &d))
}
