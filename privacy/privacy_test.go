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

package privacy

import (
	"context"
	"encoding/json"
	"os"
	"testing"

	"github.com/ausocean/openfish/datastore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

func newTestProvider(t *testing.T) *Provider {
	t.Helper()
	model.RegisterEntities()
	store, err := datastore.NewStore(context.Background(), "file", "privacy", t.TempDir())
	require.NoError(t, err, "could not create file store")
	return NewProvider(store, nil)
}

func userContext(uid int64) Context {
	return Context{ID: uid, Level: LevelUser, InstanceID: uid}
}

func TestContextsForUser(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)

	contexts, err := p.ContextsForUser(ctx, 7)
	require.NoError(t, err)
	assert.Empty(t, contexts, "user without a row holds no data")

	require.NoError(t, model.SetSubscription(ctx, p.Store, 7, false))
	contexts, err = p.ContextsForUser(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, []Context{userContext(7)}, contexts, "an unsubscribed row is still personal data")
}

func TestUsersInContext(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	require.NoError(t, model.SetSubscription(ctx, p.Store, 7, true))

	tests := []struct {
		name string
		c    Context
		want []int64
	}{
		{name: "owner", c: userContext(7), want: []int64{7}},
		{name: "user without data", c: userContext(8)},
		{name: "course context", c: Context{ID: 7, Level: 50, InstanceID: 7}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := p.UsersInContext(ctx, test.c)
			require.NoError(t, err)
			assert.Equal(t, test.want, got)
		})
	}
}

func TestExportUserData(t *testing.T) {
	ctx := context.Background()
	p := newTestProvider(t)
	require.NoError(t, model.SetSubscription(ctx, p.Store, 7, true))
	require.NoError(t, model.SetSubscription(ctx, p.Store, 8, false))

	tests := []struct {
		name string
		list ApprovedContextList
		want *Record
	}{
		{name: "subscribed", list: ApprovedContextList{UserID: 7, ContextIDs: []int64{7}}, want: &Record{UserID: 7, Subscribed: "Yes"}},
		{name: "unsubscribed", list: ApprovedContextList{UserID: 8, ContextIDs: []int64{3, 8}}, want: &Record{UserID: 8, Subscribed: "No"}},
		{name: "no row", list: ApprovedContextList{UserID: 9, ContextIDs: []int64{9}}},
		{name: "context not approved", list: ApprovedContextList{UserID: 7, ContextIDs: []int64{3}}},
		{name: "empty list", list: ApprovedContextList{UserID: 7}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			w, err := NewFileWriter(t.TempDir())
			require.NoError(t, err)
			err = p.ExportUserData(ctx, test.list, w)
			require.NoError(t, err)

			path := w.Path(userContext(test.list.UserID), []string{model.SubscriptionTable})
			b, err := os.ReadFile(path)
			if test.want == nil {
				assert.True(t, os.IsNotExist(err), "expected no export, got %s", b)
				return
			}
			require.NoError(t, err)
			var got Record
			require.NoError(t, json.Unmarshal(b, &got))
			assert.Equal(t, *test.want, got)
		})
	}
}

func deleteContext(ctx context.Context, c Context) func(p *Provider) error {
	return func(p *Provider) error {
		return p.DeleteDataForAllUsersInContext(ctx, c)
	}
}

func deleteUser(ctx context.Context, uid int64, contexts ...int64) func(p *Provider) error {
	return func(p *Provider) error {
		return p.DeleteDataForUser(ctx, ApprovedContextList{UserID: uid, ContextIDs: contexts})
	}
}

func deleteUsers(ctx context.Context, c Context, uids ...int64) func(p *Provider) error {
	return func(p *Provider) error {
		return p.DeleteDataForUsers(ctx, ApprovedUserList{Context: c, UserIDs: uids})
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		delete func(p *Provider) error
		want   []int64 // Users left with data.
	}{
		{
			name:   "all users in user context",
			delete: deleteContext(ctx, userContext(7)),
			want:   []int64{8},
		},
		{
			name:   "all users in other context",
			delete: deleteContext(ctx, Context{ID: 7, Level: 50, InstanceID: 7}),
			want:   []int64{7, 8},
		},
		{
			name:   "approved user",
			delete: deleteUser(ctx, 8, 8),
			want:   []int64{7},
		},
		{
			name:   "unapproved context",
			delete: deleteUser(ctx, 8, 7),
			want:   []int64{7, 8},
		},
		{
			name:   "user list with owner",
			delete: deleteUsers(ctx, userContext(7), 8, 7),
			want:   []int64{8},
		},
		{
			name:   "user list without owner",
			delete: deleteUsers(ctx, userContext(7), 8),
			want:   []int64{7, 8},
		},
		{
			name:   "missing row",
			delete: deleteContext(ctx, userContext(9)),
			want:   []int64{7, 8},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			p := newTestProvider(t)
			require.NoError(t, model.SetSubscription(ctx, p.Store, 7, true))
			require.NoError(t, model.SetSubscription(ctx, p.Store, 8, false))

			require.NoError(t, test.delete(p))

			subs, err := model.GetSubscriptions(ctx, p.Store)
			require.NoError(t, err)
			var got []int64
			for _, s := range subs {
				got = append(got, s.UserID)
			}
			assert.Equal(t, test.want, got)
		})
	}
}

func TestMetadata(t *testing.T) {
	m := (&Provider{}).Metadata()
	require.Len(t, m.Tables, 1)
	assert.Equal(t, model.SubscriptionTable, m.Tables[0].Name)
	require.Len(t, m.External, 1)

	var names []string
	for _, f := range m.External[0].Fields {
		names = append(names, f.Name)
	}
	assert.ElementsMatch(t, []string{"userid", "name", "email", "country", "roleid", "rolename", "language", "issiteadmin", "sitename"}, names)
}
