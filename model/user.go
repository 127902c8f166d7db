/*
DESCRIPTION
  Datastore user type and functions. Users mirror the host LMS user
  records that the Drift integration needs when the service runs
  without direct access to the LMS database.

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
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/ausocean/openfish/datastore"
)

// typeUser is the name of the datastore user type.
const typeUser = "User"

// User represents a host LMS user.
type User struct {
	ID         int64     // Host user ID.
	Username   string    // Login name.
	FirstName  string    // Given name.
	LastName   string    // Family name.
	Email      string    // User email address.
	Country    string    // Two-letter country code, possibly empty.
	Lang       string    // Preferred language, e.g. "en".
	SiteAdmin  bool      // True for site administrators.
	Guest      bool      // True for the guest account.
	Deleted    bool      // True once the host deleted the account.
	LastAccess time.Time // Date/time of last access to the site.
	Created    time.Time // Date/time created.
}

// Encode serializes a User into JSON.
func (user *User) Encode() []byte {
	bytes, _ := json.Marshal(user)
	return bytes
}

// Decode deserializes a User from JSON.
func (user *User) Decode(b []byte) error {
	return json.Unmarshal(b, user)
}

// Copy copies a user to dst, or returns a copy of the user when dst is nil.
func (user *User) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var u *User
	if dst == nil {
		u = new(User)
	} else {
		var ok bool
		u, ok = dst.(*User)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*u = *user
	return u, nil
}

// GetCache returns nil, indicating no caching. The host owns these
// records and may change them at any time.
func (user *User) GetCache() datastore.Cache {
	return nil
}

// FullName returns the user's display name.
func (user *User) FullName() string {
	return strings.TrimSpace(user.FirstName + " " + user.LastName)
}

// PutUser creates or updates a user.
func PutUser(ctx context.Context, store datastore.Store, user *User) error {
	key := store.IDKey(typeUser, user.ID)
	_, err := store.Put(ctx, key, user)
	return err
}

// GetUser returns a user by ID.
func GetUser(ctx context.Context, store datastore.Store, id int64) (*User, error) {
	key := store.IDKey(typeUser, id)
	var user User
	err := store.Get(ctx, key, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// GetUsers returns all users, sorted by ID.
func GetUsers(ctx context.Context, store datastore.Store) ([]User, error) {
	q := store.NewQuery(typeUser, false)
	var users []User
	_, err := store.GetAll(ctx, q, &users)
	if err != nil {
		return nil, err
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

// CountUsers returns the number of users that accessed the site in
// [from, to) and the number of registered users, ignoring the guest
// account and deleted users.
func CountUsers(ctx context.Context, store datastore.Store, from, to time.Time) (active, registered int64, err error) {
	users, err := GetUsers(ctx, store)
	if err != nil {
		return 0, 0, err
	}
	for _, u := range users {
		if u.Guest || u.Deleted {
			continue
		}
		registered++
		if !u.LastAccess.Before(from) && u.LastAccess.Before(to) {
			active++
		}
	}
	return active, registered, nil
}

// DeleteUser deletes a user.
func DeleteUser(ctx context.Context, store datastore.Store, id int64) error {
	key := store.IDKey(typeUser, id)
	return store.DeleteMulti(ctx, []*datastore.Key{key})
}
