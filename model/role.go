/*
DESCRIPTION
  Datastore role and role assignment types and functions.

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
	"errors"
	"fmt"
	"sort"

	"github.com/ausocean/openfish/datastore"
)

const (
	typeRole           = "Role"           // Role datastore type.
	typeRoleAssignment = "RoleAssignment" // RoleAssignment datastore type.
)

// Role is a host role definition.
type Role struct {
	ID        int64  // Host role ID. Lower IDs take precedence.
	Shortname string // Unique short name, e.g. "editingteacher".
	Name      string // Display name, possibly empty.
}

// Encode serializes a Role into JSON.
func (r *Role) Encode() []byte {
	bytes, _ := json.Marshal(r)
	return bytes
}

// Decode deserializes a Role from JSON.
func (r *Role) Decode(b []byte) error {
	return json.Unmarshal(b, r)
}

// Copy copies a role to dst, or returns a copy of the role when dst is nil.
func (r *Role) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var r2 *Role
	if dst == nil {
		r2 = new(Role)
	} else {
		var ok bool
		r2, ok = dst.(*Role)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*r2 = *r
	return r2, nil
}

// GetCache returns nil, indicating no caching. The host owns these
// records and may change them at any time.
func (r *Role) GetCache() datastore.Cache {
	return nil
}

// RoleAssignment assigns a role to a user in some host context.
type RoleAssignment struct {
	UserID    int64
	RoleID    int64
	ContextID int64
}

// Encode serializes a RoleAssignment into JSON.
func (ra *RoleAssignment) Encode() []byte {
	bytes, _ := json.Marshal(ra)
	return bytes
}

// Decode deserializes a RoleAssignment from JSON.
func (ra *RoleAssignment) Decode(b []byte) error {
	return json.Unmarshal(b, ra)
}

// Copy copies a role assignment to dst, or returns a copy when dst is nil.
func (ra *RoleAssignment) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var ra2 *RoleAssignment
	if dst == nil {
		ra2 = new(RoleAssignment)
	} else {
		var ok bool
		ra2, ok = dst.(*RoleAssignment)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*ra2 = *ra
	return ra2, nil
}

// GetCache returns nil, indicating no caching.
func (ra *RoleAssignment) GetCache() datastore.Cache {
	return nil
}

// PutRole creates or updates a role.
func PutRole(ctx context.Context, store datastore.Store, role *Role) error {
	_, err := store.Put(ctx, store.IDKey(typeRole, role.ID), role)
	return err
}

// GetRole returns a role by ID.
func GetRole(ctx context.Context, store datastore.Store, id int64) (*Role, error) {
	var r Role
	err := store.Get(ctx, store.IDKey(typeRole, id), &r)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetRoles returns all roles sorted by ID.
func GetRoles(ctx context.Context, store datastore.Store) ([]Role, error) {
	q := store.NewQuery(typeRole, false)
	var roles []Role
	_, err := store.GetAll(ctx, q, &roles)
	if err != nil {
		return nil, err
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func roleAssignmentKey(store datastore.Store, ra *RoleAssignment) *datastore.Key {
	return store.NameKey(typeRoleAssignment, fmt.Sprintf("%d.%d.%d", ra.UserID, ra.RoleID, ra.ContextID))
}

// PutRoleAssignment creates or updates a role assignment.
func PutRoleAssignment(ctx context.Context, store datastore.Store, ra *RoleAssignment) error {
	_, err := store.Put(ctx, roleAssignmentKey(store, ra), ra)
	return err
}

// GetUserRoles returns the distinct roles assigned to a user in any
// context, ordered by role ID. Assignments that refer to a missing
// role are ignored.
func GetUserRoles(ctx context.Context, store datastore.Store, uid int64) ([]Role, error) {
	q := store.NewQuery(typeRoleAssignment, false, "UserID", "RoleID", "ContextID")
	q.Filter("UserID =", uid)
	var ras []RoleAssignment
	_, err := store.GetAll(ctx, q, &ras)
	if err != nil {
		return nil, fmt.Errorf("could not get role assignments for user %d: %w", uid, err)
	}

	seen := make(map[int64]bool)
	var roles []Role
	for _, ra := range ras {
		if seen[ra.RoleID] {
			continue
		}
		seen[ra.RoleID] = true
		r, err := GetRole(ctx, store, ra.RoleID)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("could not get role %d: %w", ra.RoleID, err)
		}
		roles = append(roles, *r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}
