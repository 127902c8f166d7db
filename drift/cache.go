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
	"time"

	"github.com/ausocean/openfish/datastore"

	"github.com/open-lms-open-source/moodle-local-drift/backend"
	"github.com/open-lms-open-source/moodle-local-drift/kv"
	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// Namespace is the session key holding the cache.
const Namespace = "driftallowed"

// CacheState is the state of a cached decision.
type CacheState int

// Cache states. Unknown means not yet computed in this session.
const (
	Unknown CacheState = iota
	Valid
	Invalid
)

func stateOf(b bool) CacheState {
	if b {
		return Valid
	}
	return Invalid
}

// cacheData is the session representation of the cache.
type cacheData struct {
	HasValidRoles  CacheState        `json:"hasvalidroles"`
	ValidUserRoles []model.Role      `json:"validuserroles,omitempty"`
	ValidRoles     []string          `json:"validroles,omitempty"`
	IsSubscribed   CacheState        `json:"issubscribed"`
	IsIdentified   bool              `json:"isidentified"`
	Values         map[string]string `json:"values,omitempty"`
}

// SessionCache memoizes eligibility and subscription state for one
// user session. Values are read from the session on creation and
// written back by Save.
type SessionCache struct {
	sess  backend.Session
	store datastore.Store
	roles RoleSource
	data  cacheData
}

// NewSessionCache loads the cache from sess. A missing or unreadable
// cache starts empty.
func NewSessionCache(sess backend.Session, store datastore.Store, roles RoleSource) *SessionCache {
	sc := &SessionCache{sess: sess, store: store, roles: roles}
	err := sess.Get(Namespace, &sc.data)
	if err != nil {
		sc.data = cacheData{}
	}
	return sc
}

// Save writes the cache back to the session.
func (sc *SessionCache) Save() error {
	return sc.sess.Set(Namespace, sc.data)
}

// Eligibility returns the user's eligibility for the live allow-list.
// The cached result is recomputed when it is unknown or was computed
// from a different allow-list.
func (sc *SessionCache) Eligibility(ctx context.Context, user *model.User, allow []string) (Eligibility, error) {
	if sc.data.HasValidRoles != Unknown && SameAllowList(sc.data.ValidRoles, allow) {
		return Eligibility{
			Eligible:     sc.data.HasValidRoles == Valid,
			MatchedRoles: sc.data.ValidUserRoles,
			AllowList:    sc.data.ValidRoles,
		}, nil
	}

	memberships, err := sc.roles.UserRoles(ctx, user.ID)
	if err != nil {
		return Eligibility{}, fmt.Errorf("could not get roles for user %d: %w", user.ID, err)
	}
	e := ResolveEligibility(memberships, allow, user.SiteAdmin)
	sc.data.HasValidRoles = stateOf(e.Eligible)
	sc.data.ValidUserRoles = e.MatchedRoles
	sc.data.ValidRoles = e.AllowList
	return e, nil
}

// Subscribed returns whether the user is subscribed. On first use in a
// session, site administrators without a choice on record are
// subscribed by default.
func (sc *SessionCache) Subscribed(ctx context.Context, user *model.User) (bool, error) {
	if sc.data.IsSubscribed != Unknown {
		return sc.data.IsSubscribed == Valid, nil
	}

	_, err := model.EnsurePrivilegedDefault(ctx, sc.store, user.ID, user.SiteAdmin)
	if err != nil {
		return false, err
	}
	subscribed, err := model.IsSubscribed(ctx, sc.store, user.ID)
	if err != nil {
		return false, err
	}
	sc.data.IsSubscribed = stateOf(subscribed)
	return subscribed, nil
}

// SetSubscribed stores the user's choice and updates the cache with it.
// Unsubscribing forgets that the user was identified.
func (sc *SessionCache) SetSubscribed(ctx context.Context, user *model.User, subscribed bool) error {
	err := model.SetSubscription(ctx, sc.store, user.ID, subscribed)
	if err != nil {
		return fmt.Errorf("could not set subscription for user %d: %w", user.ID, err)
	}
	sc.data.IsSubscribed = stateOf(subscribed)
	if !subscribed {
		sc.data.IsIdentified = false
	}
	return nil
}

// Identified reports whether the profile was sent in this session.
func (sc *SessionCache) Identified() bool {
	return sc.data.IsIdentified
}

// MarkIdentified records that the profile was sent in this session.
func (sc *SessionCache) MarkIdentified() {
	sc.data.IsIdentified = true
}

// State returns the cached eligibility and subscription states.
func (sc *SessionCache) State() (roles, subscribed CacheState) {
	return sc.data.HasValidRoles, sc.data.IsSubscribed
}

// KV returns a kv.KV view of the values held in the session. Expiry is
// not supported and values live as long as the session.
func (sc *SessionCache) KV() kv.KV {
	return sessionKV{sc}
}

type sessionKV struct {
	sc *SessionCache
}

func (s sessionKV) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.sc.data.Values[key]
	if !ok {
		return "", kv.ErrMiss
	}
	return v, nil
}

func (s sessionKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if s.sc.data.Values == nil {
		s.sc.data.Values = make(map[string]string)
	}
	s.sc.data.Values[key] = value
	return nil
}

func (s sessionKV) Delete(ctx context.Context, key string) error {
	delete(s.sc.data.Values, key)
	return nil
}
