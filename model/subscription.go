/*
DESCRIPTION
  Drift subscription type and functions. A subscription records whether
  a user has opted in to being identified to Drift.

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
	"strconv"
	"time"

	"github.com/ausocean/openfish/datastore"
)

// typeSubscription is the name of the datastore subscription type.
// It keeps the name of the table used by the LMS plugin.
const typeSubscription = "DriftSubscription"

// SubscriptionTable is the table name reported to privacy exports.
const SubscriptionTable = "local_drift_subscription"

// DriftSubscription is the single opt-in record for a user. There is
// at most one per user since the datastore key is the user ID.
type DriftSubscription struct {
	UserID     int64     // Host user ID.
	Subscribed bool      // True if the user agreed to be identified.
	Updated    time.Time // Date/time last updated.
}

// Encode serializes a DriftSubscription into JSON.
func (s *DriftSubscription) Encode() []byte {
	bytes, _ := json.Marshal(s)
	return bytes
}

// Decode deserializes a DriftSubscription from JSON.
func (s *DriftSubscription) Decode(b []byte) error {
	return json.Unmarshal(b, s)
}

// Copy copies a DriftSubscription to dst, or returns a copy of the subscription when dst is nil.
func (s *DriftSubscription) Copy(dst datastore.Entity) (datastore.Entity, error) {
	var s2 *DriftSubscription
	if dst == nil {
		s2 = new(DriftSubscription)
	} else {
		var ok bool
		s2, ok = dst.(*DriftSubscription)
		if !ok {
			return nil, datastore.ErrWrongType
		}
	}
	*s2 = *s
	return s2, nil
}

// GetCache returns nil, indicating no caching. Subscription state is
// cached per session instead.
func (s *DriftSubscription) GetCache() datastore.Cache {
	return nil
}

func subscriptionKey(store datastore.Store, uid int64) *datastore.Key {
	return store.NameKey(typeSubscription, strconv.FormatInt(uid, 10))
}

// GetSubscription returns the subscription for the given user, or
// datastore.ErrNoSuchEntity if the user never made a choice.
func GetSubscription(ctx context.Context, store datastore.Store, uid int64) (*DriftSubscription, error) {
	var s DriftSubscription
	err := store.Get(ctx, subscriptionKey(store, uid), &s)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// IsSubscribed returns true if the user has a subscription row with
// Subscribed set. A missing row is not an error.
func IsSubscribed(ctx context.Context, store datastore.Store, uid int64) (bool, error) {
	s, err := GetSubscription(ctx, store, uid)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not get subscription for user %d: %w", uid, err)
	}
	return s.Subscribed, nil
}

// SetSubscription creates or updates the subscription row for a user.
// Setting the same value twice is harmless.
func SetSubscription(ctx context.Context, store datastore.Store, uid int64, subscribed bool) error {
	key := subscriptionKey(store, uid)
	var s DriftSubscription
	err := store.Get(ctx, key, &s)
	switch {
	case errors.Is(err, datastore.ErrNoSuchEntity):
		s = DriftSubscription{UserID: uid, Subscribed: subscribed, Updated: time.Now()}
		err = store.Create(ctx, key, &s)
		if !errors.Is(err, datastore.ErrEntityExists) {
			return err
		}
		// Lost a race with another insert, so fall through to an update.
	case err != nil:
		return fmt.Errorf("could not get subscription for user %d: %w", uid, err)
	}

	return store.Update(ctx, key, func(e datastore.Entity) {
		if s, ok := e.(*DriftSubscription); ok {
			s.Subscribed = subscribed
			s.Updated = time.Now()
		}
	}, &s)
}

// EnsurePrivilegedDefault subscribes a privileged user that has no
// subscription row yet. An existing row, whatever its value, is never
// overwritten. It reports whether a row was created.
func EnsurePrivilegedDefault(ctx context.Context, store datastore.Store, uid int64, privileged bool) (bool, error) {
	if !privileged {
		return false, nil
	}
	s := &DriftSubscription{UserID: uid, Subscribed: true, Updated: time.Now()}
	err := store.Create(ctx, subscriptionKey(store, uid), s)
	if errors.Is(err, datastore.ErrEntityExists) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not create default subscription for user %d: %w", uid, err)
	}
	return true, nil
}

// DeleteSubscription deletes the subscription row for a user, if any.
func DeleteSubscription(ctx context.Context, store datastore.Store, uid int64) error {
	return DeleteSubscriptions(ctx, store, []int64{uid})
}

// DeleteSubscriptions deletes the subscription rows for the given
// users. Users without a row are skipped.
func DeleteSubscriptions(ctx context.Context, store datastore.Store, uids []int64) error {
	var keys []*datastore.Key
	for _, uid := range uids {
		key := subscriptionKey(store, uid)
		var s DriftSubscription
		err := store.Get(ctx, key, &s)
		if errors.Is(err, datastore.ErrNoSuchEntity) {
			continue
		}
		if err != nil {
			return fmt.Errorf("could not get subscription for user %d: %w", uid, err)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil
	}
	return store.DeleteMulti(ctx, keys)
}

// GetSubscriptions returns all subscription rows, ordered by user ID.
func GetSubscriptions(ctx context.Context, store datastore.Store) ([]DriftSubscription, error) {
	q := store.NewQuery(typeSubscription, false, "UserID")
	var subs []DriftSubscription
	_, err := store.GetAll(ctx, q, &subs)
	if err != nil {
		return nil, err
	}
	sort.Slice(subs, func(i, j int) bool { return subs[i].UserID < subs[j].UserID })
	return subs, nil
}
