/*
DESCRIPTION
  Package privacy exposes the Drift subscription data to the host's
  personal data export and erasure workflow.

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
	"errors"
	"fmt"

	"github.com/ausocean/openfish/datastore"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// LevelUser is the context level of a user's personal context.
const LevelUser = 30

// Context identifies a host context.
type Context struct {
	ID         int64 `json:"id"`
	Level      int   `json:"level"`
	InstanceID int64 `json:"instanceid"` // User ID for user contexts.
}

// ContextSource maps users to their personal contexts.
type ContextSource interface {
	UserContext(ctx context.Context, uid int64) (Context, error)
}

// IdentityContexts is a ContextSource for deployments without a host
// context table. The context ID of a user context is the user ID.
type IdentityContexts struct{}

// UserContext implements ContextSource.
func (IdentityContexts) UserContext(ctx context.Context, uid int64) (Context, error) {
	return Context{ID: uid, Level: LevelUser, InstanceID: uid}, nil
}

// ApprovedContextList is a user's approved request over some contexts.
type ApprovedContextList struct {
	UserID     int64   `json:"userid"`
	ContextIDs []int64 `json:"contextids"`
}

// ApprovedUserList is an approved request for some users within one context.
type ApprovedUserList struct {
	Context Context `json:"context"`
	UserIDs []int64 `json:"userids"`
}

// Record is the exported form of a subscription.
type Record struct {
	UserID     int64  `json:"userid"`
	Subscribed string `json:"subscribed"` // "Yes" or "No".
}

// Writer receives exported data.
type Writer interface {
	Export(ctx context.Context, c Context, subcontext []string, data interface{}) error
}

// Provider implements the privacy operations for subscriptions.
type Provider struct {
	Store    datastore.Store
	Contexts ContextSource
}

// NewProvider returns a Provider. A nil source uses IdentityContexts.
func NewProvider(store datastore.Store, contexts ContextSource) *Provider {
	if contexts == nil {
		contexts = IdentityContexts{}
	}
	return &Provider{Store: store, Contexts: contexts}
}

// hasData reports whether the user has a subscription row.
func (p *Provider) hasData(ctx context.Context, uid int64) (bool, error) {
	_, err := model.GetSubscription(ctx, p.Store, uid)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("could not get subscription for user %d: %w", uid, err)
	}
	return true, nil
}

// approvedUserContext returns the user's context if the list approves it.
func (p *Provider) approvedUserContext(ctx context.Context, list ApprovedContextList) (Context, bool, error) {
	if list.UserID == 0 || len(list.ContextIDs) == 0 {
		return Context{}, false, nil
	}
	c, err := p.Contexts.UserContext(ctx, list.UserID)
	if err != nil {
		return Context{}, false, fmt.Errorf("could not get context for user %d: %w", list.UserID, err)
	}
	for _, id := range list.ContextIDs {
		if id == c.ID {
			return c, true, nil
		}
	}
	return Context{}, false, nil
}

// ContextsForUser returns the contexts holding data for the user.
func (p *Provider) ContextsForUser(ctx context.Context, uid int64) ([]Context, error) {
	ok, err := p.hasData(ctx, uid)
	if err != nil || !ok {
		return nil, err
	}
	c, err := p.Contexts.UserContext(ctx, uid)
	if err != nil {
		return nil, fmt.Errorf("could not get context for user %d: %w", uid, err)
	}
	return []Context{c}, nil
}

// ExportUserData writes the user's subscription, if any, to w.
func (p *Provider) ExportUserData(ctx context.Context, list ApprovedContextList, w Writer) error {
	c, ok, err := p.approvedUserContext(ctx, list)
	if err != nil || !ok {
		return err
	}
	s, err := model.GetSubscription(ctx, p.Store, list.UserID)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("could not get subscription for user %d: %w", list.UserID, err)
	}
	return w.Export(ctx, c, []string{model.SubscriptionTable}, Record{UserID: s.UserID, Subscribed: yesNo(s.Subscribed)})
}

// DeleteDataForAllUsersInContext deletes the data held in a user context.
// Other context levels hold no data.
func (p *Provider) DeleteDataForAllUsersInContext(ctx context.Context, c Context) error {
	if c.Level != LevelUser {
		return nil
	}
	return model.DeleteSubscription(ctx, p.Store, c.InstanceID)
}

// DeleteDataForUser deletes the user's data if their context is approved.
func (p *Provider) DeleteDataForUser(ctx context.Context, list ApprovedContextList) error {
	_, ok, err := p.approvedUserContext(ctx, list)
	if err != nil || !ok {
		return err
	}
	return model.DeleteSubscription(ctx, p.Store, list.UserID)
}

// UsersInContext returns the users holding data in a context.
func (p *Provider) UsersInContext(ctx context.Context, c Context) ([]int64, error) {
	if c.Level != LevelUser {
		return nil, nil
	}
	ok, err := p.hasData(ctx, c.InstanceID)
	if err != nil || !ok {
		return nil, err
	}
	return []int64{c.InstanceID}, nil
}

// DeleteDataForUsers deletes the data of the listed users held in the
// context. Only the owner of a user context holds data in it.
func (p *Provider) DeleteDataForUsers(ctx context.Context, list ApprovedUserList) error {
	if list.Context.Level != LevelUser {
		return nil
	}
	for _, uid := range list.UserIDs {
		if uid == list.Context.InstanceID {
			return model.DeleteSubscription(ctx, p.Store, uid)
		}
	}
	return nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
