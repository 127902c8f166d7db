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

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"

	"github.com/open-lms-open-source/moodle-local-drift/backend"
	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// ScriptModule is the client-side module that loads the widget.
const ScriptModule = "local_drift/drift"

// Client-side methods of ScriptModule.
const (
	MethodSendData       = "sendData"       // Load the widget and identify the user.
	MethodInit           = "init"           // Load the widget only.
	MethodTestConnection = "testConnection" // Load the widget and show a welcome message.
)

// Outcome is the externally observable result of a page view decision.
type Outcome int

// Outcomes.
const (
	Silent     Outcome = iota // No script.
	Identified                // Exactly one script action.
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case Silent:
		return "silent"
	case Identified:
		return "identified"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Outcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "silent":
		*o = Silent
	case "identified":
		*o = Identified
	default:
		return fmt.Errorf("unknown outcome %q", b)
	}
	return nil
}

// Action is a client-side script call to be run by the page.
type Action struct {
	Script string        `json:"script"`
	Method string        `json:"method"`
	Args   []interface{} `json:"args"`
}

// Decision is the result of a page view decision. Action is nil when
// the outcome is Silent.
type Decision struct {
	Outcome Outcome `json:"outcome"`
	Action  *Action `json:"action,omitempty"`
}

// Engine makes Drift decisions for page views.
type Engine struct {
	Store datastore.Store
	Roles RoleSource
	Site  Site
	Usage *UsageCache // Nil disables usage metrics.
	Log   logging.Logger
}

// NewEngine returns a new Engine. usage may be nil.
func NewEngine(store datastore.Store, roles RoleSource, site Site, usage *UsageCache, log logging.Logger) *Engine {
	return &Engine{Store: store, Roles: roles, Site: site, Usage: usage, Log: log}
}

// SessionCache returns the cache held in sess.
func (e *Engine) SessionCache(sess backend.Session) *SessionCache {
	return NewSessionCache(sess, e.Store, e.Roles)
}

// isGuest returns true for requests without a real user.
func isGuest(user *model.User) bool {
	return user == nil || user.Guest || user.Deleted || user.ID == 0
}

// BeforeFooter decides what, if anything, a page view runs. At most
// one action is returned per call. The first call in a session for a
// subscribed, eligible user identifies them. Later calls only load the
// widget.
//
// The client key is checked before roles and subscriptions, so while no
// key is set nothing is looked up and privileged users get no default
// subscription.
func (e *Engine) BeforeFooter(ctx context.Context, sc *SessionCache, user *model.User) (Decision, error) {
	if isGuest(user) {
		return Decision{Outcome: Silent}, nil
	}

	settings, err := LoadSettings(ctx, e.Store)
	if err != nil {
		return Decision{Outcome: Silent}, fmt.Errorf("could not load settings: %w", err)
	}
	if settings.ClientKey == "" {
		return Decision{Outcome: Silent}, nil
	}

	elig, err := sc.Eligibility(ctx, user, settings.Roles)
	if err != nil {
		return Decision{Outcome: Silent}, err
	}
	if !elig.Eligible {
		return Decision{Outcome: Silent}, nil
	}

	subscribed, err := sc.Subscribed(ctx, user)
	if err != nil {
		return Decision{Outcome: Silent}, err
	}
	if !subscribed {
		return Decision{Outcome: Silent}, nil
	}

	if sc.Identified() {
		return Decision{
			Outcome: Identified,
			Action:  &Action{Script: ScriptModule, Method: MethodInit, Args: []interface{}{settings.ClientKey}},
		}, nil
	}
	return e.identify(ctx, sc, user, settings, elig)
}

// identify builds the payload and marks the session identified.
func (e *Engine) identify(ctx context.Context, sc *SessionCache, user *model.User, settings Settings, elig Eligibility) (Decision, error) {
	var usage *Usage
	if settings.UsageMetrics && e.Usage != nil {
		var err error
		usage, err = e.Usage.LastMonth(ctx, sc.KV())
		if err != nil {
			e.Log.Warning("could not get usage metrics, sending profile without them", "user", user.ID, "error", err)
			usage = nil
		}
	}

	p := BuildPayload(user, elig, user.SiteAdmin, e.Site, usage)
	sc.MarkIdentified()
	e.Log.Debug("identifying user", "user", user.ID, "role", p.Data.RoleID)
	return Decision{
		Outcome: Identified,
		Action:  &Action{Script: ScriptModule, Method: MethodSendData, Args: []interface{}{settings.ClientKey, p}},
	}, nil
}

// ShowSubscriptionLink reports whether the user's profile shows the
// Drift subscription link. Guests never see it.
func (e *Engine) ShowSubscriptionLink(ctx context.Context, sc *SessionCache, user *model.User) (bool, error) {
	if isGuest(user) {
		return false, nil
	}
	settings, err := LoadSettings(ctx, e.Store)
	if err != nil {
		return false, fmt.Errorf("could not load settings: %w", err)
	}
	elig, err := sc.Eligibility(ctx, user, settings.Roles)
	if err != nil {
		return false, err
	}
	return elig.Eligible, nil
}

// Subscription returns the user's current subscription choice.
func (e *Engine) Subscription(ctx context.Context, sc *SessionCache, user *model.User) (bool, error) {
	if isGuest(user) {
		return false, ErrInvalidUser
	}
	return sc.Subscribed(ctx, user)
}

// UpdateSubscription records the user's choice. Subscribing identifies
// the user immediately when a client key is configured.
func (e *Engine) UpdateSubscription(ctx context.Context, sc *SessionCache, user *model.User, subscribed bool) (Decision, error) {
	if isGuest(user) {
		return Decision{Outcome: Silent}, ErrInvalidUser
	}

	err := sc.SetSubscribed(ctx, user, subscribed)
	if err != nil {
		return Decision{Outcome: Silent}, err
	}
	if !subscribed {
		return Decision{Outcome: Silent}, nil
	}

	settings, err := LoadSettings(ctx, e.Store)
	if err != nil {
		return Decision{Outcome: Silent}, fmt.Errorf("could not load settings: %w", err)
	}
	if settings.ClientKey == "" {
		return Decision{Outcome: Silent}, nil
	}
	elig, err := sc.Eligibility(ctx, user, settings.Roles)
	if err != nil {
		return Decision{Outcome: Silent}, err
	}
	return e.identify(ctx, sc, user, settings, elig)
}
