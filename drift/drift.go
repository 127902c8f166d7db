/*
DESCRIPTION
  Package drift decides, once per page view, whether the current user
  sees the Drift chat widget and whether their profile is sent to Drift.
  Decisions combine role eligibility, the user's opt-in subscription and
  a per-session cache that is lazily invalidated when the role allow-list
  changes.

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

import "errors"

// Errors returned by the engine.
var (
	ErrInvalidUser           = errors.New("invalid user")
	ErrConnectionNotVerified = errors.New("connection not verified")
	ErrNoClientKey           = errors.New("no client key")
)

// User facing messages.
const (
	MsgConnectionVerified = "Connection verified."
	MsgConnectionFail     = "Connection not verified. Check client key."
	MsgButtonDisabled     = "Save form to test connection"
	MsgSubscriptionPolicy = "When you enable your Drift subscription, you agree to send your name, email, country, language, and role to the Drift platform."
	MsgWelcome            = "Drift connection is working."
)
