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

import "github.com/open-lms-open-source/moodle-local-drift/model"

// Field describes a personal data field.
type Field struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Location describes where personal data is held or sent.
type Location struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields"`
}

// Metadata lists the personal data stored and sent to external systems.
type Metadata struct {
	Tables   []Location `json:"tables"`
	External []Location `json:"external"`
}

// Metadata returns the personal data stored by the plugin and sent to Drift.
func (p *Provider) Metadata() Metadata {
	return Metadata{
		Tables: []Location{{
			Name:        model.SubscriptionTable,
			Description: "Information about the subscription to Drift service.",
			Fields: []Field{
				{"userid", "The ID of the current user."},
				{"subscribed", "The status of Drift subscription for the current user."},
			},
		}},
		External: []Location{{
			Name:        "drift",
			Description: "Drift Platform",
			Fields: []Field{
				{"userid", "The user's id is sent from Moodle to Drift as part of user authentication process."},
				{"name", "The user's name is sent from Moodle to Drift as part of user authentication process."},
				{"email", "The user's email is sent from Moodle to Drift as part of user authentication process."},
				{"country", "The user's country information is sent from Moodle to Drift as part of user authentication process."},
				{"roleid", "Drift requires the user roleid to filter users by role on its server."},
				{"rolename", "Drift requires the user rolename to identify users by role and sent aimed marketing messages."},
				{"language", "The user's language is sent from Moodle to Drift as part of user authentication process."},
				{"issiteadmin", "Drift requires to know if user is a site admin or not."},
				{"sitename", "The site name is sent to Drift as part of user authentication process."},
			},
		}},
	}
}
