/*
DESCRIPTION
  Datastore entity registrations.

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
	"github.com/ausocean/openfish/datastore"
)

// RegisterEntities is a convenience function that registers all of
// the datastore entities in one go.
func RegisterEntities() {
	datastore.RegisterEntity(typeRole, func() datastore.Entity { return new(Role) })
	datastore.RegisterEntity(typeRoleAssignment, func() datastore.Entity { return new(RoleAssignment) })
	datastore.RegisterEntity(typeSetting, func() datastore.Entity { return new(Setting) })
	datastore.RegisterEntity(typeSubscription, func() datastore.Entity { return new(DriftSubscription) })
	datastore.RegisterEntity(typeUser, func() datastore.Entity { return new(User) })
}
