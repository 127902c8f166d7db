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
	"fmt"
	"strconv"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// SiteAdminRole is sent as both role ID and role name for site administrators.
const SiteAdminRole = "site admin"

// Payload is the profile sent to Drift's identify call.
type Payload struct {
	UserID string      `json:"userid"`
	Data   PayloadData `json:"data"`
}

// PayloadData holds the profile attributes. Usage fields are only set
// when usage metrics are enabled. Booleans that Drift expects as
// strings are kept as strings.
type PayloadData struct {
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	IsSiteAdmin string      `json:"issiteadmin"`
	Country     string      `json:"country"`
	RoleID      interface{} `json:"roleid"`   // int64 or SiteAdminRole.
	RoleName    interface{} `json:"rolename"` // Role shortname or SiteAdminRole.
	SiteName    string      `json:"sitename"`
	Language    string      `json:"language"`

	AvgActiveUsers     *int64      `json:"avgactiveusers,omitempty"`
	AvgRegisteredUsers *int64      `json:"avgregisteredusers,omitempty"`
	PurchasedUsers     interface{} `json:"purchasedusers,omitempty"`   // int64 or false.
	PurchasedStorage   interface{} `json:"purchasedstorage,omitempty"` // "N.NN GB" or false.
	StorageOverage     *bool       `json:"storageoverage,omitempty"`
	UserOverage        *bool       `json:"useroverage,omitempty"`
}

// BuildPayload assembles the identification payload. Privileged users
// are reported with the site admin role, others with the primary
// matched role. usage may be nil.
func BuildPayload(user *model.User, elig Eligibility, privileged bool, site Site, usage *Usage) Payload {
	lang := user.Lang
	if lang == "" {
		lang = site.Lang
	}

	p := Payload{
		UserID: fmt.Sprintf("%d-%s", user.ID, site.WWWRoot),
		Data: PayloadData{
			Email:       user.Email,
			Name:        user.FullName(),
			IsSiteAdmin: strconv.FormatBool(privileged),
			Country:     user.Country,
			SiteName:    site.WWWRoot,
			Language:    lang,
		},
	}

	switch {
	case privileged:
		p.Data.RoleID = SiteAdminRole
		p.Data.RoleName = SiteAdminRole
	default:
		if r, ok := elig.Primary(); ok {
			p.Data.RoleID = r.ID
			p.Data.RoleName = r.Shortname
		}
	}

	if usage != nil {
		addUsage(&p.Data, site, usage)
	}
	return p
}

func addUsage(d *PayloadData, site Site, usage *Usage) {
	active, registered := usage.Active, usage.Registered
	d.AvgActiveUsers = &active
	d.AvgRegisteredUsers = &registered

	d.PurchasedUsers = false
	userOverage := false
	if site.LicensedUsers > 0 {
		d.PurchasedUsers = site.LicensedUsers
		userOverage = active > site.LicensedUsers
	}
	d.UserOverage = &userOverage

	d.PurchasedStorage = false
	storageOverage := false
	if site.LicensedStorage > 0 {
		d.PurchasedStorage = fmt.Sprintf("%.2f GB", float64(site.LicensedStorage)/1024/1024)
		data, s3 := usage.Storage[StorageMoodleData], usage.Storage[StorageS3]
		if data != 0 && s3 != 0 {
			storageOverage = data+s3 > site.LicensedStorage
		}
	}
	d.StorageOverage = &storageOverage
}
