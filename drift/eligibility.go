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
	"sort"
	"strings"

	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// Eligibility is the result of matching a user's roles against the
// role allow-list.
type Eligibility struct {
	Eligible     bool         // True if the user may use Drift.
	MatchedRoles []model.Role // Allowed roles held by the user, by ascending ID.
	AllowList    []string     // Allow-list the result was computed from.
}

// Primary returns the matched role with the lowest ID.
func (e Eligibility) Primary() (model.Role, bool) {
	if len(e.MatchedRoles) == 0 {
		return model.Role{}, false
	}
	return e.MatchedRoles[0], true
}

// ResolveEligibility matches role memberships against the allow-list by
// shortname. Privileged users are always eligible. An empty allow-list
// makes only privileged users eligible.
func ResolveEligibility(memberships []model.Role, allow []string, privileged bool) Eligibility {
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[a] = true
	}

	seen := make(map[int64]bool)
	var matched []model.Role
	for _, r := range memberships {
		if !allowed[r.Shortname] || seen[r.ID] {
			continue
		}
		seen[r.ID] = true
		matched = append(matched, r)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].ID < matched[j].ID })

	return Eligibility{
		Eligible:     privileged || len(matched) > 0,
		MatchedRoles: matched,
		AllowList:    append([]string(nil), allow...),
	}
}

// ParseAllowList splits a comma-joined allow-list setting, trimming
// spaces and dropping empty and repeated entries.
func ParseAllowList(s string) []string {
	var list []string
	seen := make(map[string]bool)
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		list = append(list, item)
	}
	return list
}

// JoinAllowList is the inverse of ParseAllowList.
func JoinAllowList(list []string) string {
	return strings.Join(ParseAllowList(strings.Join(list, ",")), ",")
}

// SameAllowList reports whether a and b have the same size and members.
func SameAllowList(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	m := make(map[string]bool, len(a))
	for _, s := range a {
		m[s] = true
	}
	for _, s := range b {
		if !m[s] {
			return false
		}
	}
	return true
}
