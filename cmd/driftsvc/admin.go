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

package main

import (
	"fmt"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/model"
	"github.com/open-lms-open-source/moodle-local-drift/privacy"
)

// requireAdmin rejects requests that are not made by a site admin.
func (svc *service) requireAdmin(c *fiber.Ctx) error {
	user := currentUser(c)
	if user == nil || !user.SiteAdmin {
		return svc.logAndReturnError(c, fmt.Sprintf("user %d is not a site admin", userID(user)), withStatus(fiber.StatusForbidden))
	}
	return c.Next()
}

// settingsResponse holds the settings shown to admins. The client key
// is masked.
type settingsResponse struct {
	ClientKey      string   `json:"clientkey"`
	Roles          []string `json:"roles"`
	UsageMetrics   bool     `json:"usagemetrics"`
	AvailableRoles []string `json:"availableroles"`
}

func (svc *service) settingsResponse(c *fiber.Ctx, s drift.Settings) error {
	roles, err := model.GetRoles(c.Context(), svc.store)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not get roles: %v", err))
	}
	res := settingsResponse{
		ClientKey:      drift.MaskKey(s.ClientKey),
		Roles:          s.Roles,
		UsageMetrics:   s.UsageMetrics,
		AvailableRoles: []string{},
	}
	if res.Roles == nil {
		res.Roles = []string{}
	}
	for _, r := range roles {
		res.AvailableRoles = append(res.AvailableRoles, r.Shortname)
	}
	return c.JSON(res)
}

// settingsHandler returns the plugin settings.
func (svc *service) settingsHandler(c *fiber.Ctx) error {
	s, err := drift.LoadSettings(c.Context(), svc.store)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not load settings: %v", err))
	}
	return svc.settingsResponse(c, s)
}

// updateSettingsHandler saves the plugin settings. A client key equal
// to the masked current key leaves the key unchanged.
func (svc *service) updateSettingsHandler(c *fiber.Ctx) error {
	current, err := drift.LoadSettings(c.Context(), svc.store)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not load settings: %v", err))
	}

	s := drift.Settings{
		ClientKey: c.FormValue(model.SettingClientKey),
		Roles:     drift.ParseAllowList(c.FormValue(model.SettingRoles)),
	}
	if current.ClientKey != "" && s.ClientKey == drift.MaskKey(current.ClientKey) {
		s.ClientKey = current.ClientKey
	}
	if v := c.FormValue(model.SettingUsageMetrics); v != "" {
		s.UsageMetrics, err = strconv.ParseBool(v)
		if err != nil {
			return svc.logAndReturnError(c, fmt.Sprintf("invalid %s: %v", model.SettingUsageMetrics, err), withStatus(fiber.StatusBadRequest))
		}
	}

	err = drift.SaveSettings(c.Context(), svc.store, s)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not save settings: %v", err))
	}
	svc.log.Info("saved settings", "user", currentUser(c).ID, "roles", drift.JoinAllowList(s.Roles), "usagemetrics", s.UsageMetrics)
	return svc.settingsResponse(c, s)
}

// testConnectionHandler verifies the stored client key with Drift.
func (svc *service) testConnectionHandler(c *fiber.Ctx) error {
	s, err := drift.LoadSettings(c.Context(), svc.store)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not load settings: %v", err))
	}
	if s.ClientKey == "" {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"verified": false, "message": drift.MsgButtonDisabled})
	}

	action, err := svc.checker.Verify(c.Context(), s.ClientKey)
	if err != nil {
		svc.log.Warning("connection test failed", "error", err)
		return c.JSON(fiber.Map{"verified": false, "message": drift.MsgConnectionFail})
	}
	return c.JSON(fiber.Map{
		"verified": true,
		"message":  drift.MsgConnectionVerified,
		"welcome":  drift.MsgWelcome,
		"action":   action,
		"script":   svc.checker.LoaderURL(s.ClientKey),
	})
}

// privacyMetadataHandler describes the personal data held and sent.
func (svc *service) privacyMetadataHandler(c *fiber.Ctx) error {
	return c.JSON(svc.privacy.Metadata())
}

// privacyContextsHandler lists the contexts holding data for a user.
func (svc *service) privacyContextsHandler(c *fiber.Ctx) error {
	uid, err := strconv.ParseInt(c.Params("uid"), 10, 64)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("invalid user id: %v", err), withStatus(fiber.StatusBadRequest))
	}
	contexts, err := svc.privacy.ContextsForUser(c.Context(), uid)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not get contexts: %v", err))
	}
	if contexts == nil {
		contexts = []privacy.Context{}
	}
	return c.JSON(contexts)
}

// privacyUsersHandler lists the users holding data in a context given
// by the id, level and instanceid query parameters.
func (svc *service) privacyUsersHandler(c *fiber.Ctx) error {
	pc := privacy.Context{
		ID:         int64(c.QueryInt("id")),
		Level:      c.QueryInt("level"),
		InstanceID: int64(c.QueryInt("instanceid")),
	}
	users, err := svc.privacy.UsersInContext(c.Context(), pc)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not get users: %v", err))
	}
	if users == nil {
		users = []int64{}
	}
	return c.JSON(users)
}

// privacyExportHandler exports an approved user's data to a new
// directory below the export directory.
func (svc *service) privacyExportHandler(c *fiber.Ctx) error {
	var list privacy.ApprovedContextList
	err := c.BodyParser(&list)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("invalid export request: %v", err), withStatus(fiber.StatusBadRequest))
	}
	w, err := privacy.NewFileWriter(svc.cfg.exportDir)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	err = svc.privacy.ExportUserData(c.Context(), list, w)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not export user %d: %v", list.UserID, err))
	}
	svc.log.Info("exported user data", "user", list.UserID, "dir", w.Dir)
	return c.JSON(fiber.Map{"dir": w.Dir})
}

// deleteRequest selects one of the privacy delete operations. A context
// with users deletes those users' data in it, a context alone deletes
// all data in it and otherwise an approved user's data is deleted.
type deleteRequest struct {
	Context    *privacy.Context `json:"context"`
	UserIDs    []int64          `json:"userids"`
	UserID     int64            `json:"userid"`
	ContextIDs []int64          `json:"contextids"`
}

// privacyDeleteHandler deletes personal data.
func (svc *service) privacyDeleteHandler(c *fiber.Ctx) error {
	var req deleteRequest
	err := c.BodyParser(&req)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("invalid delete request: %v", err), withStatus(fiber.StatusBadRequest))
	}

	ctx := c.Context()
	switch {
	case req.Context != nil && len(req.UserIDs) > 0:
		err = svc.privacy.DeleteDataForUsers(ctx, privacy.ApprovedUserList{Context: *req.Context, UserIDs: req.UserIDs})
	case req.Context != nil:
		err = svc.privacy.DeleteDataForAllUsersInContext(ctx, *req.Context)
	default:
		err = svc.privacy.DeleteDataForUser(ctx, privacy.ApprovedContextList{UserID: req.UserID, ContextIDs: req.ContextIDs})
	}
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not delete data: %v", err))
	}
	svc.log.Info("deleted user data", "request", fmt.Sprintf("%+v", req))
	return c.SendStatus(fiber.StatusNoContent)
}
