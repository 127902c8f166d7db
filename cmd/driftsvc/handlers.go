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
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/ausocean/openfish/datastore"
	"github.com/gofiber/fiber/v2"

	"github.com/open-lms-open-source/moodle-local-drift/auth"
	"github.com/open-lms-open-source/moodle-local-drift/backend"
	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/model"
)

// Request locals and session keys.
const (
	localUser      = "user"
	sessionUserKey = "uid"
)

// Subscription form field.
const fieldSubscription = "drift_usersubscription"

// Profile navigation link.
const (
	navURL   = "/subscription"
	navLabel = "Drift subscription"
)

// footerTemplate renders an action as an inline script for pages that
// are rendered on the server.
var footerTemplate = template.Must(template.New("footer").Parse(`{{if .}}<script>
require([{{.Script}}], function(drift) { drift[{{.Method}}].apply(drift, {{.Args}}); });
</script>
{{end}}`))

// userFor returns the user named by a host token, or nil for guests
// and users the datastore does not know.
func (svc *service) userFor(ctx context.Context, token string) (*model.User, error) {
	claims, err := auth.Parse(token, svc.jwtSecret)
	if err != nil {
		return nil, err
	}
	if claims.UserID == 0 {
		return nil, nil
	}
	user, err := model.GetUser(ctx, svc.store, claims.UserID)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		svc.log.Warning("token for unknown user", "user", claims.UserID)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not get user %d: %w", claims.UserID, err)
	}
	return user, nil
}

// authenticate resolves the user a request is made for. Requests
// without a valid host token are rejected.
func (svc *service) authenticate(c *fiber.Ctx) error {
	user, err := svc.userFor(c.Context(), c.Get(fiber.HeaderAuthorization))
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not authenticate: %v", err), withStatus(fiber.StatusUnauthorized))
	}
	c.Locals(localUser, user)
	return c.Next()
}

// currentUser returns the authenticated user, or nil for guests.
func currentUser(c *fiber.Ctx) *model.User {
	user, _ := c.Locals(localUser).(*model.User)
	return user
}

// userID returns the ID of user, or 0 for guests.
func userID(user *model.User) int64 {
	if user == nil {
		return 0
	}
	return user.ID
}

// loadCache returns the session named name and the Drift cache it holds.
// A cache left by a different user is discarded.
func (svc *service) loadCache(h backend.Handler, name string, user *model.User) (backend.Session, *drift.SessionCache, error) {
	sess, err := h.LoadSession(name)
	if err != nil {
		svc.log.Debug("starting new session", "error", err)
	}
	var uid int64
	err = sess.Get(sessionUserKey, &uid)
	if err != nil || uid != userID(user) {
		err = sess.Delete(drift.Namespace)
		if err != nil {
			return nil, nil, fmt.Errorf("could not reset session: %w", err)
		}
		err = sess.Set(sessionUserKey, userID(user))
		if err != nil {
			return nil, nil, fmt.Errorf("could not set session user: %w", err)
		}
	}
	return sess, svc.engine.SessionCache(sess), nil
}

// saveCache writes the cache back to the response.
func (svc *service) saveCache(h backend.Handler, sess backend.Session, sc *drift.SessionCache) error {
	err := sc.Save()
	if err != nil {
		return fmt.Errorf("could not save cache: %w", err)
	}
	err = sess.SetMaxAge(sessionMaxAge)
	if err != nil {
		return fmt.Errorf("could not set session age: %w", err)
	}
	return h.SaveSession(sess)
}

// beforeFooter makes the page view decision using the cache held in the
// named session.
func (svc *service) beforeFooter(h backend.Handler, name string, user *model.User) (drift.Decision, error) {
	sess, sc, err := svc.loadCache(h, name, user)
	if err != nil {
		return drift.Decision{Outcome: drift.Silent}, err
	}
	d, err := svc.engine.BeforeFooter(h.Context(), sc, user)
	if err != nil {
		return d, err
	}
	return d, svc.saveCache(h, sess, sc)
}

// widgetHandler returns the page view decision as JSON.
func (svc *service) widgetHandler(c *fiber.Ctx) error {
	d, err := svc.beforeFooter(backend.NewFiberHandler(c), sessionName, currentUser(c))
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not decide widget: %v", err))
	}
	return c.JSON(d)
}

// embedHandler renders the page view decision as an inline script.
func (svc *service) embedHandler(w http.ResponseWriter, r *http.Request) {
	user, err := svc.userFor(r.Context(), r.Header.Get(fiber.HeaderAuthorization))
	if err != nil {
		svc.log.Warning("could not authenticate embed", "error", err)
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return
	}
	d, err := svc.beforeFooter(backend.NewNetHandler(w, r, svc.cookies), embedSessionName, user)
	if err != nil {
		svc.log.Error("could not decide embed", "error", err)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err = footerTemplate.Execute(w, d.Action)
	if err != nil {
		svc.log.Error("could not render embed", "error", err)
	}
}

// navHandler reports whether the profile shows the subscription link.
func (svc *service) navHandler(c *fiber.Ctx) error {
	user := currentUser(c)
	h := backend.NewFiberHandler(c)
	sess, sc, err := svc.loadCache(h, sessionName, user)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	show, err := svc.engine.ShowSubscriptionLink(c.Context(), sc, user)
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not check subscription link: %v", err))
	}
	err = svc.saveCache(h, sess, sc)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	res := fiber.Map{"show": show}
	if show {
		res["url"] = navURL
		res["label"] = navLabel
	}
	return c.JSON(res)
}

// subscriptionResponse is returned by the subscription routes.
type subscriptionResponse struct {
	Subscribed bool          `json:"subscribed"`
	Policy     string        `json:"policy"`
	Outcome    drift.Outcome `json:"outcome"`
	Action     *drift.Action `json:"action,omitempty"`
}

// subscriptionHandler returns the user's subscription choice.
func (svc *service) subscriptionHandler(c *fiber.Ctx) error {
	user := currentUser(c)
	h := backend.NewFiberHandler(c)
	sess, sc, err := svc.loadCache(h, sessionName, user)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	subscribed, err := svc.engine.Subscription(c.Context(), sc, user)
	if errors.Is(err, drift.ErrInvalidUser) {
		return svc.logAndReturnError(c, err.Error(), withStatus(fiber.StatusForbidden), withUserMessage("Guests cannot subscribe to Drift."))
	}
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not get subscription: %v", err))
	}
	err = svc.saveCache(h, sess, sc)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	return c.JSON(subscriptionResponse{Subscribed: subscribed, Policy: drift.MsgSubscriptionPolicy, Outcome: drift.Silent})
}

// updateSubscriptionHandler records the user's choice. Subscribing
// returns the identify action.
func (svc *service) updateSubscriptionHandler(c *fiber.Ctx) error {
	user := currentUser(c)
	h := backend.NewFiberHandler(c)
	subscribed, err := strconv.ParseBool(h.FormValue(fieldSubscription))
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("invalid %s: %v", fieldSubscription, err), withStatus(fiber.StatusBadRequest))
	}

	sess, sc, err := svc.loadCache(h, sessionName, user)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	d, err := svc.engine.UpdateSubscription(c.Context(), sc, user, subscribed)
	if errors.Is(err, drift.ErrInvalidUser) {
		return svc.logAndReturnError(c, err.Error(), withStatus(fiber.StatusForbidden), withUserMessage("Guests cannot subscribe to Drift."))
	}
	if err != nil {
		return svc.logAndReturnError(c, fmt.Sprintf("could not update subscription: %v", err))
	}
	err = svc.saveCache(h, sess, sc)
	if err != nil {
		return svc.logAndReturnError(c, err.Error())
	}
	svc.log.Info("updated subscription", "user", user.ID, "subscribed", subscribed)
	return c.JSON(subscriptionResponse{Subscribed: subscribed, Policy: drift.MsgSubscriptionPolicy, Outcome: d.Outcome, Action: d.Action})
}
