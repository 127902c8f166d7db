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

package backend

import (
	"context"
	"fmt"
	"net/http"
	"reflect"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
)

// Handler is an interface used to abstract the functionality of different HTTP frameworks.
type Handler interface {
	// FormValue returns the value for the given field in a http form if it exists.
	FormValue(string) string

	// Context returns a context value which implements the context.Context interface.
	Context() context.Context

	// LoadSession returns a Session based on the given id.
	LoadSession(string) (Session, error)

	// SaveSession saves the passed Session to the session store.
	SaveSession(Session) error
}

// FiberHandler is a fiber based implementation of the Handler interface.
//
// NOTE: FiberHandler uses FiberSessions and stores them in client side cookies
// which should be encrypted, e.g., with the encryptcookie middleware.
type FiberHandler struct {
	Ctx *fiber.Ctx
}

// NewFiberHandler creates a new FiberHandler for the request.
func NewFiberHandler(c *fiber.Ctx) *FiberHandler {
	return &FiberHandler{c}
}

// FormValue returns the form value of the attached *fiber.Ctx.
func (h *FiberHandler) FormValue(key string) string {
	return h.Ctx.FormValue(key)
}

// Context returns the request context of the attached *fiber.Ctx.
func (h *FiberHandler) Context() context.Context {
	return h.Ctx.Context()
}

// LoadSession returns the session stored in the cookie named id. A
// cookie that cannot be decoded yields an empty session and an error.
func (h *FiberHandler) LoadSession(id string) (Session, error) {
	return NewFiberSession(id, h.Ctx.Cookies(id))
}

// SaveSession writes the session cookie to the response.
func (h *FiberHandler) SaveSession(session Session) error {
	fs, ok := session.(*FiberSession)
	if !ok {
		return fmt.Errorf("incompatible session type, wanted FiberSession, got %v", reflect.TypeOf(session))
	}
	h.Ctx.Cookie(fs.cookie)
	return nil
}

// NetHandler is a net/http based implementation of the Handler interface.
//
// NOTE: NetHandler uses GorillaSessions.
type NetHandler struct {
	w     http.ResponseWriter
	r     *http.Request
	store *sessions.CookieStore
}

// NewNetHandler creates a new NetHandler for the request.
func NewNetHandler(w http.ResponseWriter, r *http.Request, store *sessions.CookieStore) *NetHandler {
	return &NetHandler{w, r, store}
}

// NewCookieStore returns a gorilla cookie store authenticated with key.
// An empty key generates a random one, so sessions do not survive a
// restart.
func NewCookieStore(key string) *sessions.CookieStore {
	k := []byte(key)
	if len(k) == 0 {
		k = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(k)
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// FormValue returns the form value of the attached request.
func (h *NetHandler) FormValue(key string) string {
	return h.r.FormValue(key)
}

// Context returns the context of the attached request.
func (h *NetHandler) Context() context.Context {
	return h.r.Context()
}

// LoadSession returns the gorilla session named id.
func (h *NetHandler) LoadSession(id string) (Session, error) {
	sess, err := h.store.Get(h.r, id)
	if err != nil {
		return NewGorillaSession(sess), fmt.Errorf("unable to get session with ID: %s: %w", id, err)
	}
	return NewGorillaSession(sess), nil
}

// SaveSession saves a gorilla session to the response.
func (h *NetHandler) SaveSession(session Session) error {
	gs, ok := session.(*GorillaSession)
	if !ok {
		return fmt.Errorf("incompatible session type, wanted GorillaSession, got %v", reflect.TypeOf(session))
	}
	return h.store.Save(h.r, h.w, gs.session)
}
