/*
DESCRIPTION
  Package backend abstracts HTTP frameworks and their sessions so that
  session-scoped state can be kept the same way under Fiber and
  net/http.

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
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/sessions"
)

// ErrNoSuchKey is returned by Session.Get when the key is not set.
var ErrNoSuchKey = errors.New("no such session key")

// Session defines an interface for a session to keep track of per-user
// state between requests.
type Session interface {
	// SetMaxAge sets the Max Age of the session, after which the session is
	// no longer valid.
	SetMaxAge(age time.Duration) error

	// Set sets a key value store in the session.
	Set(key string, value any) error

	// Get retrieves the value for a given key in the session and stores it
	// in the destination, or returns ErrNoSuchKey.
	Get(key string, dst any) error

	// Delete removes a key from the session.
	Delete(key string) error
}

// FiberSession implements the Session interface using a Fiber Cookie based
// storage method. Values are stored as JSON.
type FiberSession struct {
	cookie *fiber.Cookie              // Cookie used to store the session.
	values map[string]json.RawMessage // Map of the key value pairs to be encoded into the session.
}

// NewFiberSession creates a new FiberSession with the given id, decoding
// value if it is not empty.
func NewFiberSession(id, value string) (*FiberSession, error) {
	s := &FiberSession{
		cookie: &fiber.Cookie{Name: id, Path: "/", HTTPOnly: true, SameSite: fiber.CookieSameSiteLaxMode},
		values: make(map[string]json.RawMessage),
	}

	if value == "" {
		return s, nil
	}

	ckValue, err := url.QueryUnescape(value)
	if err != nil {
		return s, fmt.Errorf("unable to unescape cookie value: %w", err)
	}
	err = json.Unmarshal([]byte(ckValue), &s.values)
	if err != nil {
		s.values = make(map[string]json.RawMessage)
		return s, fmt.Errorf("unable to unmarshal value: %w", err)
	}
	s.cookie.Value = value
	return s, nil
}

// SetMaxAge sets the maximum age of the cookie.
func (s *FiberSession) SetMaxAge(age time.Duration) error {
	s.cookie.MaxAge = int(age.Seconds())
	return nil
}

// Set encodes value as JSON and stores it under key.
func (s *FiberSession) Set(key string, value any) error {
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to marshal value to json: %w", err)
	}
	s.values[key] = json.RawMessage(v)
	return s.encode()
}

// Get decodes the value stored under key into dst.
func (s *FiberSession) Get(key string, dst any) error {
	v, ok := s.values[key]
	if !ok {
		return ErrNoSuchKey
	}
	return json.Unmarshal(v, dst)
}

// Delete removes key from the session.
func (s *FiberSession) Delete(key string) error {
	delete(s.values, key)
	return s.encode()
}

func (s *FiberSession) encode() error {
	bytes, err := json.Marshal(s.values)
	if err != nil {
		return err
	}
	s.cookie.Value = url.QueryEscape(string(bytes))
	return nil
}

// GorillaSession implements the Session interface using Gorilla Sessions.
// Values are stored as JSON strings so that any type round-trips
// without gob registration.
type GorillaSession struct {
	session *sessions.Session
}

// NewGorillaSession wraps a gorilla session.
func NewGorillaSession(session *sessions.Session) *GorillaSession {
	return &GorillaSession{session: session}
}

// SetMaxAge sets the maximum age of the cookie.
func (s *GorillaSession) SetMaxAge(maxAge time.Duration) error {
	s.session.Options.MaxAge = int(maxAge.Seconds())
	return nil
}

// Set encodes value as JSON and stores it under key.
func (s *GorillaSession) Set(key string, value any) error {
	v, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("unable to marshal value to json: %w", err)
	}
	s.session.Values[key] = string(v)
	return nil
}

// Get decodes the value stored under key into dst.
func (s *GorillaSession) Get(key string, dst any) error {
	v, ok := s.session.Values[key]
	if !ok {
		return ErrNoSuchKey
	}
	str, ok := v.(string)
	if !ok {
		return fmt.Errorf("unexpected session value type %T for key %s", v, key)
	}
	return json.Unmarshal([]byte(str), dst)
}

// Delete removes key from the session.
func (s *GorillaSession) Delete(key string) error {
	delete(s.session.Values, key)
	return nil
}
