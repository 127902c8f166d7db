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
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
)

// VendorURL is the base URL of Drift's hosted scripts.
const VendorURL = "https://js.driftt.com"

// scriptPeriod is the granularity, in milliseconds, of the cache
// busting timestamp in script URLs.
const scriptPeriod = 300000

// scriptStamp rounds t up to the next script period, in milliseconds.
func scriptStamp(t time.Time) int64 {
	ms := t.UnixMilli()
	return (ms + scriptPeriod - 1) / scriptPeriod * scriptPeriod
}

// ScriptURL returns the URL of the widget loader for a client key.
func ScriptURL(base, key string, t time.Time) string {
	return fmt.Sprintf("%s/include/%d/%s.js", base, scriptStamp(t), url.PathEscape(key))
}

// EmbedURL returns the URL of the widget configuration for a client
// key. It only exists for valid keys.
func EmbedURL(base, key string, t time.Time) string {
	return fmt.Sprintf("%s/embeds/%d/%s.json", base, scriptStamp(t), url.PathEscape(key))
}

// Checker verifies client keys against Drift. Failed checks are not
// retried.
type Checker struct {
	client  *resty.Client
	baseURL string
	now     func() time.Time
}

// NewChecker returns a Checker for the Drift service at baseURL.
func NewChecker(baseURL string, timeout time.Duration) *Checker {
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")
	return &Checker{client: client, baseURL: baseURL, now: time.Now}
}

// Check fetches the widget configuration for key. Any transport error
// or non-success status yields ErrConnectionNotVerified.
func (c *Checker) Check(ctx context.Context, key string) error {
	if key == "" {
		return ErrNoClientKey
	}
	resp, err := c.client.R().SetContext(ctx).Get(EmbedURL(c.baseURL, key, c.now()))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionNotVerified, err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("%w: status %d", ErrConnectionNotVerified, resp.StatusCode())
	}
	return nil
}

// LoaderURL returns the widget loader URL for key at the current time.
func (c *Checker) LoaderURL(key string) string {
	return ScriptURL(c.baseURL, key, c.now())
}

// Verify checks key and returns the action that loads the widget and
// shows the welcome message.
func (c *Checker) Verify(ctx context.Context, key string) (*Action, error) {
	err := c.Check(ctx, key)
	if err != nil {
		return nil, err
	}
	return &Action{Script: ScriptModule, Method: MethodTestConnection, Args: []interface{}{key}}, nil
}
