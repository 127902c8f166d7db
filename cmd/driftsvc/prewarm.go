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
	"time"

	"github.com/robfig/cron/v3"
)

// prewarmSpec runs at 05:00 on the first day of each month.
const prewarmSpec = "0 5 1 * *"

// prewarmTimeout bounds a single pre-warm run.
const prewarmTimeout = 5 * time.Minute

// startPrewarm schedules the monthly computation of last month's usage
// figures into the shared cache.
func (svc *service) startPrewarm() error {
	svc.cron = cron.New()
	_, err := svc.cron.AddFunc(prewarmSpec, svc.prewarm)
	if err != nil {
		return err
	}
	svc.cron.Start() // We will not stop the cron.
	svc.log.Info("scheduled usage pre-warm", "spec", prewarmSpec)
	return nil
}

// prewarm computes last month's usage figures into the shared cache.
func (svc *service) prewarm() {
	ctx, cancel := context.WithTimeout(context.Background(), prewarmTimeout)
	defer cancel()
	counts, err := svc.usage.Refresh(ctx, svc.shared, time.Now())
	if err != nil {
		svc.log.Error("usage pre-warm failed", "error", err)
		return
	}
	svc.log.Info("pre-warmed usage figures", "active", counts[0], "registered", counts[1])
}
