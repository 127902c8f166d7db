/*
DESCRIPTION
  driftctl administers the Drift integration data: plugin settings,
  user subscriptions, privacy requests and data model upgrades.

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

// driftctl is the Drift integration admin tool.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/ausocean/openfish/datastore"
	"github.com/spf13/cobra"

	"github.com/open-lms-open-source/moodle-local-drift/hostdb"
	"github.com/open-lms-open-source/moodle-local-drift/model"
	"github.com/open-lms-open-source/moodle-local-drift/privacy"
)

const projectID = "driftsvc"

// app holds the state shared by all commands.
type app struct {
	storePath  string
	cloud      bool
	hostDSN    string
	hostPrefix string

	store    datastore.Store
	contexts privacy.ContextSource
}

func main() {
	if err := newRootCommand(&app{}).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "driftctl",
		Short:        "Administer the Drift integration",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd.Context())
		},
	}

	fs := cmd.PersistentFlags()
	fs.StringVar(&a.storePath, "filestore", "store", "file store path")
	fs.BoolVar(&a.cloud, "cloud", false, "use the cloud datastore instead of the file store")
	fs.StringVar(&a.hostDSN, "hostdsn", os.Getenv("DRIFT_HOST_DSN"), "host database DSN used to resolve user contexts")
	fs.StringVar(&a.hostPrefix, "hostprefix", hostdb.DefaultPrefix, "host database table prefix")

	cmd.AddCommand(settingsCommand(a), subscriptionCommand(a), privacyCommand(a), upgradeCommand(a))
	return cmd
}

// open connects to the datastore and, when configured, the host database.
func (a *app) open(ctx context.Context) error {
	if a.store == nil {
		var err error
		if a.cloud {
			a.store, err = datastore.NewStore(ctx, "cloud", projectID, "")
		} else {
			a.store, err = datastore.NewStore(ctx, "file", projectID, a.storePath)
		}
		if err != nil {
			return fmt.Errorf("could not open datastore: %w", err)
		}
		model.RegisterEntities()
	}
	if a.contexts == nil && a.hostDSN != "" {
		db, err := hostdb.Open(ctx, a.hostDSN, a.hostPrefix)
		if err != nil {
			return err
		}
		a.contexts = db
	}
	return nil
}

// parseUserID parses a user ID argument.
func parseUserID(s string) (int64, error) {
	uid, err := strconv.ParseInt(s, 10, 64)
	if err != nil || uid <= 0 {
		return 0, fmt.Errorf("invalid user id %q", s)
	}
	return uid, nil
}

// parseYesNo parses yes/no in addition to the forms accepted by strconv.ParseBool.
func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "yes", "y":
		return true, nil
	case "no", "n":
		return false, nil
	}
	return strconv.ParseBool(s)
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
