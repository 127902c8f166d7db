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
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/hostdb"
)

// Defaults.
const (
	defaultPort         = 8084
	defaultLogPath      = "/var/log/driftsvc/driftsvc.log"
	defaultCheckTimeout = 10 * time.Second
	defaultRedisPrefix  = "local_drift:"
)

// config holds the deployment configuration of the service.
type config struct {
	host       string
	port       int
	debug      bool
	standalone bool
	storePath  string
	logPath    string
	exportDir  string
	prewarm    bool

	site drift.Site

	driftURL     string
	checkTimeout time.Duration
	redisAddr    string
	redisPrefix  string
	hostPrefix   string
}

// parseConfig parses command line flags. Environment variables, read
// with getenv, provide defaults that flags override.
func parseConfig(args []string, getenv func(string) string) (*config, error) {
	env := func(key, def string) string {
		if v := getenv(key); v != "" {
			return v
		}
		return def
	}
	envInt := func(key string, def int64) (int64, error) {
		v := getenv(key)
		if v == "" {
			return def, nil
		}
		i, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", key, err)
		}
		return i, nil
	}

	port, err := envInt("PORT", defaultPort)
	if err != nil {
		return nil, err
	}
	users, err := envInt("DRIFT_LICENSED_USERS", 0)
	if err != nil {
		return nil, err
	}
	storage, err := envInt("DRIFT_LICENSED_STORAGE", 0)
	if err != nil {
		return nil, err
	}

	cfg := &config{}
	fs := flag.NewFlagSet("driftsvc", flag.ContinueOnError)
	fs.BoolVar(&cfg.debug, "debug", getenv("DEBUG") != "", "Run in debug mode.")
	fs.BoolVar(&cfg.standalone, "standalone", false, "Run in standalone mode with a file store.")
	fs.StringVar(&cfg.host, "host", "", "Host we listen on.")
	fs.IntVar(&cfg.port, "port", int(port), "Port we listen on.")
	fs.StringVar(&cfg.storePath, "filestore", "store", "File store path.")
	fs.StringVar(&cfg.logPath, "log", env("DRIFT_LOG_PATH", defaultLogPath), "Log file path, or empty for stderr only.")
	fs.StringVar(&cfg.exportDir, "exportdir", env("DRIFT_EXPORT_DIR", "exports"), "Privacy export directory.")
	fs.BoolVar(&cfg.prewarm, "prewarm", false, "Compute last month's usage figures on the first of each month.")
	fs.StringVar(&cfg.site.WWWRoot, "wwwroot", env("DRIFT_WWWROOT", ""), "Site URL reported to Drift.")
	fs.StringVar(&cfg.site.Lang, "lang", env("DRIFT_LANG", "en"), "Default language.")
	fs.Int64Var(&cfg.site.LicensedUsers, "licensedusers", users, "Purchased user seats, 0 when not licensed.")
	fs.Int64Var(&cfg.site.LicensedStorage, "licensedstorage", storage, "Purchased storage in KB, 0 when not licensed.")
	fs.StringVar(&cfg.driftURL, "drifturl", env("DRIFT_URL", drift.VendorURL), "Drift script host.")
	fs.DurationVar(&cfg.checkTimeout, "checktimeout", defaultCheckTimeout, "Connection test timeout.")
	fs.StringVar(&cfg.redisAddr, "redis", env("DRIFT_REDIS_ADDR", ""), "Redis address for shared usage figures.")
	fs.StringVar(&cfg.redisPrefix, "redisprefix", defaultRedisPrefix, "Redis key prefix.")
	fs.StringVar(&cfg.hostPrefix, "hostprefix", env("DRIFT_HOST_PREFIX", hostdb.DefaultPrefix), "Host database table prefix.")
	err = fs.Parse(args)
	if err != nil {
		return nil, err
	}

	if cfg.site.WWWRoot == "" {
		return nil, fmt.Errorf("missing wwwroot")
	}
	return cfg, nil
}
