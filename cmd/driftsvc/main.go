/*
DESCRIPTION
  driftsvc decides, for every page view of the host LMS, whether the
  Drift chat widget is loaded and whether the user is identified to
  Drift. It also serves subscription management, plugin settings and
  privacy requests.

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

// driftsvc is the Drift integration service for the host LMS.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/ausocean/openfish/datastore"
	"github.com/ausocean/utils/logging"
	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	flog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/encryptcookie"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gorilla/sessions"
	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/open-lms-open-source/moodle-local-drift/auth"
	"github.com/open-lms-open-source/moodle-local-drift/backend"
	"github.com/open-lms-open-source/moodle-local-drift/drift"
	"github.com/open-lms-open-source/moodle-local-drift/hostdb"
	"github.com/open-lms-open-source/moodle-local-drift/kv"
	"github.com/open-lms-open-source/moodle-local-drift/model"
	"github.com/open-lms-open-source/moodle-local-drift/privacy"
)

// Project constants.
const (
	projectID        = "driftsvc"
	version          = "v1.2.0"
	sessionName      = "local_drift"
	embedSessionName = "local_drift_embed"
	sessionMaxAge    = 12 * time.Hour
)

// Logging constants.
const (
	logMaxSize   = 100 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logSuppress  = false
)

// service defines the properties of our web service.
type service struct {
	setupMutex sync.Mutex
	cfg        *config
	log        logging.Logger
	store      datastore.Store
	hostDB     *hostdb.DB
	shared     kv.KV // Nil when usage figures are cached per session.
	engine     *drift.Engine
	usage      *drift.UsageCache
	privacy    *privacy.Provider
	checker    *drift.Checker
	cron       *cron.Cron
	jwtSecret  []byte
	cookieKey  []byte
	cookies    *sessions.CookieStore
}

func main() {
	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := newLogger(cfg)

	ctx := context.Background()
	secrets, err := auth.GetSecrets(ctx, projectID, []string{auth.SecretJWT, auth.SecretCookie})
	if err != nil {
		log.Fatal("could not get secrets", "error", err)
	}
	jwtSecret, err := auth.HexSecret(secrets, auth.SecretJWT)
	if err != nil {
		log.Fatal("could not decode JWT secret", "error", err)
	}
	cookieKey, err := base64.StdEncoding.DecodeString(secrets[auth.SecretCookie])
	if err != nil {
		log.Fatal("could not decode cookie secret", "error", err)
	}
	if len(cookieKey) != 16 && len(cookieKey) != 24 && len(cookieKey) != 32 {
		log.Fatal("cookie secret has invalid length", "length", len(cookieKey))
	}

	svc := &service{cfg: cfg, log: log, jwtSecret: jwtSecret, cookieKey: cookieKey}
	err = svc.setup(ctx, secrets)
	if err != nil {
		log.Fatal("could not set up service", "error", err)
	}
	if cfg.prewarm {
		err = svc.startPrewarm()
		if err != nil {
			log.Fatal("could not schedule usage pre-warm", "error", err)
		}
	}

	app := svc.newApp()
	listenOn := fmt.Sprintf("%s:%d", cfg.host, cfg.port)
	log.Info("starting web server", "address", listenOn, "version", version)
	err = app.Listen(listenOn)
	log.Fatal("web server stopped", "error", err)
}

// newLogger returns a logger writing to stderr and, when a log path is
// configured, to a rotated log file.
func newLogger(cfg *config) logging.Logger {
	w := io.Writer(os.Stderr)
	if cfg.logPath != "" {
		fileLog := &lumberjack.Logger{
			Filename:   cfg.logPath,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackup,
			MaxAge:     logMaxAge,
		}
		w = io.MultiWriter(os.Stderr, fileLog)
	}
	level := logging.Info
	if cfg.debug {
		level = logging.Debug
	}
	return logging.New(level, w, logSuppress)
}

// setup executes per-instance one-time warmup and is used to
// initialize the service.
func (svc *service) setup(ctx context.Context, secrets map[string]string) error {
	svc.setupMutex.Lock()
	defer svc.setupMutex.Unlock()

	if svc.store != nil {
		return nil
	}

	var err error
	if svc.cfg.standalone {
		svc.log.Info("running in standalone mode", "filestore", svc.cfg.storePath)
		svc.store, err = datastore.NewStore(ctx, "file", projectID, svc.cfg.storePath)
	} else {
		svc.log.Info("running in cloud mode")
		svc.store, err = datastore.NewStore(ctx, "cloud", projectID, "")
	}
	if err != nil {
		return fmt.Errorf("could not set up datastore: %w", err)
	}
	model.RegisterEntities()

	err = svc.upgrade(ctx)
	if err != nil {
		return err
	}

	var roles drift.RoleSource = drift.StoreRoles{Store: svc.store}
	var reporter drift.Reporter = drift.StoreReporter{Store: svc.store}
	var contexts privacy.ContextSource
	if dsn := secrets[auth.SecretHostDSN]; dsn != "" {
		svc.hostDB, err = hostdb.Open(ctx, dsn, svc.cfg.hostPrefix)
		if err != nil {
			return err
		}
		svc.log.Info("using host database", "prefix", svc.cfg.hostPrefix)
		roles, reporter, contexts = svc.hostDB, svc.hostDB, svc.hostDB
	}

	switch {
	case svc.cfg.redisAddr != "":
		c := redis.NewClient(&redis.Options{Addr: svc.cfg.redisAddr, Password: secrets[auth.SecretRedisPassword]})
		r := kv.NewRedisKV(c, svc.cfg.redisPrefix)
		err = r.Ping(ctx)
		if err != nil {
			return fmt.Errorf("could not connect to redis at %s: %w", svc.cfg.redisAddr, err)
		}
		svc.log.Info("using redis for usage figures", "address", svc.cfg.redisAddr)
		svc.shared = r
	case svc.cfg.prewarm:
		svc.shared = kv.NewMemoryKV()
	}

	svc.wire(roles, reporter, contexts)
	return nil
}

// wire creates the engine and its collaborators. contexts may be nil.
func (svc *service) wire(roles drift.RoleSource, reporter drift.Reporter, contexts privacy.ContextSource) {
	svc.usage = drift.NewUsageCache(reporter, svc.shared)
	svc.engine = drift.NewEngine(svc.store, roles, svc.cfg.site, svc.usage, svc.log)
	svc.privacy = privacy.NewProvider(svc.store, contexts)
	svc.checker = drift.NewChecker(svc.cfg.driftURL, svc.cfg.checkTimeout)
	svc.cookies = backend.NewCookieStore(string(svc.cookieKey))
	svc.cookies.Options.MaxAge = int(sessionMaxAge.Seconds())
}

// upgrade brings the stored data model up to date.
func (svc *service) upgrade(ctx context.Context) error {
	v, err := model.InstalledVersion(ctx, svc.store)
	if err != nil {
		return fmt.Errorf("could not get installed version: %w", err)
	}
	nv, err := model.Upgrade(ctx, svc.store, v)
	if err != nil {
		return fmt.Errorf("could not upgrade from %d: %w", v, err)
	}
	if nv != v {
		svc.log.Info("upgraded data model", "from", v, "to", nv)
	}
	return nil
}

// newApp returns the fiber app serving all routes.
func (svc *service) newApp() *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: svc.errorHandler, ReadBufferSize: 8192})

	// Encrypt cookies.
	// NOTE: This must be done before any middleware which uses cookies.
	app.Use(encryptcookie.New(encryptcookie.Config{
		Key:    base64.StdEncoding.EncodeToString(svc.cookieKey),
		Except: []string{embedSessionName},
	}))

	// Recover from panics.
	app.Use(recover.New())

	// CORS middleware. Only the site itself embeds the widget.
	app.Use(cors.New(cors.Config{
		AllowOrigins:     svc.cfg.site.WWWRoot,
		AllowCredentials: true,
	}))

	if svc.cfg.debug {
		flog.SetLevel(flog.LevelDebug)
		app.Use(func(c *fiber.Ctx) error {
			flog.Debug(c.Method(), " ", c.Path())
			return c.Next()
		})
	}

	registerRoutes(app, svc)
	return app
}

func registerRoutes(app *fiber.App, svc *service) {
	v1 := app.Group("/api/v1")
	v1.Get("/version", svc.versionHandler)
	v1.Get("/widget", svc.authenticate, svc.widgetHandler)
	v1.Get("/profile/nav", svc.authenticate, svc.navHandler)

	app.Get("/embed/footer", adaptor.HTTPHandlerFunc(svc.embedHandler))

	app.Group("/subscription", svc.authenticate).
		Get("", svc.subscriptionHandler).
		Post("", svc.updateSubscriptionHandler)

	admin := app.Group("/admin", svc.authenticate, svc.requireAdmin)
	admin.Get("/settings", svc.settingsHandler)
	admin.Post("/settings", svc.updateSettingsHandler)
	admin.Post("/testconnection", svc.testConnectionHandler)

	admin.Group("/privacy").
		Get("/metadata", svc.privacyMetadataHandler).
		Get("/contexts/:uid", svc.privacyContextsHandler).
		Get("/users", svc.privacyUsersHandler).
		Post("/export", svc.privacyExportHandler).
		Post("/delete", svc.privacyDeleteHandler)
}

// versionHandler writes the service name and version.
func (svc *service) versionHandler(c *fiber.Ctx) error {
	return c.SendString(projectID + " " + version)
}

// errorHandler logs errors not handled by a route.
func (svc *service) errorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(fiber.Map{"message": fe.Message})
	}
	return svc.logAndReturnError(c, err.Error())
}

type loggingErrorOption func(c *fiber.Ctx, m map[string]string) error

// withStatus sets the status of the response.
func withStatus(status int) loggingErrorOption {
	return func(c *fiber.Ctx, m map[string]string) error {
		c.Status(status)
		return nil
	}
}

// withUserMessage updates the message that will be sent to the frontend,
// this is intended for user readable messages.
func withUserMessage(userMsg string) loggingErrorOption {
	return func(c *fiber.Ctx, m map[string]string) error {
		m["user-message"] = userMsg
		return nil
	}
}

// logAndReturnError logs the passed message as an error and returns a response to the client.
// The response code defaults to internal server error (500) and the message defaults to the status text.
func (svc *service) logAndReturnError(c *fiber.Ctx, message string, opts ...loggingErrorOption) error {
	c.Status(fiber.StatusInternalServerError)
	m := make(map[string]string)
	m["error"] = message
	for i, opt := range opts {
		err := opt(c, m)
		if err != nil {
			svc.log.Error("error applying option", "index", i, "error", err)
		}
	}
	status := c.Response().StatusCode()
	m["message"] = http.StatusText(status)
	if status >= fiber.StatusInternalServerError {
		svc.log.Error(message, "path", c.Path())
	} else {
		svc.log.Warning(message, "path", c.Path(), "status", status)
	}
	return c.JSON(m)
}
