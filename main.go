package main

import (
	"context"
	"embed"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"golang.org/x/crypto/acme/autocert"

	"raceinfo/config"
	"raceinfo/db"
	"raceinfo/handlers"
	"raceinfo/live"
	applog "raceinfo/logger"
	"raceinfo/registry"
)

//go:embed all:static/*
var embeddedFiles embed.FS

func main() {
	cfg := config.Load()
	logger, err := applog.New(cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	reg := registry.New()

	var store *db.Store
	if cfg.DBDriver != "memory" {
		bdb := db.Setup(cfg)
		defer bdb.Close()

		if err := db.CreateTables(context.Background(), bdb); err != nil {
			logger.Fatal("create tables failed", zap.Error(err))
		}
		store = db.NewStore(bdb)

		races, racers, parts, err := store.Load(context.Background())
		if err != nil {
			logger.Fatal("load database failed", zap.Error(err))
		}
		if err := reg.Restore(races, racers, parts); err != nil {
			logger.Fatal("restore state failed", zap.Error(err))
		}
		logger.Info("state loaded",
			zap.Int("races", len(races)),
			zap.Int("racers", len(racers)),
			zap.Int("participations", len(parts)),
		)
	}

	hub := live.NewHub(cfg.KioskChipTTL, logger)
	go hub.Run(context.Background())

	h := handlers.New(reg, store, hub)

	e := echo.New()
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod: true,
		LogURI:    true,
		LogStatus: true,
		LogError:  true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.Int("status", v.Status),
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			switch {
			case v.Status >= 500:
				logger.Error("http request", fields...)
			case v.Status >= 400:
				logger.Warn("http request", fields...)
			default:
				logger.Info("http request", fields...)
			}
			return nil
		},
	}))
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"*"},
		AllowCredentials: true,
	}))

	e.GET("/health", h.Health)
	e.GET("/ws", echo.WrapHandler(hub.Handler()))

	api := e.Group("/api")
	api.POST("/tag", h.Tag)
	api.GET("/chips/:chipID", h.Chips)

	api.GET("/races", h.Races)
	api.POST("/races", h.CreateRace)
	api.GET("/races/:raceID", h.GetRace)
	api.DELETE("/races/:raceID", h.DeleteRace)

	api.GET("/races/:raceID/participants", h.Participants)
	api.POST("/races/:raceID/participants", h.Enroll)
	api.GET("/races/:raceID/participants/:racerID", h.GetParticipation)
	api.PUT("/races/:raceID/participants/:racerID", h.UpdateParticipant)
	api.DELETE("/races/:raceID/participants/:racerID", h.Withdraw)

	api.GET("/racers", h.Racers)
	api.POST("/racers", h.CreateRacer)
	api.GET("/racers/:racerID", h.GetRacer)
	api.DELETE("/racers/:racerID", h.DeleteRacer)

	// Strip the "static/" prefix so URLs work correctly
	subFS, err := fs.Sub(embeddedFiles, "static")
	if err != nil {
		logger.Fatal("open embedded static fs failed", zap.Error(err))
	}
	fileServer := http.FileServer(http.FS(subFS))

	// The reader wrapper page keeps its legacy path.
	e.GET("/wrapper", func(c echo.Context) error {
		f, err := subFS.Open("kiosk_wrapper.html")
		if err != nil {
			return c.NoContent(http.StatusNotFound)
		}
		defer f.Close()
		return c.Stream(http.StatusOK, "text/html", f)
	})

	e.GET("/*", func(c echo.Context) error {
		path := c.Request().URL.Path

		// If request is for a static file, serve it
		if strings.Contains(path, ".") { // Matches JS, CSS, images, etc.
			http.StripPrefix("/", fileServer).ServeHTTP(c.Response(), c.Request())
			return nil
		}
		// Otherwise serve the kiosk screen
		indexFile, err := subFS.Open("index.html")
		if err != nil {
			return c.NoContent(http.StatusNotFound)
		}
		defer indexFile.Close()

		return c.Stream(http.StatusOK, "text/html", indexFile)
	})

	if cfg.Debug || len(cfg.TLSDomains) == 0 {
		mode := "debug"
		if !cfg.Debug {
			mode = "http"
		}
		logger.Info("starting server", zap.String("mode", mode), zap.String("addr", cfg.Port))
		if err := e.Start(cfg.Port); err != nil {
			logger.Fatal("server exited", zap.Error(err))
		}
		return
	}

	autoTLS := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Cache:      autocert.DirCache(".cache"),
		HostPolicy: autocert.HostWhitelist(cfg.TLSDomains...),
	}

	s := &http.Server{
		Addr:         ":443",
		Handler:      e,
		TLSConfig:    autoTLS.TLSConfig(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  15 * time.Second,
	}

	if err := s.ListenAndServeTLS("", ""); err != http.ErrServerClosed {
		logger.Error("tls server exited", zap.Error(err))
		os.Exit(1)
	}
}
