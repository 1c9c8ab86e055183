// Package app wires the configured components together and owns the server
// lifecycle.
package app

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glucolog/glucolog/internal/api"
	"github.com/glucolog/glucolog/internal/config"
	"github.com/glucolog/glucolog/internal/entries"
	"github.com/glucolog/glucolog/internal/metrics"
	"github.com/glucolog/glucolog/internal/nightscout"
	"github.com/glucolog/glucolog/internal/reminders"
	"github.com/glucolog/glucolog/internal/store"
	"go.uber.org/zap"
)

type App struct {
	Config  *config.Config
	Store   *store.Store
	Logger  *zap.Logger
	Version string
}

func New(cfg *config.Config, st *store.Store, logger *zap.Logger, version string) *App {
	return &App{
		Config:  cfg,
		Store:   st,
		Logger:  logger,
		Version: version,
	}
}

// RunServer starts the API server and the reminder scheduler, then blocks
// until SIGINT/SIGTERM and shuts everything down in order.
func (app *App) RunServer() {
	entryStore, err := entries.NewStore(app.Store.DB())
	if err != nil {
		app.Logger.Fatal("Failed to initialize entries store", zap.Error(err))
	}

	var syncer *nightscout.Syncer
	if app.Config.Nightscout.Enabled {
		client := nightscout.NewClient(app.Config.Nightscout.URL, app.Config.Nightscout.APISecret)
		syncer = nightscout.NewSyncer(client, entryStore, app.Store, app.Logger)
		app.Logger.Info("Nightscout import enabled", zap.String("url", app.Config.Nightscout.URL))
	}

	var reminderRunner *reminders.Runner
	if app.Config.Reminders.Enabled {
		reminderRunner = reminders.NewRunner(app.Config.Reminders, entryStore, store.DefaultUserID, app.Logger)
		if err := reminderRunner.Start(); err != nil {
			app.Logger.Error("Failed to start reminder scheduler", zap.Error(err))
			reminderRunner = nil
		} else {
			app.Logger.Info("Reminder scheduler started", zap.String("spec", app.Config.Reminders.CronSpec))
		}
	}

	server := api.New(app.Config, app.Store, entryStore, syncer, metrics.New(), app.Logger)

	go func() {
		if err := server.Start(); err != nil {
			app.Logger.Fatal("Server error", zap.Error(err))
		}
	}()

	app.Logger.Info("Server started",
		zap.String("address", app.Config.Server.Address),
		zap.Int("port", app.Config.Server.Port),
		zap.String("url", fmt.Sprintf("http://localhost:%d", app.Config.Server.Port)),
		zap.String("version", app.Version),
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	app.Logger.Info("Shutting down...")

	if reminderRunner != nil {
		reminderRunner.Stop()
	}

	if err := server.Shutdown(); err != nil {
		app.Logger.Error("Server shutdown error", zap.Error(err))
	}

	if err := app.Store.Close(); err != nil {
		app.Logger.Error("Store close error", zap.Error(err))
	}
}
