// Package maskbatch wires the annotation core together: configuration,
// storage, sessions, export and the HTTP surface.
package maskbatch

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/lewtec/maskbatch/internal/export"
	"github.com/lewtec/maskbatch/internal/repository"
	"github.com/lewtec/maskbatch/internal/session"
)

// App owns the long-lived pieces of a running maskbatch instance.
type App struct {
	Config   *Config
	Log      zerolog.Logger
	DB       *sql.DB
	Images   *repository.ImageRepository
	Layers   *repository.LayerRepository
	Sessions *session.Manager
	Export   *export.Engine
}

// NewApp opens the database, applies migrations and wires every component.
func NewApp(cfg *Config) (*App, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("while parsing log level %q: %w", cfg.LogLevel, err)
	}
	log := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(level)

	db, err := repository.Open(cfg.Database)
	if err != nil {
		return nil, err
	}
	if err := repository.Migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	images := repository.NewImageRepository(db)
	layers := repository.NewLayerRepository(db)

	app := &App{
		Config:   cfg,
		Log:      log,
		DB:       db,
		Images:   images,
		Layers:   layers,
		Sessions: session.NewManager(images, layers, log, cfg.AutosaveDebounce),
		Export:   export.New(images, layers, log),
	}
	log.Info().Str("database", cfg.Database).Msg("application ready")
	return app, nil
}

// Close flushes every live session and releases the database.
func (a *App) Close(ctx context.Context) error {
	if err := a.Sessions.Shutdown(ctx); err != nil {
		a.Log.Error().Err(err).Msg("session flush during shutdown failed")
	}
	if err := a.DB.Close(); err != nil {
		return fmt.Errorf("while closing database: %w", err)
	}
	return nil
}
