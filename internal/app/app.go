// Package app wires the service together from a workspace directory.
package app

import (
	"database/sql"
	"time"

	"safetrack/internal/blob"
	"safetrack/internal/cache"
	"safetrack/internal/config"
	"safetrack/internal/db"
	"safetrack/internal/directory"
	"safetrack/internal/engine"
	"safetrack/internal/events"
	"safetrack/internal/notify"
	"safetrack/internal/store"
)

// App bundles the assembled collaborators for the CLI and server.
type App struct {
	DB       *sql.DB
	Cfg      *config.Config
	Dir      directory.Directory
	Store    store.Store
	Notifier notify.StoreNotifier
	Events   events.Writer
	Engine   *engine.Engine
}

// Bootstrap opens the workspace database, applies migrations, loads the
// site config, and assembles the engine.
func Bootstrap(workspace string) (*App, error) {
	dataDir, err := db.EnsureWorkspace(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	dir := directory.NewStatic(cfg.Identities())
	st := store.NewSQLite(conn)
	notifier := notify.StoreNotifier{DB: conn}
	writer := events.Writer{DB: conn}
	eng := &engine.Engine{
		Store:    st,
		Dir:      dir,
		Cache:    cache.NewFile(dataDir),
		Notifier: notifier,
		Events:   writer,
		Blob:     blob.NewFS(dataDir),
		Now:      time.Now,
	}
	return &App{
		DB:       conn,
		Cfg:      cfg,
		Dir:      dir,
		Store:    st,
		Notifier: notifier,
		Events:   writer,
		Engine:   eng,
	}, nil
}

// Close releases the database handle.
func (a *App) Close() error {
	return a.DB.Close()
}
