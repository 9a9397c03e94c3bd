// Package app wires the service bundle the server and CLI run on.
// Tests construct their own bundles; nothing here is a singleton.
package app

import (
	"context"
	"fmt"

	"github.com/tandemcode/tandem/internal/bus"
	"github.com/tandemcode/tandem/internal/config"
	"github.com/tandemcode/tandem/internal/filetime"
	"github.com/tandemcode/tandem/internal/logging"
	"github.com/tandemcode/tandem/internal/permission"
	"github.com/tandemcode/tandem/internal/provider"
	"github.com/tandemcode/tandem/internal/session"
	"github.com/tandemcode/tandem/internal/storage"
	"github.com/tandemcode/tandem/internal/tool"
	"github.com/tandemcode/tandem/internal/vcs"
	"github.com/tandemcode/tandem/pkg/types"
)

// App is the assembled service bundle.
type App struct {
	Config    *types.Config
	WorkDir   string
	Bus       *bus.Bus
	Storage   *storage.Storage
	Store     *session.Store
	Providers *provider.Registry
	Gate      *permission.Gate
	Files     *filetime.Tracker
	Tools     *tool.Registry
	Engine    *session.Engine
	Watcher   *vcs.Watcher
}

// Options overrides the defaults New derives from config.
type Options struct {
	// WorkDir is the workspace root. Defaults to the discovered root
	// of the current directory.
	WorkDir string
	// DataDir overrides the storage location, used by tests.
	DataDir string
}

// New builds the bundle: bus, storage, stores, providers, gate,
// tracker, tools, engine and the optional workspace watcher.
func New(ctx context.Context, cfg *types.Config, opts Options) (*App, error) {
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = config.FindRoot(".")
	}

	dataDir := opts.DataDir
	if dataDir == "" {
		paths := config.GetPaths()
		if err := paths.EnsurePaths(); err != nil {
			return nil, fmt.Errorf("create data directories: %w", err)
		}
		dataDir = paths.StoragePath()
	}

	b := bus.New()
	store := storage.New(dataDir, b)
	gate := permission.NewGate(b)
	files := filetime.NewTracker()
	sessions := session.NewStore(store, b, gate, files)
	providers := provider.Initialize(ctx, cfg)
	tools := tool.Default(workDir, store)

	engine := session.NewEngine(session.Options{
		Store:     sessions,
		Providers: providers,
		Tools:     tools,
		Gate:      gate,
		Files:     files,
		Bus:       b,
		Config:    cfg,
		WorkDir:   workDir,
	})

	a := &App{
		Config:    cfg,
		WorkDir:   workDir,
		Bus:       b,
		Storage:   store,
		Store:     sessions,
		Providers: providers,
		Gate:      gate,
		Files:     files,
		Tools:     tools,
		Engine:    engine,
	}

	if cfg.Watcher == nil || !cfg.Watcher.Disabled {
		var ignore []string
		if cfg.Watcher != nil {
			ignore = cfg.Watcher.Ignore
		}
		watcher, err := vcs.NewWatcher(workDir, b, ignore)
		if err != nil {
			logging.Warn().Err(err).Msg("workspace watcher disabled")
		} else {
			watcher.Start()
			a.Watcher = watcher
		}
	}

	return a, nil
}

// Shutdown stops the watcher and closes the bus.
func (a *App) Shutdown() {
	if a.Watcher != nil {
		if err := a.Watcher.Stop(); err != nil {
			logging.Warn().Err(err).Msg("watcher stop failed")
		}
	}
	if err := a.Bus.Close(); err != nil {
		logging.Warn().Err(err).Msg("bus close failed")
	}
}
