package cli

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/backy2/backy2/internal/blobstore"
	"github.com/backy2/backy2/internal/config"
	"github.com/backy2/backy2/internal/digest"
	"github.com/backy2/backy2/internal/engine"
	"github.com/backy2/backy2/internal/iosource"
	"github.com/backy2/backy2/internal/locking"
	"github.com/backy2/backy2/internal/metastore"
	"github.com/backy2/backy2/internal/xlog"
	"github.com/backy2/backy2/pkg/fs"
)

// App bundles an Engine with the underlying stores, so commands can close
// them once Exec returns.
type App struct {
	Engine *engine.Engine

	meta *metastore.Store
	data blobstore.Backend
}

// Close releases the meta store and data backend, in that order.
func (a *App) Close() error {
	var err error

	if e := a.meta.Close(); e != nil {
		err = e
	}

	if e := a.data.Close(); e != nil && err == nil {
		err = e
	}

	return err
}

// NewApp wires an Engine from cfg: opens the SQLite meta store, the
// selected Data Backend, advisory locking in a "locks" directory beside the
// meta store,
// and a registry carrying the file:// source driver.
func NewApp(ctx context.Context, cfg config.Config) (*App, error) {
	xlog.Init(xlog.FileConfig{Path: cfg.LogPathAbs})

	meta, err := metastore.Open(ctx, cfg.MetaPathAbs)
	if err != nil {
		return nil, fmt.Errorf("cli: open meta store: %w", err)
	}

	hasher := digest.SHA512

	data, err := newDataBackend(cfg, hasher)
	if err != nil {
		_ = meta.Close()
		return nil, fmt.Errorf("cli: open data backend: %w", err)
	}

	lockDir := filepath.Join(filepath.Dir(cfg.MetaPathAbs), "locks")
	locks := locking.New(lockDir, fs.NewReal())
	registry := locking.NewRegistry(lockDir, fs.NewReal())

	sources := iosource.NewRegistry(map[string]iosource.Driver{
		"file": iosource.NewFileDriver(hasher),
	})

	e, err := engine.New(ctx, engine.Config{
		Meta:        meta,
		Data:        data,
		Locks:       locks,
		Sources:     sources,
		Registry:    registry,
		ProcessName: cfg.ProcessName,
		BlockSize:   cfg.BlockSize,
		Hasher:      hasher,
	})
	if err != nil {
		_ = meta.Close()
		_ = data.Close()

		return nil, fmt.Errorf("cli: %w", err)
	}

	return &App{Engine: e, meta: meta, data: data}, nil
}

func newDataBackend(cfg config.Config, hasher digest.Hasher) (blobstore.Backend, error) {
	switch cfg.DataBackend {
	case config.DataBackendSeg:
		return blobstore.NewSegBackend(cfg.DataDirAbs, fs.NewReal(), hasher, cfg.LargeFileSize, cfg.BlockSize)
	case config.DataBackendFS, "":
		return blobstore.NewFSBackend(cfg.DataDirAbs, fs.NewReal(), hasher)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownDataBackend, cfg.DataBackend)
	}
}
