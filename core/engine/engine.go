// Package engine wires the storage core's ambient stack (logging,
// telemetry, disk, buffer pool) into a single index, the way a CLI or
// embedding application would start one up.
package engine

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/foliostore/foliodb/core/index/btree"
	"github.com/foliostore/foliodb/core/storage/buffer"
	"github.com/foliostore/foliodb/core/storage/disk"
	internaltelemetry "github.com/foliostore/foliodb/internal/telemetry"
	"github.com/foliostore/foliodb/pkg/logger"
	"github.com/foliostore/foliodb/pkg/telemetry"
)

// Config describes how to open one named index over one data file.
type Config struct {
	DataFile        string
	Create          bool
	PoolSize        int
	LeafMaxSize     int
	InternalMaxSize int
	IndexName       string

	Logger    logger.Config
	Telemetry telemetry.Config
}

// Engine owns the disk manager, buffer pool, and telemetry/shutdown hooks
// behind one open index.
type Engine struct {
	Tree *btree.Tree

	disk     *disk.Manager
	pool     *buffer.PoolManager
	log      *zap.Logger
	shutdown telemetry.ShutdownFunc
}

// Open starts the ambient stack and returns a ready-to-use Engine.
func Open(cfg Config) (*Engine, error) {
	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("engine: building logger: %w", err)
	}

	tel, shutdown, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("engine: building telemetry: %w", err)
	}

	metrics, err := internaltelemetry.NewStorageMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("engine: registering metrics: %w", err)
	}

	dm, err := disk.Open(cfg.DataFile, cfg.Create, log)
	if err != nil {
		return nil, fmt.Errorf("engine: opening disk manager: %w", err)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 64
	}
	pool := buffer.New(poolSize, dm, log, metrics)

	name := cfg.IndexName
	if name == "" {
		name = "default"
	}
	tree := btree.New(name, pool, btree.Config{
		LeafMaxSize:     cfg.LeafMaxSize,
		InternalMaxSize: cfg.InternalMaxSize,
		Logger:          log,
		Metrics:         metrics,
	})

	if cfg.Create {
		// A freshly created file has no pages allocated yet, so this
		// first NewPage call is guaranteed to return id 0 — HeaderPageID
		// — materializing the header page before any tree operation
		// tries to fetch it.
		hp, err := pool.NewPage()
		if err != nil {
			return nil, fmt.Errorf("engine: allocating header page: %w", err)
		}
		pool.UnpinPage(hp.ID(), true)
	}

	return &Engine{Tree: tree, disk: dm, pool: pool, log: log, shutdown: shutdown}, nil
}

// Flush writes every dirty page to disk and fsyncs the data file.
func (e *Engine) Flush() error {
	e.pool.FlushAllPages()
	return e.disk.Sync()
}

// Close flushes, shuts down telemetry, and closes the data file.
func (e *Engine) Close() error {
	if err := e.Flush(); err != nil {
		e.log.Warn("flush on close failed", zap.Error(err))
	}
	if e.shutdown != nil {
		_ = e.shutdown(context.Background())
	}
	return e.disk.Close()
}
