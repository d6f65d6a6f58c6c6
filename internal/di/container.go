package di

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"media-agent/internal/adapter/httpapi"
	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	rodadapter "media-agent/internal/infrastructure/browser/rod"
	"media-agent/internal/infrastructure/logger"
	"media-agent/internal/infrastructure/profile"
	"media-agent/internal/infrastructure/store/jsonfile"
	"media-agent/internal/infrastructure/store/sqlite"
	"media-agent/internal/usecase/dispatch"
	"media-agent/internal/usecase/pool"
)

// Config selects the concrete adapters. Everything is constructed once here
// and passed by reference; there are no package-level singletons.
type Config struct {
	ProfilePath  string
	DataDir      string
	StoreBackend string // "json" (default) or "sqlite"
	Headless     bool
	SlowMotion   time.Duration
	LogLevel     string
	ServiceName  string
}

type Container struct {
	Logger     output.LoggerPort
	Store      output.WorkerStore
	Profile    entity.SiteProfile
	Pool       *pool.Pool
	Dispatcher *dispatch.Dispatcher
	HTTP       *httpapi.Server
}

func NewContainer(ctx context.Context, cfg Config) (*Container, error) {
	log, err := logger.NewLoggerAdapter(cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	prof, err := profile.Load(cfg.ProfilePath)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to load site profile: %w", err)
	}

	store, err := newStore(cfg)
	if err != nil {
		log.Close()
		return nil, fmt.Errorf("failed to open worker store: %w", err)
	}

	driverCfg := rodadapter.DefaultConfig()
	driverCfg.Headless = cfg.Headless
	if cfg.SlowMotion > 0 {
		driverCfg.SlowMotion = cfg.SlowMotion
	}
	factory := rodadapter.NewFactory(driverCfg, prof, log)

	cookieDir := filepath.Join(cfg.DataDir, "cookies")
	if err := os.MkdirAll(cookieDir, 0o755); err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to create cookie dir: %w", err)
	}

	p, err := pool.New(store, factory, prof, log, pool.WithCookieDir(cookieDir))
	if err != nil {
		store.Close()
		log.Close()
		return nil, fmt.Errorf("failed to build worker pool: %w", err)
	}

	d := dispatch.New(p, log, filepath.Join(cfg.DataDir, "staging"))
	api := httpapi.New(d, p, log, cfg.ServiceName)

	return &Container{
		Logger:     log,
		Store:      store,
		Profile:    prof,
		Pool:       p,
		Dispatcher: d,
		HTTP:       api,
	}, nil
}

func newStore(cfg Config) (output.WorkerStore, error) {
	switch cfg.StoreBackend {
	case "", "json":
		return jsonfile.New(filepath.Join(cfg.DataDir, "workers.json"))
	case "sqlite":
		return sqlite.New(filepath.Join(cfg.DataDir, "workers.db"))
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func (c *Container) Close(ctx context.Context) {
	if c.Pool != nil {
		c.Pool.Shutdown(ctx)
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Logger != nil {
		_ = c.Logger.Close()
	}
}
