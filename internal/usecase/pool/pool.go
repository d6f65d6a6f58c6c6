// Package pool owns the set of workers, their lifecycle state, busy flags,
// and metadata persistence. All mutations are serialized through one mutex so
// that no two callers can observe the same worker as available and both mark
// it busy.
package pool

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/worker"
)

var ErrWorkerNotFound = errors.New("worker not found")

type entry struct {
	info entity.WorkerInfo
	w    *worker.Worker
}

type Pool struct {
	mu      sync.Mutex
	entries map[string]*entry

	store   output.WorkerStore
	factory output.DriverFactory
	profile entity.SiteProfile
	log     output.LoggerPort

	cookieDir  string
	workerOpts []worker.Option
}

type Option func(*Pool)

// WithCookieDir enables per-worker cookie persistence under dir.
func WithCookieDir(dir string) Option {
	return func(p *Pool) { p.cookieDir = dir }
}

// WithWorkerOptions forwards options to every worker the pool builds.
func WithWorkerOptions(opts ...worker.Option) Option {
	return func(p *Pool) { p.workerOpts = opts }
}

// New loads persisted metadata and rehydrates every worker as Stopped and
// not busy: a live session handle cannot survive a process restart.
func New(store output.WorkerStore, factory output.DriverFactory, profile entity.SiteProfile, log output.LoggerPort, opts ...Option) (*Pool, error) {
	p := &Pool{
		entries: make(map[string]*entry),
		store:   store,
		factory: factory,
		profile: profile,
		log:     log,
	}
	for _, opt := range opts {
		opt(p)
	}

	infos, err := store.LoadAll()
	if err != nil {
		return nil, fmt.Errorf("load worker metadata: %w", err)
	}
	for _, info := range infos {
		info.State = entity.WorkerStopped
		info.Busy = false
		p.entries[info.ID] = &entry{info: info}
	}
	log.Info("worker pool loaded", "workers", len(p.entries))
	return p, nil
}

// Create allocates and persists a new worker without starting a session.
func (p *Pool) Create(name string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.NewString()
	if name == "" {
		name = p.profile.Name + "-" + id[:8]
	}
	p.entries[id] = &entry{info: entity.WorkerInfo{
		ID:        id,
		Name:      name,
		State:     entity.WorkerStopped,
		CreatedAt: time.Now().UTC(),
	}}
	if err := p.persistLocked(); err != nil {
		delete(p.entries, id)
		return "", err
	}
	p.log.Info("worker created", "worker_id", id, "name", name)
	return id, nil
}

// Start opens a session for the worker and transitions it to Running, or to
// Error with the captured message. Start failures are never retried here.
func (p *Pool) Start(ctx context.Context, id string) error {
	p.mu.Lock()
	e, ok := p.entries[id]
	if !ok {
		p.mu.Unlock()
		return ErrWorkerNotFound
	}
	if e.info.State == entity.WorkerRunning {
		p.mu.Unlock()
		return nil
	}
	e.info.State = entity.WorkerStarting
	e.info.LastError = ""
	if err := p.persistLocked(); err != nil {
		p.mu.Unlock()
		return err
	}
	p.mu.Unlock()

	// Session setup suspends on I/O; done outside the bookkeeping lock so
	// other workers keep operating.
	w, err := p.buildAndStart(ctx, id)

	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok = p.entries[id]
	if !ok {
		// Deleted while starting; tear the orphan down.
		if w != nil {
			w.Stop()
		}
		return ErrWorkerNotFound
	}
	if err != nil {
		e.info.State = entity.WorkerError
		e.info.LastError = err.Error()
		if perr := p.persistLocked(); perr != nil {
			p.log.Error("persist after start failure", "error", perr)
		}
		p.log.Error("worker start failed", "worker_id", id, "error", err)
		return fmt.Errorf("start worker %s: %w", id, err)
	}
	e.w = w
	e.info.State = entity.WorkerRunning
	e.info.LastUsedAt = time.Now().UTC()
	if perr := p.persistLocked(); perr != nil {
		return perr
	}
	p.log.Info("worker running", "worker_id", id)
	return nil
}

func (p *Pool) buildAndStart(ctx context.Context, id string) (*worker.Worker, error) {
	drv, err := p.factory.New(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("open session: %w", err)
	}
	opts := p.workerOpts
	if p.cookieDir != "" {
		opts = append(opts[:len(opts):len(opts)],
			worker.WithCookiePath(filepath.Join(p.cookieDir, id+".json")))
	}
	w := worker.New(id, drv, p.profile, p.log, opts...)
	if err := w.Start(ctx); err != nil {
		return nil, err
	}
	return w, nil
}

// Stop tears the session down best-effort. The worker always reaches
// Stopped, even when teardown raises.
func (p *Pool) Stop(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopLocked(id)
}

func (p *Pool) stopLocked(id string) error {
	e, ok := p.entries[id]
	if !ok {
		return ErrWorkerNotFound
	}
	if e.w != nil {
		e.w.Stop()
		e.w = nil
	}
	e.info.State = entity.WorkerStopped
	e.info.Busy = false
	e.info.LastError = ""
	return p.persistLocked()
}

// Delete stops the worker first when needed, then removes its metadata.
func (p *Pool) Delete(ctx context.Context, id string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return ErrWorkerNotFound
	}
	if e.w != nil {
		e.w.Stop()
		e.w = nil
	}
	delete(p.entries, id)
	if err := p.persistLocked(); err != nil {
		return err
	}
	p.log.Info("worker deleted", "worker_id", id)
	return nil
}

// LeaseAvailable atomically claims a Running, not-busy worker. A nil return
// is not an error: it signals no capacity, which fluctuates as operators
// start and stop workers. Selection order is first-found, unspecified.
func (p *Pool) LeaseAvailable() (*worker.Worker, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range p.entries {
		if e.info.State == entity.WorkerRunning && !e.info.Busy && e.w != nil {
			e.info.Busy = true
			e.info.LastUsedAt = time.Now().UTC()
			if err := p.persistLocked(); err != nil {
				e.info.Busy = false
				p.log.Error("persist lease", "error", err)
				return nil, false
			}
			return e.w, true
		}
	}
	return nil, false
}

// Release clears the busy flag. It must be called exactly once per
// successful lease, on every path.
func (p *Pool) Release(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return
	}
	e.info.Busy = false
	e.info.LastUsedAt = time.Now().UTC()
	if err := p.persistLocked(); err != nil {
		p.log.Error("persist release", "worker_id", id, "error", err)
	}
}

// Get returns a copy of one worker's metadata.
func (p *Pool) Get(id string) (entity.WorkerInfo, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]
	if !ok {
		return entity.WorkerInfo{}, false
	}
	return e.info, true
}

// List returns a metadata snapshot of every worker.
func (p *Pool) List() []entity.WorkerInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]entity.WorkerInfo, 0, len(p.entries))
	for _, e := range p.entries {
		out = append(out, e.info)
	}
	return out
}

// Stats reports capacity. Busy <= Running <= Total holds by construction:
// busy is only ever set on a Running worker under the same lock.
func (p *Pool) Stats() entity.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := entity.PoolStats{Total: len(p.entries)}
	for _, e := range p.entries {
		if e.info.State == entity.WorkerRunning {
			s.Running++
			if e.info.Busy {
				s.Busy++
			} else {
				s.Available++
			}
		}
	}
	return s
}

// Shutdown stops every running worker. Used on process exit.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, e := range p.entries {
		if e.w != nil {
			if err := p.stopLocked(id); err != nil {
				p.log.Warn("shutdown stop failed", "worker_id", id, "error", err)
			}
		}
	}
}

// persistLocked writes the full metadata snapshot synchronously. Callers
// hold p.mu; a failure is fatal to the calling operation only.
func (p *Pool) persistLocked() error {
	infos := make([]entity.WorkerInfo, 0, len(p.entries))
	for _, e := range p.entries {
		infos = append(infos, e.info)
	}
	if err := p.store.SaveAll(infos); err != nil {
		return fmt.Errorf("persist worker metadata: %w", err)
	}
	return nil
}
