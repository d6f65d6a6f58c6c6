package input

import (
	"context"

	"media-agent/internal/domain/entity"
)

// GenerateRequest is a caller-supplied generation request. Attachments are
// base64-encoded reference images; a data: URI prefix is tolerated.
type GenerateRequest struct {
	Prompt      string
	Attachments []string
	AspectRatio string
	Class       entity.TaskClass
}

// Dispatcher runs one generation request against a leased worker.
// It never blocks waiting for capacity.
type Dispatcher interface {
	Dispatch(ctx context.Context, req GenerateRequest) entity.TaskResult
}

// PoolManager is the operator surface over the worker pool.
type PoolManager interface {
	Create(name string) (string, error)
	Start(ctx context.Context, workerID string) error
	Stop(ctx context.Context, workerID string) error
	Delete(ctx context.Context, workerID string) error
	Get(workerID string) (entity.WorkerInfo, bool)
	List() []entity.WorkerInfo
	Stats() entity.PoolStats
}
