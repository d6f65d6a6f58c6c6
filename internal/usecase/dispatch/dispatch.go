// Package dispatch turns a generation request into exactly one leased
// worker submission, guaranteeing release on every path.
package dispatch

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"media-agent/internal/application/port/input"
	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/pool"
)

var _ input.Dispatcher = (*Dispatcher)(nil)

type Dispatcher struct {
	pool       *pool.Pool
	log        output.LoggerPort
	stagingDir string
}

func New(p *pool.Pool, log output.LoggerPort, stagingDir string) *Dispatcher {
	if stagingDir == "" {
		stagingDir = os.TempDir()
	}
	return &Dispatcher{pool: p, log: log, stagingDir: stagingDir}
}

// Dispatch leases a worker, submits the task, and releases the worker
// unconditionally before returning. When no worker is leasable it fails
// immediately with no capacity; it never blocks waiting for one.
func (d *Dispatcher) Dispatch(ctx context.Context, req input.GenerateRequest) (result entity.TaskResult) {
	taskID := uuid.NewString()
	log := d.log.WithField("task_id", taskID)
	defer func() { result.TaskID = taskID }()

	w, ok := d.pool.LeaseAvailable()
	if !ok {
		log.Info("no leasable worker")
		return entity.Fail(entity.FailureNoCapacity, "no available worker; start one via the management API")
	}
	defer d.pool.Release(w.ID())
	defer func() {
		if r := recover(); r != nil {
			log.Error("dispatch panicked", "panic", fmt.Sprint(r))
			result = entity.Fail(entity.FailureInternal, fmt.Sprintf("internal fault: %v", r))
		}
	}()
	log = log.WithField("worker_id", w.ID())

	staged, err := d.stageAttachments(taskID, req.Attachments)
	if err != nil {
		log.Error("attachment staging failed", "error", err)
		return entity.Fail(entity.FailureInteraction, err.Error())
	}
	defer d.removeStaged(staged)

	class := req.Class
	if class == "" {
		class = entity.TaskClassImage
	}
	task := entity.Task{
		TaskID:      taskID,
		Prompt:      req.Prompt,
		Attachments: staged,
		AspectRatio: req.AspectRatio,
		Class:       class,
	}

	log.Info("dispatching task", "class", string(class), "attachments", len(staged))
	res := w.Submit(ctx, task)

	if res.Success {
		// Best-effort: a failed cleanup never flips the result.
		if err := w.CleanupAfterTask(ctx); err != nil {
			log.Warn("post-task cleanup failed", "error", err)
		}
	}
	return res
}

// stageAttachments decodes base64 payloads (data: URI prefix tolerated) into
// task-scoped temp files the Driver can upload.
func (d *Dispatcher) stageAttachments(taskID string, attachments []string) ([]string, error) {
	if len(attachments) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(d.stagingDir, 0o755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	var staged []string
	for i, att := range attachments {
		if idx := strings.IndexByte(att, ','); idx >= 0 && strings.HasPrefix(att, "data:") {
			att = att[idx+1:]
		}
		data, err := base64.StdEncoding.DecodeString(att)
		if err != nil {
			d.removeStaged(staged)
			return nil, fmt.Errorf("decode attachment %d: %w", i+1, err)
		}
		path := filepath.Join(d.stagingDir, fmt.Sprintf("ref_%s_%d.png", taskID[:8], i))
		if err := os.WriteFile(path, data, 0o644); err != nil {
			d.removeStaged(staged)
			return nil, fmt.Errorf("stage attachment %d: %w", i+1, err)
		}
		staged = append(staged, path)
	}
	return staged, nil
}

func (d *Dispatcher) removeStaged(paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			d.log.Warn("staged file cleanup failed", "path", path, "error", err)
		}
	}
}
