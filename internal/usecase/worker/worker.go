// Package worker drives one browser session through a generation task. A
// worker owns exactly one Driver; it has no internal queue, and the pool's
// busy flag guarantees at most one Submit is in flight.
package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/reassemble"
)

// DefaultPollInterval is how often Submit drains the driver's event buffer
// while awaiting a terminal or error event.
const DefaultPollInterval = 200 * time.Millisecond

type Worker struct {
	id      string
	drv     output.Driver
	profile entity.SiteProfile
	cfg     reassemble.Config
	log     output.LoggerPort

	poll       time.Duration
	cookiePath string
}

type Option func(*Worker)

// WithPollInterval overrides the event poll cadence, mainly for tests.
func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) { w.poll = d }
}

// WithCookiePath enables diagnostic cookie save/load at the given file.
func WithCookiePath(path string) Option {
	return func(w *Worker) { w.cookiePath = path }
}

func New(id string, drv output.Driver, profile entity.SiteProfile, log output.LoggerPort, opts ...Option) *Worker {
	w := &Worker{
		id:      id,
		drv:     drv,
		profile: profile,
		cfg:     reassemble.FromProfile(profile),
		log:     log.WithField("worker_id", id),
		poll:    DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) ID() string { return w.id }

// Start navigates to the target surface and verifies readiness. On any
// failure the session handle is torn down so no partially-initialized driver
// leaks; the caller records the Error state.
func (w *Worker) Start(ctx context.Context) error {
	if w.cookiePath != "" {
		if err := w.drv.LoadCookies(w.cookiePath); err != nil {
			w.log.Warn("cookie load failed", "path", w.cookiePath, "error", err)
		}
	}

	if err := w.drv.Navigate(ctx, w.profile.URL); err != nil {
		w.teardown()
		return fmt.Errorf("navigate %s: %w", w.profile.URL, err)
	}

	if err := w.EnsureReady(ctx); err != nil {
		w.teardown()
		return err
	}

	w.log.Info("worker started", "site", w.profile.Name)
	return nil
}

// EnsureReady checks that the surface's input affordances exist and that the
// page is not sitting behind a login wall.
func (w *Worker) EnsureReady(ctx context.Context) error {
	ready := w.profile.Selectors.Ready
	if ready == "" {
		ready = w.profile.Selectors.Prompt
	}
	ok, err := w.drv.Has(ctx, ready)
	if err != nil {
		return fmt.Errorf("readiness probe: %w", err)
	}
	if !ok {
		return fmt.Errorf("input affordance %q not present", ready)
	}

	if len(w.profile.LoginMarkers) > 0 {
		text, err := w.drv.PageText(ctx)
		if err != nil {
			w.log.Warn("page text probe failed", "error", err)
			return nil
		}
		for _, marker := range w.profile.LoginMarkers {
			if strings.Contains(text, marker) {
				return fmt.Errorf("surface requires login (matched %q)", marker)
			}
		}
	}
	return nil
}

// Submit performs the site interaction for one task and blocks until the
// stream reassembler observes a terminal or error event, or the task-class
// deadline elapses. A timeout leaves the session alive: the stale buffered
// state is simply overwritten by the next Submit.
func (w *Worker) Submit(ctx context.Context, task entity.Task) entity.TaskResult {
	log := w.log.WithField("task_id", task.TaskID)
	w.drv.ClearEvents()

	if err := w.interact(ctx, task); err != nil {
		log.Error("site interaction failed", "error", err)
		return entity.Fail(entity.FailureInteraction, err.Error())
	}

	deadline := w.profile.Deadline(task.Class)
	events, timedOut := w.await(ctx, deadline)
	if timedOut {
		log.Warn("deadline elapsed awaiting terminal event", "deadline", deadline.String())
		return entity.Fail(entity.FailureTimeout,
			fmt.Sprintf("no terminal event within %s", deadline))
	}

	res := reassemble.Consume(w.cfg, events)
	switch {
	case res.ErrorSeen:
		log.Error("upstream error event", "reason", res.Reason)
		return entity.Fail(entity.FailureUpstream, res.Reason)
	case res.TerminalSeen:
		log.Info("task completed", "text_len", len(res.Text), "media", len(res.Media))
		return entity.TaskResult{Success: true, Text: res.Text, Media: res.Media}
	default:
		// Partial output; callers decide whether it is acceptable.
		return entity.TaskResult{
			Success: false,
			Text:    res.Text,
			Media:   res.Media,
			Failure: entity.FailureIncomplete,
			Reason:  res.Reason,
		}
	}
}

// interact runs the site-specific submission steps described by the profile.
func (w *Worker) interact(ctx context.Context, task entity.Task) error {
	if task.AspectRatio != "" && task.AspectRatio != "Auto" {
		sel, ok := w.profile.AspectRatios[task.AspectRatio]
		if !ok {
			return fmt.Errorf("aspect ratio %q not supported by %s", task.AspectRatio, w.profile.Name)
		}
		if err := w.drv.Click(ctx, sel); err != nil {
			return fmt.Errorf("set aspect ratio: %w", err)
		}
	}

	for i, path := range task.Attachments {
		if w.profile.Selectors.Upload == "" {
			return fmt.Errorf("site %s does not accept attachments", w.profile.Name)
		}
		if err := w.drv.Upload(ctx, w.profile.Selectors.Upload, path); err != nil {
			return fmt.Errorf("upload attachment %d: %w", i+1, err)
		}
	}

	if err := w.drv.Fill(ctx, w.profile.Selectors.Prompt, task.Prompt); err != nil {
		return fmt.Errorf("fill prompt: %w", err)
	}

	if w.profile.Selectors.Send != "" {
		if err := w.drv.Click(ctx, w.profile.Selectors.Send); err != nil {
			return fmt.Errorf("click send: %w", err)
		}
		return nil
	}
	if err := w.drv.PressEnter(ctx); err != nil {
		return fmt.Errorf("press enter: %w", err)
	}
	return nil
}

// await drains driver events until one classifies as terminal or error, the
// deadline elapses, or ctx is done. It returns everything collected so far
// and whether the wait timed out.
func (w *Worker) await(ctx context.Context, deadline time.Duration) ([]entity.ResponseEvent, bool) {
	timer := time.NewTimer(deadline)
	defer timer.Stop()
	ticker := time.NewTicker(w.poll)
	defer ticker.Stop()

	var events []entity.ResponseEvent
	for {
		for _, ev := range w.drv.PendingEvents() {
			events = append(events, ev)
			switch w.cfg.Classify(ev) {
			case reassemble.ClassTerminal, reassemble.ClassError:
				return events, false
			}
		}
		select {
		case <-timer.C:
			return events, true
		case <-ctx.Done():
			return events, true
		case <-ticker.C:
		}
	}
}

// CleanupAfterTask performs the profile's best-effort post-task actions,
// e.g. deleting the conversation so the next task starts clean.
func (w *Worker) CleanupAfterTask(ctx context.Context) error {
	for _, sel := range w.profile.CleanupClicks {
		if err := w.drv.Click(ctx, sel); err != nil {
			return fmt.Errorf("cleanup click %q: %w", sel, err)
		}
	}
	if w.cookiePath != "" {
		if err := w.drv.SaveCookies(w.cookiePath); err != nil {
			w.log.Warn("cookie save failed", "path", w.cookiePath, "error", err)
		}
	}
	return nil
}

// Screenshot captures the page for diagnostics.
func (w *Worker) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	return w.drv.Screenshot(ctx)
}

// Stop tears the session down. Teardown failures are logged, never
// escalated; a worker always becomes stoppable.
func (w *Worker) Stop() {
	w.teardown()
	w.log.Info("worker stopped")
}

func (w *Worker) teardown() {
	if err := w.drv.Close(); err != nil {
		w.log.Warn("session teardown failed", "error", err)
	}
}
