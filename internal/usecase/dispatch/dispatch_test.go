package dispatch

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"media-agent/internal/application/port/input"
	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/usecase/pool"
	"media-agent/internal/usecase/worker"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                          {}
func (nopLogger) Info(string, ...any)                           {}
func (nopLogger) Warn(string, ...any)                           {}
func (nopLogger) Error(string, ...any)                          {}
func (l nopLogger) WithField(string, any) output.LoggerPort     { return l }
func (l nopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (nopLogger) Close() error                                  { return nil }

type memStore struct{ infos []entity.WorkerInfo }

func (s *memStore) LoadAll() ([]entity.WorkerInfo, error)   { return nil, nil }
func (s *memStore) SaveAll(infos []entity.WorkerInfo) error { s.infos = infos; return nil }
func (s *memStore) Close() error                            { return nil }

// scriptDriver serves one terminal event per submission, or none at all when
// silent is set.
type scriptDriver struct {
	mu      sync.Mutex
	silent  bool
	uploads []string
	served  bool
}

func (d *scriptDriver) Navigate(context.Context, string) error     { return nil }
func (d *scriptDriver) Fill(context.Context, string, string) error { return nil }
func (d *scriptDriver) Click(context.Context, string) error        { return nil }
func (d *scriptDriver) PressEnter(context.Context) error           { return nil }
func (d *scriptDriver) Has(context.Context, string) (bool, error)  { return true, nil }
func (d *scriptDriver) PageText(context.Context) (string, error)   { return "", nil }

func (d *scriptDriver) Upload(_ context.Context, _ string, path string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.uploads = append(d.uploads, path)
	return nil
}

func (d *scriptDriver) PendingEvents() []entity.ResponseEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.silent || d.served {
		return nil
	}
	d.served = true
	return []entity.ResponseEvent{
		{Type: "response", Payload: []any{[]any{"generated text", "model"}}},
		{Type: "response.end"},
	}
}

func (d *scriptDriver) ClearEvents() {
	d.mu.Lock()
	d.served = false
	d.mu.Unlock()
}

func (d *scriptDriver) Screenshot(context.Context) (*entity.Screenshot, error) { return nil, nil }
func (d *scriptDriver) SaveCookies(string) error                               { return nil }
func (d *scriptDriver) LoadCookies(string) error                               { return nil }
func (d *scriptDriver) Close() error                                           { return nil }

type scriptFactory struct {
	drv   *scriptDriver
	opens int
}

func (f *scriptFactory) New(context.Context, string) (output.Driver, error) {
	f.opens++
	return f.drv, nil
}

func dispatchProfile() entity.SiteProfile {
	var p entity.SiteProfile
	p.Name = "testsite"
	p.URL = "https://example.test"
	p.Selectors.Prompt = "textarea"
	p.Selectors.Send = "button.send"
	p.Selectors.Upload = "input[type=file]"
	p.Events.Terminal = []string{"response.end"}
	p.Events.Content = []string{"response"}
	p.Extract.TagMarkers = []string{"model"}
	p.Deadlines.Image = entity.Duration(50 * time.Millisecond)
	return p
}

func newDispatcher(t *testing.T, drv *scriptDriver, startWorker bool) (*Dispatcher, *pool.Pool) {
	t.Helper()
	factory := &scriptFactory{drv: drv}
	p, err := pool.New(&memStore{}, factory, dispatchProfile(), nopLogger{},
		pool.WithWorkerOptions(worker.WithPollInterval(time.Millisecond)))
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	if startWorker {
		id, err := p.Create("")
		if err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		if err := p.Start(context.Background(), id); err != nil {
			t.Fatalf("Start failed: %v", err)
		}
	}
	return New(p, nopLogger{}, t.TempDir()), p
}

func TestDispatch_NoCapacity(t *testing.T) {
	drv := &scriptDriver{}
	d, _ := newDispatcher(t, drv, false)

	res := d.Dispatch(context.Background(), input.GenerateRequest{Prompt: "p"})

	if res.Success {
		t.Fatal("expected failure with an empty pool")
	}
	if res.Failure != entity.FailureNoCapacity {
		t.Errorf("expected %s, got %s", entity.FailureNoCapacity, res.Failure)
	}
	if res.TaskID == "" {
		t.Error("every dispatch must carry a task id")
	}
	drv.mu.Lock()
	served := drv.served
	drv.mu.Unlock()
	if served {
		t.Error("no driver interaction may happen without a lease")
	}
}

func TestDispatch_SuccessReleasesWorker(t *testing.T) {
	drv := &scriptDriver{}
	d, p := newDispatcher(t, drv, true)

	res := d.Dispatch(context.Background(), input.GenerateRequest{Prompt: "draw"})

	if !res.Success {
		t.Fatalf("expected success, got %s: %s", res.Failure, res.Reason)
	}
	if res.Text != "generated text" {
		t.Errorf("expected reassembled text, got %q", res.Text)
	}
	if res.TaskID == "" {
		t.Error("expected a task id on the result")
	}
	if s := p.Stats(); s.Busy != 0 || s.Available != 1 {
		t.Errorf("worker must be released after dispatch, stats %+v", s)
	}
}

func TestDispatch_FailureStillReleases(t *testing.T) {
	drv := &scriptDriver{silent: true}
	d, p := newDispatcher(t, drv, true)

	res := d.Dispatch(context.Background(), input.GenerateRequest{Prompt: "draw"})

	if res.Success || res.Failure != entity.FailureTimeout {
		t.Fatalf("expected timeout, got %+v", res)
	}
	if s := p.Stats(); s.Busy != 0 || s.Available != 1 {
		t.Errorf("worker must be released after a failed dispatch, stats %+v", s)
	}
}

func TestDispatch_StagesAndRemovesAttachments(t *testing.T) {
	drv := &scriptDriver{}
	staging := t.TempDir()
	factory := &scriptFactory{drv: drv}
	p, err := pool.New(&memStore{}, factory, dispatchProfile(), nopLogger{},
		pool.WithWorkerOptions(worker.WithPollInterval(time.Millisecond)))
	if err != nil {
		t.Fatalf("pool.New failed: %v", err)
	}
	id, _ := p.Create("")
	if err := p.Start(context.Background(), id); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	d := New(p, nopLogger{}, staging)

	payload := base64.StdEncoding.EncodeToString([]byte("fake image bytes"))
	res := d.Dispatch(context.Background(), input.GenerateRequest{
		Prompt:      "draw",
		Attachments: []string{"data:image/png;base64," + payload},
	})
	if !res.Success {
		t.Fatalf("expected success, got %s: %s", res.Failure, res.Reason)
	}

	drv.mu.Lock()
	uploads := append([]string(nil), drv.uploads...)
	drv.mu.Unlock()
	if len(uploads) != 1 {
		t.Fatalf("expected one upload, got %v", uploads)
	}
	name := filepath.Base(uploads[0])
	if !strings.HasPrefix(name, "ref_"+res.TaskID[:8]) {
		t.Errorf("staged file %s not scoped to task %s", name, res.TaskID)
	}

	leftovers, err := os.ReadDir(staging)
	if err != nil {
		t.Fatalf("read staging dir: %v", err)
	}
	if len(leftovers) != 0 {
		t.Errorf("staged files must be removed after dispatch, found %d", len(leftovers))
	}
}

func TestDispatch_BadAttachmentFailsBeforeSubmit(t *testing.T) {
	drv := &scriptDriver{}
	d, p := newDispatcher(t, drv, true)

	res := d.Dispatch(context.Background(), input.GenerateRequest{
		Prompt:      "draw",
		Attachments: []string{"%%% not base64 %%%"},
	})

	if res.Success || res.Failure != entity.FailureInteraction {
		t.Fatalf("expected interaction failure, got %+v", res)
	}
	drv.mu.Lock()
	uploaded := len(drv.uploads)
	drv.mu.Unlock()
	if uploaded != 0 {
		t.Error("no upload may happen for an undecodable attachment")
	}
	if s := p.Stats(); s.Busy != 0 {
		t.Errorf("worker must be released, stats %+v", s)
	}
}
