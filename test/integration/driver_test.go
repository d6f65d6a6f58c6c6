package integration

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/infrastructure/browser/rod"
)

// These tests launch a real headless Chromium. Run them with
// go test ./test/integration/ and skip them in short mode.

const testPage = `<!DOCTYPE html>
<html>
<head><title>Generation Surface</title></head>
<body>
	<h1>Prompt console</h1>
	<textarea id="prompt" placeholder="Start typing a prompt"></textarea>
	<button id="send" onclick="submitPrompt()">Run</button>
	<script>
	function submitPrompt() {
		fetch('/api/generate', {
			method: 'POST',
			body: document.getElementById('prompt').value
		});
	}
	</script>
</body>
</html>`

func testProfile(serverURL string) entity.SiteProfile {
	var p entity.SiteProfile
	p.Name = "integration"
	p.URL = serverURL
	p.Selectors.Prompt = "#prompt"
	p.Selectors.Send = "#send"
	p.Selectors.Ready = "#prompt"
	p.Capture.Patterns = []string{"*api/generate*"}
	p.Events.Terminal = []string{rod.EventEnd}
	p.Events.Content = []string{rod.EventResponse}
	return p
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testPage)
	})
	mux.HandleFunc("/api/generate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"candidates": [["a red fox", "model"]]}`)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func newTestDriver(t *testing.T, serverURL string) *rod.Driver {
	t.Helper()
	if testing.Short() {
		t.Skip("requires a local Chromium")
	}

	cfg := rod.DefaultConfig()
	cfg.Headless = true
	cfg.SlowMotion = 0

	drv, err := rod.NewDriver(context.Background(), cfg, testProfile(serverURL), nopLogger{})
	require.NoError(t, err, "driver launch failed")
	t.Cleanup(func() { _ = drv.Close() })
	return drv
}

func TestDriver_NavigateAndProbe(t *testing.T) {
	server := newTestServer(t)
	drv := newTestDriver(t, server.URL)
	ctx := context.Background()

	require.NoError(t, drv.Navigate(ctx, server.URL))

	ok, err := drv.Has(ctx, "#prompt")
	require.NoError(t, err)
	assert.True(t, ok, "prompt affordance must exist")

	ok, err = drv.Has(ctx, "#does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)

	text, err := drv.PageText(ctx)
	require.NoError(t, err)
	assert.Contains(t, text, "Prompt console")
	assert.NotContains(t, text, "submitPrompt", "script bodies must not leak into page text")
}

func TestDriver_SubmitCapturesEvents(t *testing.T) {
	server := newTestServer(t)
	drv := newTestDriver(t, server.URL)
	ctx := context.Background()

	require.NoError(t, drv.Navigate(ctx, server.URL))
	drv.ClearEvents()

	require.NoError(t, drv.Fill(ctx, "#prompt", "a red fox"))
	require.NoError(t, drv.Click(ctx, "#send"))

	events := awaitEvents(t, drv, 10*time.Second)

	var sawContent, sawEnd bool
	for _, ev := range events {
		switch ev.Type {
		case rod.EventResponse:
			sawContent = true
			assert.NotNil(t, ev.Payload, "content event must carry the decoded body")
		case rod.EventEnd:
			sawEnd = true
		}
	}
	assert.True(t, sawContent, "expected the generate response captured, got %v", events)
	assert.True(t, sawEnd, "expected the end marker after the body")
}

func TestDriver_ScreenshotAndCookies(t *testing.T) {
	server := newTestServer(t)
	drv := newTestDriver(t, server.URL)
	ctx := context.Background()

	require.NoError(t, drv.Navigate(ctx, server.URL))

	shot, err := drv.Screenshot(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, shot.Data)
	assert.LessOrEqual(t, shot.Width, 1024, "diagnostics are downscaled")

	path := filepath.Join(t.TempDir(), "cookies.json")
	require.NoError(t, drv.SaveCookies(path))
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("cookie file not written: %v", err)
	}
	require.NoError(t, drv.LoadCookies(path))
}

func awaitEvents(t *testing.T, drv *rod.Driver, timeout time.Duration) []entity.ResponseEvent {
	t.Helper()
	deadline := time.Now().Add(timeout)
	var events []entity.ResponseEvent
	for time.Now().Before(deadline) {
		events = append(events, drv.PendingEvents()...)
		for _, ev := range events {
			if ev.Type == rod.EventEnd {
				return events
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("no end marker within %s; collected %v", timeout, events)
	return nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)                          {}
func (nopLogger) Info(string, ...any)                           {}
func (nopLogger) Warn(string, ...any)                           {}
func (nopLogger) Error(string, ...any)                          {}
func (l nopLogger) WithField(string, any) output.LoggerPort     { return l }
func (l nopLogger) WithFields(map[string]any) output.LoggerPort { return l }
func (nopLogger) Close() error                                  { return nil }
