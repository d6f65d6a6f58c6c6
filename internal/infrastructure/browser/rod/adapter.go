// Package rod backs the Driver port with a Chromium session controlled
// through go-rod. Each driver owns its own browser process; network
// responses matching the profile's capture patterns are delimited into
// ResponseEvents and buffered until the worker drains them.
package rod

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/gobwas/glob"
	"github.com/ysmood/gson"

	"media-agent/internal/application/port/output"
	"media-agent/internal/domain/entity"
	"media-agent/internal/infrastructure/browser/rodwrapper"
	"media-agent/internal/infrastructure/profile"
)

var _ output.Driver = (*Driver)(nil)

type Config struct {
	Headless   bool
	SlowMotion time.Duration
	Timeout    time.Duration
	NoSandbox  bool
	DevTools   bool
}

func DefaultConfig() Config {
	return Config{
		Headless:   true,
		SlowMotion: 500 * time.Millisecond,
		Timeout:    10 * time.Second,
		NoSandbox:  true,
		DevTools:   false,
	}
}

// Factory launches one fresh browser per worker.
type Factory struct {
	cfg  Config
	prof entity.SiteProfile
	log  output.LoggerPort
}

var _ output.DriverFactory = (*Factory)(nil)

func NewFactory(cfg Config, prof entity.SiteProfile, log output.LoggerPort) *Factory {
	return &Factory{cfg: cfg, prof: prof, log: log}
}

func (f *Factory) New(ctx context.Context, workerID string) (output.Driver, error) {
	return NewDriver(ctx, f.cfg, f.prof, f.log.WithField("worker_id", workerID))
}

type Driver struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	page     *rod.Page
	timeout  time.Duration
	log      output.LoggerPort

	patterns []glob.Glob

	mu      sync.Mutex
	events  []entity.ResponseEvent
	tracked map[proto.NetworkRequestID]trackedResponse
}

type trackedResponse struct {
	url      string
	mimeType string
}

func NewDriver(ctx context.Context, cfg Config, prof entity.SiteProfile, log output.LoggerPort) (*Driver, error) {
	l := launcher.New().
		Headless(cfg.Headless).
		Devtools(cfg.DevTools).
		NoSandbox(cfg.NoSandbox).
		Delete("use-mock-keychain").
		Set("disable-web-security").
		Set("allow-running-insecure-content").
		Set("disable-setuid-sandbox")

	url, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().
		ControlURL(url).
		SlowMotion(cfg.SlowMotion)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect browser: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = browser.Close()
		l.Kill()
		return nil, fmt.Errorf("failed to open page: %w", err)
	}

	d := &Driver{
		browser:  browser,
		launcher: l,
		page:     page,
		timeout:  cfg.Timeout,
		log:      log,
		patterns: profile.CompilePatterns(prof),
		tracked:  make(map[proto.NetworkRequestID]trackedResponse),
	}
	d.listenNetwork()
	return d, nil
}

// listenNetwork subscribes to response lifecycle events. Bodies are fetched
// only once loading finishes; fetching earlier races the renderer.
func (d *Driver) listenNetwork() {
	go d.page.EachEvent(
		func(e *proto.NetworkResponseReceived) {
			if !d.matches(e.Response.URL) {
				return
			}
			d.mu.Lock()
			d.tracked[e.RequestID] = trackedResponse{
				url:      e.Response.URL,
				mimeType: e.Response.MIMEType,
			}
			d.mu.Unlock()
		},
		func(e *proto.NetworkLoadingFinished) {
			d.mu.Lock()
			tr, ok := d.tracked[e.RequestID]
			delete(d.tracked, e.RequestID)
			d.mu.Unlock()
			if !ok {
				return
			}
			d.captureBody(e.RequestID, tr)
		},
	)()
}

func (d *Driver) matches(url string) bool {
	for _, g := range d.patterns {
		if g.Match(url) {
			return true
		}
	}
	return false
}

func (d *Driver) captureBody(id proto.NetworkRequestID, tr trackedResponse) {
	res, err := proto.NetworkGetResponseBody{RequestID: id}.Call(d.page)
	if err != nil {
		d.log.Warn("response body unavailable", "url", tr.url, "error", err)
		return
	}
	body := res.Body
	if res.Base64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			d.log.Warn("response body decode failed", "url", tr.url, "error", err)
			return
		}
		body = string(decoded)
	}

	events := delimitBody(tr.mimeType, body)
	if len(events) == 0 {
		d.log.Debug("captured response had no parseable events", "url", tr.url)
		return
	}
	d.mu.Lock()
	d.events = append(d.events, events...)
	d.mu.Unlock()
	d.log.Debug("captured response", "url", tr.url, "events", len(events))
}

// PendingEvents drains everything buffered since the last drain, in arrival
// order.
func (d *Driver) PendingEvents() []entity.ResponseEvent {
	d.mu.Lock()
	defer d.mu.Unlock()
	events := d.events
	d.events = nil
	return events
}

// ClearEvents discards buffered events and any half-tracked responses so a
// new submission starts from a clean capture state.
func (d *Driver) ClearEvents() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = nil
	d.tracked = make(map[proto.NetworkRequestID]trackedResponse)
}

func (d *Driver) Navigate(ctx context.Context, url string) error {
	if err := d.page.Context(ctx).Navigate(url); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}
	if err := d.page.Context(ctx).WaitLoad(); err != nil {
		return fmt.Errorf("page load failed: %w", err)
	}
	d.page.WaitIdle(5 * time.Second)
	return nil
}

func (d *Driver) element(ctx context.Context, selector string) (*rod.Element, error) {
	page := d.page.Context(ctx).Timeout(d.timeout)
	if strings.HasPrefix(selector, "/") || strings.Contains(selector, "xpath") {
		return page.ElementX(selector)
	}
	return page.Element(selector)
}

func (d *Driver) Click(ctx context.Context, selector string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("element not found: %s: %w", selector, err)
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click failed: %w", err)
	}
	d.page.WaitIdle(2 * time.Second)
	return nil
}

func (d *Driver) Fill(ctx context.Context, selector, text string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("field not found: %s: %w", selector, err)
	}
	if err := el.SelectAllText(); err == nil {
		_ = el.Input("")
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("input failed: %w", err)
	}
	return nil
}

func (d *Driver) PressEnter(ctx context.Context) error {
	el, err := d.page.Context(ctx).Timeout(d.timeout).Element("body")
	if err != nil {
		return fmt.Errorf("body not found: %w", err)
	}
	if err := el.Input("\r"); err != nil {
		return fmt.Errorf("failed to press Enter: %w", err)
	}
	d.page.WaitIdle(1 * time.Second)
	return nil
}

func (d *Driver) Upload(ctx context.Context, selector, path string) error {
	el, err := d.element(ctx, selector)
	if err != nil {
		return fmt.Errorf("file input not found: %s: %w", selector, err)
	}
	if err := el.SetFiles([]string{path}); err != nil {
		return fmt.Errorf("upload failed: %w", err)
	}
	d.page.WaitIdle(2 * time.Second)
	return nil
}

func (d *Driver) Has(ctx context.Context, selector string) (bool, error) {
	has, _, err := d.page.Context(ctx).Has(selector)
	if err != nil {
		return false, fmt.Errorf("element probe failed: %s: %w", selector, err)
	}
	return has, nil
}

func (d *Driver) PageText(ctx context.Context) (string, error) {
	el, err := d.page.Context(ctx).Timeout(d.timeout).Element("body")
	if err != nil {
		return "", fmt.Errorf("body not found: %w", err)
	}
	html, err := el.HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get HTML: %w", err)
	}
	return rodwrapper.ExtractText(html), nil
}

func (d *Driver) Screenshot(ctx context.Context) (*entity.Screenshot, error) {
	imgBytes, err := d.page.Context(ctx).Screenshot(true, &proto.PageCaptureScreenshot{
		Format:  proto.PageCaptureScreenshotFormatJpeg,
		Quality: gson.Int(80),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(imgBytes))
	if err != nil {
		return nil, fmt.Errorf("image decode failed: %w", err)
	}
	if img.Bounds().Dx() > 1024 {
		img = imaging.Resize(img, 1024, 0, imaging.Lanczos)
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return nil, fmt.Errorf("jpeg encode failed: %w", err)
	}

	return &entity.Screenshot{
		Data:   buf.Bytes(),
		Format: "jpeg",
		Width:  img.Bounds().Dx(),
		Height: img.Bounds().Dy(),
	}, nil
}

func (d *Driver) SaveCookies(path string) error {
	cookies, err := d.page.Cookies(nil)
	if err != nil {
		return fmt.Errorf("read cookies: %w", err)
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cookies: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	return nil
}

func (d *Driver) LoadCookies(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cookies: %w", err)
	}
	var cookies []*proto.NetworkCookie
	if err := json.Unmarshal(data, &cookies); err != nil {
		return fmt.Errorf("decode cookies: %w", err)
	}
	params := make([]*proto.NetworkCookieParam, 0, len(cookies))
	for _, c := range cookies {
		params = append(params, &proto.NetworkCookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: c.SameSite,
			Expires:  c.Expires,
		})
	}
	if err := d.page.SetCookies(params); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

func (d *Driver) Close() error {
	var errs []string
	if d.browser != nil {
		if err := d.browser.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if d.launcher != nil {
		d.launcher.Kill()
		d.launcher.Cleanup()
	}
	if len(errs) > 0 {
		return fmt.Errorf("browser teardown: %s", strings.Join(errs, "; "))
	}
	return nil
}
