package output

import (
	"context"

	"media-agent/internal/domain/entity"
)

// Driver is the site automation capability a worker drives. Implementations
// own one live browser session; the core never touches the page directly.
//
// PendingEvents drains the events buffered since the last drain; the Driver
// is responsible for delimiting raw transport framing (SSE chunking, JSON
// bodies) into discrete ResponseEvents.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	PressEnter(ctx context.Context) error
	Upload(ctx context.Context, selector, path string) error
	Has(ctx context.Context, selector string) (bool, error)
	PageText(ctx context.Context) (string, error)

	PendingEvents() []entity.ResponseEvent
	ClearEvents()

	// Diagnostic surface, not required for correctness.
	Screenshot(ctx context.Context) (*entity.Screenshot, error)
	SaveCookies(path string) error
	LoadCookies(path string) error

	Close() error
}

// DriverFactory opens a fresh session for a worker. Each worker gets its own
// browser; sessions share no interaction state.
type DriverFactory interface {
	New(ctx context.Context, workerID string) (Driver, error)
}
