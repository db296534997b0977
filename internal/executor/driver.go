package executor

import (
	"context"
	"time"
)

// Frame is a live browser frame. A nil *Frame means the main page.
type Frame struct {
	ID  string
	URL string

	handle any
}

type NetEvent int

const (
	RequestStarted NetEvent = iota
	RequestFinished
)

// NetworkSource streams request lifecycle events of the current page.
// Events are delivered until the returned cancel func is called.
type NetworkSource interface {
	Subscribe() (<-chan NetEvent, func())
}

type SetupOptions struct {
	BypassCSP   bool
	Diagnostics bool
}

// Driver is the browser surface the interpreter runs against. Every method
// honors ctx cancellation and deadlines; selector waits block until the
// selector matches or ctx is done.
type Driver interface {
	NetworkSource

	Setup(ctx context.Context, opts SetupOptions) error
	Navigate(ctx context.Context, url string) error
	Authenticate(ctx context.Context, username, password string) error
	SetViewport(ctx context.Context, width, height int) error
	// NextNavigation blocks until the main frame finishes its next load.
	NextNavigation(ctx context.Context) error

	WaitPresent(ctx context.Context, f *Frame, selector string) error
	WaitHidden(ctx context.Context, f *Frame, selector string) error
	Count(ctx context.Context, f *Frame, selector string) (int, error)

	Hover(ctx context.Context, f *Frame, selector string) error
	Click(ctx context.Context, f *Frame, selector string) error
	// DOMClick calls element.click() on the first match, bypassing input
	// events.
	DOMClick(ctx context.Context, f *Frame, selector string) error
	// ClickText clicks the element whose text contains text. With button set
	// only buttons qualify. It reports whether anything was clicked.
	ClickText(ctx context.Context, text string, button bool) (bool, error)
	Type(ctx context.Context, f *Frame, selector, text string, delay time.Duration) error
	Clear(ctx context.Context, f *Frame, selector string) error
	Select(ctx context.Context, f *Frame, selector, value string) error
	Submit(ctx context.Context, f *Frame, selector string) error
	HideAll(ctx context.Context, f *Frame, selector string) error
	RemoveAll(ctx context.Context, f *Frame, selector string) error
	Eval(ctx context.Context, f *Frame, code string) error
	ScrollTo(ctx context.Context, f *Frame, y int) error

	// ElementScreenshot returns a PNG of the first element matching selector.
	ElementScreenshot(ctx context.Context, f *Frame, selector string) ([]byte, error)
	// PageScreenshot returns a JPEG of the current page.
	PageScreenshot(ctx context.Context, beyondViewport bool, quality int) ([]byte, error)

	// SwitchPage makes the index-th tab opened since the capture started the
	// current page. It reports false when that tab does not exist yet.
	SwitchPage(ctx context.Context, index int) (bool, error)
	SwitchLastPage(ctx context.Context) error

	// Frames lists the frames of the current page, main frame first.
	Frames(ctx context.Context) ([]*Frame, error)
	// ContentFrame returns the frame owned by the iframe element matching
	// selector inside parent.
	ContentFrame(ctx context.Context, parent *Frame, selector string) (*Frame, error)

	ClosePages(ctx context.Context) error
	Close(ctx context.Context) error
}
