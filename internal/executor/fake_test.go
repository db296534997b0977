package executor

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"sync"
	"time"

	"github.com/disintegration/imaging"
)

// fakeDriver is an in-memory Driver. Selectors listed in present match
// immediately, selectors in appear match after the given delay, everything
// else never matches.
type fakeDriver struct {
	mu sync.Mutex

	created time.Time
	present map[string]bool
	appear  map[string]time.Duration
	counts  map[string]int

	frames  []*Frame
	content map[string]*Frame
	tabs    int

	element []byte
	page    []byte

	panicOnEval bool
	closeBlock  bool

	calls       []string
	typed       map[string]string
	pagesClosed bool
	closed      bool

	subs []chan NetEvent
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		created: time.Now(),
		present: map[string]bool{},
		appear:  map[string]time.Duration{},
		counts:  map[string]int{},
		content: map[string]*Frame{},
		typed:   map[string]string{},
		frames:  []*Frame{{ID: "root", URL: "https://example.com/"}},
		tabs:    1,
		page:    []byte("page-jpeg"),
	}
}

func (d *fakeDriver) record(format string, args ...interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

func (d *fakeDriver) called(prefix string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, c := range d.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			return true
		}
	}
	return false
}

func frameName(f *Frame) string {
	if f == nil {
		return "main"
	}
	return f.ID
}

func (d *fakeDriver) emit(ev NetEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.subs {
		ch <- ev
	}
}

func (d *fakeDriver) Subscribe() (<-chan NetEvent, func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	ch := make(chan NetEvent, 64)
	d.subs = append(d.subs, ch)
	return ch, func() {
		d.mu.Lock()
		defer d.mu.Unlock()
		for i, s := range d.subs {
			if s == ch {
				d.subs = append(d.subs[:i], d.subs[i+1:]...)
				return
			}
		}
	}
}

func (d *fakeDriver) Setup(ctx context.Context, opts SetupOptions) error {
	d.record("setup csp=%t diagnostics=%t", opts.BypassCSP, opts.Diagnostics)
	return nil
}

func (d *fakeDriver) Navigate(ctx context.Context, url string) error {
	d.record("navigate %s", url)
	return nil
}

func (d *fakeDriver) Authenticate(ctx context.Context, username, password string) error {
	d.record("authenticate %s", username)
	return nil
}

func (d *fakeDriver) SetViewport(ctx context.Context, width, height int) error {
	d.record("viewport %dx%d", width, height)
	return nil
}

func (d *fakeDriver) NextNavigation(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDriver) WaitPresent(ctx context.Context, f *Frame, selector string) error {
	d.mu.Lock()
	ok := d.present[selector]
	delay, later := d.appear[selector]
	d.mu.Unlock()

	if ok {
		return nil
	}
	if later {
		t := time.NewTimer(time.Until(d.created.Add(delay)))
		defer t.Stop()
		select {
		case <-t.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (d *fakeDriver) WaitHidden(ctx context.Context, f *Frame, selector string) error {
	return nil
}

func (d *fakeDriver) Count(ctx context.Context, f *Frame, selector string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if n, ok := d.counts[selector]; ok {
		return n, nil
	}
	if d.present[selector] {
		return 1, nil
	}
	return 0, nil
}

func (d *fakeDriver) Hover(ctx context.Context, f *Frame, selector string) error {
	d.record("hover %s", selector)
	return nil
}

func (d *fakeDriver) Click(ctx context.Context, f *Frame, selector string) error {
	if err := d.WaitPresent(ctx, f, selector); err != nil {
		return err
	}
	d.record("click %s in %s", selector, frameName(f))
	return nil
}

func (d *fakeDriver) DOMClick(ctx context.Context, f *Frame, selector string) error {
	d.record("domclick %s", selector)
	return nil
}

func (d *fakeDriver) ClickText(ctx context.Context, text string, button bool) (bool, error) {
	d.mu.Lock()
	ok := d.present["text="+text]
	d.mu.Unlock()
	if ok {
		d.record("clicktext %s", text)
	}
	return ok, nil
}

func (d *fakeDriver) Type(ctx context.Context, f *Frame, selector, text string, delay time.Duration) error {
	d.record("type %s in %s", selector, frameName(f))
	d.mu.Lock()
	defer d.mu.Unlock()
	d.typed[selector] = text
	return nil
}

func (d *fakeDriver) Clear(ctx context.Context, f *Frame, selector string) error {
	d.record("clear %s", selector)
	return nil
}

func (d *fakeDriver) Select(ctx context.Context, f *Frame, selector, value string) error {
	d.record("select %s %s", selector, value)
	return nil
}

func (d *fakeDriver) Submit(ctx context.Context, f *Frame, selector string) error {
	d.record("submit %s", selector)
	return nil
}

func (d *fakeDriver) HideAll(ctx context.Context, f *Frame, selector string) error {
	d.record("hide %s", selector)
	return nil
}

func (d *fakeDriver) RemoveAll(ctx context.Context, f *Frame, selector string) error {
	d.record("remove %s", selector)
	return nil
}

func (d *fakeDriver) Eval(ctx context.Context, f *Frame, code string) error {
	if d.panicOnEval {
		panic("evaluation crashed")
	}
	d.record("eval %s", code)
	return nil
}

func (d *fakeDriver) ScrollTo(ctx context.Context, f *Frame, y int) error {
	d.record("scroll %d", y)
	return nil
}

func (d *fakeDriver) ElementScreenshot(ctx context.Context, f *Frame, selector string) ([]byte, error) {
	d.record("element screenshot %s in %s", selector, frameName(f))
	if d.element == nil {
		return nil, fmt.Errorf("no element image")
	}
	return d.element, nil
}

func (d *fakeDriver) PageScreenshot(ctx context.Context, beyondViewport bool, quality int) ([]byte, error) {
	d.record("page screenshot quality=%d", quality)
	return d.page, nil
}

func (d *fakeDriver) SwitchPage(ctx context.Context, index int) (bool, error) {
	if index >= d.tabs {
		return false, nil
	}
	d.record("switch tab %d", index)
	return true, nil
}

func (d *fakeDriver) SwitchLastPage(ctx context.Context) error {
	d.record("switch last tab")
	return nil
}

func (d *fakeDriver) Frames(ctx context.Context) ([]*Frame, error) {
	return d.frames, nil
}

func (d *fakeDriver) ContentFrame(ctx context.Context, parent *Frame, selector string) (*Frame, error) {
	if f, ok := d.content[selector]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("not a frame: %s", selector)
}

func (d *fakeDriver) ClosePages(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pagesClosed = true
	return nil
}

func (d *fakeDriver) Close(ctx context.Context) error {
	if d.closeBlock {
		<-ctx.Done()
		return ctx.Err()
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

// testPNG renders a solid w x h PNG.
func testPNG(w, h int) []byte {
	img := imaging.New(w, h, color.NRGBA{R: 200, G: 40, B: 40, A: 255})
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		panic(err)
	}
	return buf.Bytes()
}
