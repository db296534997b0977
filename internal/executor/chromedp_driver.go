package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/mafredri/cdp/devtool"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const piercePrefix = "pierce/"

// ChromeDriver drives a browser that is already listening for DevTools
// connections, attaching to its first page.
type ChromeDriver struct {
	allocCancel context.CancelFunc
	root        context.Context

	mu      sync.Mutex
	tab     context.Context
	tabs    map[target.ID]context.Context
	cancels []context.CancelFunc
	pages   []target.ID
}

// NewChromeDriver connects to the browser behind debugURL, for example
// http://127.0.0.1:9222.
func NewChromeDriver(ctx context.Context, debugURL string) (*ChromeDriver, error) {
	pt, err := devtool.New(debugURL).Get(ctx, devtool.Page)
	if err != nil {
		return nil, fmt.Errorf("failed to find page target: %w", err)
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.WithoutCancel(ctx), debugURL)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx,
		chromedp.WithTargetID(target.ID(pt.ID)),
		chromedp.WithLogf(func(string, ...interface{}) {}),
	)
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		allocCancel()
		return nil, fmt.Errorf("failed to attach to page: %w", err)
	}

	id := target.ID(pt.ID)
	log.Info().Str("target", pt.ID).Msg("🔗 Attached to browser page")
	return &ChromeDriver{
		allocCancel: allocCancel,
		root:        tabCtx,
		tab:         tabCtx,
		tabs:        map[target.ID]context.Context{id: tabCtx},
		cancels:     []context.CancelFunc{tabCancel},
		pages:       []target.ID{id},
	}, nil
}

// with derives a chromedp context on the current tab that is cancelled
// along with ctx.
func (d *ChromeDriver) with(ctx context.Context) (context.Context, context.CancelFunc) {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()

	c, cancel := context.WithCancel(tab)
	stop := context.AfterFunc(ctx, cancel)
	return c, func() {
		stop()
		cancel()
	}
}

func (d *ChromeDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	c, cancel := d.with(ctx)
	defer cancel()
	return chromedp.Run(c, actions...)
}

func (d *ChromeDriver) Setup(ctx context.Context, opts SetupOptions) error {
	actions := []chromedp.Action{network.Enable(), runtime.Enable()}
	if opts.BypassCSP {
		actions = append(actions, page.SetBypassCSP(true))
	}
	if err := d.run(ctx, actions...); err != nil {
		return err
	}
	if opts.Diagnostics {
		d.mu.Lock()
		tab := d.tab
		d.mu.Unlock()
		chromedp.ListenTarget(tab, diagnostics)
	}
	return nil
}

func diagnostics(ev interface{}) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(ev.Args))
		for _, a := range ev.Args {
			if len(a.Value) > 0 {
				parts = append(parts, string(a.Value))
			} else {
				parts = append(parts, a.Description)
			}
		}
		log.Info().Str("source", "console").Str("type", string(ev.Type)).Msg(strings.Join(parts, " "))
	case *network.EventLoadingFailed:
		log.Warn().Str("request", string(ev.RequestID)).Str("error", ev.ErrorText).Msg("Request failed")
	case *network.EventResponseReceived:
		if ev.Response != nil && ev.Response.Status >= 400 {
			log.Warn().Int64("status", ev.Response.Status).Str("url", ev.Response.URL).Msg("Response status")
		}
	}
}

func (d *ChromeDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

// Authenticate answers HTTP auth challenges of the current page with the
// given credentials from now on.
func (d *ChromeDriver) Authenticate(ctx context.Context, username, password string) error {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()

	chromedp.ListenTarget(tab, func(ev interface{}) {
		exec := cdp.WithExecutor(tab, chromedp.FromContext(tab).Target)
		switch ev := ev.(type) {
		case *fetch.EventRequestPaused:
			go func() {
				_ = fetch.ContinueRequest(ev.RequestID).Do(exec)
			}()
		case *fetch.EventAuthRequired:
			go func() {
				_ = fetch.ContinueWithAuth(ev.RequestID, &fetch.AuthChallengeResponse{
					Response: fetch.AuthChallengeResponseResponseProvideCredentials,
					Username: username,
					Password: password,
				}).Do(exec)
			}()
		}
	})
	return d.run(ctx, fetch.Enable().WithHandleAuthRequests(true))
}

func (d *ChromeDriver) SetViewport(ctx context.Context, width, height int) error {
	return d.run(ctx, chromedp.EmulateViewport(int64(width), int64(height)))
}

func (d *ChromeDriver) NextNavigation(ctx context.Context) error {
	c, cancel := d.with(ctx)
	defer cancel()

	loaded := make(chan struct{}, 1)
	chromedp.ListenTarget(c, func(ev interface{}) {
		if _, ok := ev.(*page.EventLoadEventFired); ok {
			select {
			case loaded <- struct{}{}:
			default:
			}
		}
	})
	select {
	case <-loaded:
		return nil
	case <-c.Done():
		if err := ctx.Err(); err != nil {
			return err
		}
		return errors.New("page closed before navigating")
	}
}

func (d *ChromeDriver) Subscribe() (<-chan NetEvent, func()) {
	d.mu.Lock()
	tab := d.tab
	d.mu.Unlock()

	c, cancel := context.WithCancel(tab)
	tracker := newRequestTracker(c.Done())
	chromedp.ListenTarget(c, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventRequestWillBeSent:
			tracker.started(ev.RequestID, ev.RedirectResponse != nil)
		case *network.EventLoadingFinished:
			tracker.finished(ev.RequestID)
		case *network.EventLoadingFailed:
			tracker.finished(ev.RequestID)
		}
	})
	return tracker.ch, cancel
}

// query maps a selector onto chromedp query options. Selectors prefixed with
// pierce/ search through shadow roots.
func (d *ChromeDriver) query(ctx context.Context, f *Frame, sel string, opts ...chromedp.QueryOption) (string, []chromedp.QueryOption, error) {
	if rest, ok := strings.CutPrefix(sel, piercePrefix); ok {
		return rest, append(opts, chromedp.BySearch), nil
	}
	opts = append(opts, chromedp.ByQuery)
	if f != nil {
		node, err := d.frameNode(ctx, f)
		if err != nil {
			return "", nil, err
		}
		opts = append(opts, chromedp.FromNode(node))
	}
	return sel, opts, nil
}

// frameNode returns the iframe element owning f.
func (d *ChromeDriver) frameNode(ctx context.Context, f *Frame) (*cdp.Node, error) {
	if n, ok := f.handle.(*cdp.Node); ok {
		return n, nil
	}

	var nodes []*cdp.Node
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		backendID, nodeID, err := dom.GetFrameOwner(cdp.FrameID(f.ID)).Do(ctx)
		if err != nil {
			return err
		}
		if nodeID == 0 {
			ids, err := dom.PushNodesByBackendIDsToFrontend([]cdp.BackendNodeID{backendID}).Do(ctx)
			if err != nil {
				return err
			}
			if len(ids) == 0 {
				return fmt.Errorf("no owner element for frame %s", f.ID)
			}
			nodeID = ids[0]
		}
		return chromedp.Nodes([]cdp.NodeID{nodeID}, &nodes, chromedp.ByNodeID).Do(ctx)
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to locate frame %s: %w", f.ID, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("failed to locate frame %s", f.ID)
	}
	f.handle = nodes[0]
	return nodes[0], nil
}

// call applies fn to the document of f with args, awaiting a returned
// promise. fn must return a JSON-serializable value.
func (d *ChromeDriver) call(ctx context.Context, f *Frame, fn string, args ...interface{}) (gjson.Result, error) {
	argv, err := json.Marshal(args)
	if err != nil {
		return gjson.Result{}, err
	}

	c, cancel := d.with(ctx)
	defer cancel()

	var raw []byte
	if f == nil {
		expr := fmt.Sprintf("(%s).apply(document, %s)", fn, argv)
		err := chromedp.Run(c, chromedp.Evaluate(expr, &raw, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}))
		return gjson.ParseBytes(raw), err
	}

	node, err := d.frameNode(c, f)
	if err != nil {
		return gjson.Result{}, err
	}
	decl := fmt.Sprintf("function() { return (%s).apply(this.contentDocument, %s) }", fn, argv)
	err = chromedp.Run(c, chromedp.ActionFunc(func(ctx context.Context) error {
		obj, err := dom.ResolveNode().WithNodeID(node.NodeID).Do(ctx)
		if err != nil {
			return err
		}
		res, exc, err := runtime.CallFunctionOn(decl).
			WithObjectID(obj.ObjectID).
			WithAwaitPromise(true).
			WithReturnByValue(true).
			Do(ctx)
		if err != nil {
			return err
		}
		if exc != nil {
			return exc
		}
		raw = []byte(res.Value)
		return nil
	}))
	return gjson.ParseBytes(raw), err
}

// callOK is call for helpers that report success as a boolean.
func (d *ChromeDriver) callOK(ctx context.Context, f *Frame, what, selector, fn string, args ...interface{}) error {
	res, err := d.call(ctx, f, fn, args...)
	if err != nil {
		return err
	}
	if !res.Bool() {
		return fmt.Errorf("%s: %w: %s", what, ErrSelectorNotFound, selector)
	}
	return nil
}

func plain(sel string) string {
	return strings.TrimPrefix(sel, piercePrefix)
}

func (d *ChromeDriver) WaitPresent(ctx context.Context, f *Frame, selector string) error {
	sel, opts, err := d.query(ctx, f, selector)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.WaitReady(sel, opts...))
}

const jsHidden = `function(sel) {
	const el = this.querySelector(sel);
	if (!el) return true;
	const style = this.defaultView.getComputedStyle(el);
	const rect = el.getBoundingClientRect();
	return style.display === 'none' || style.visibility === 'hidden' || (rect.width === 0 && rect.height === 0);
}`

func (d *ChromeDriver) WaitHidden(ctx context.Context, f *Frame, selector string) error {
	for {
		res, err := d.call(ctx, f, jsHidden, plain(selector))
		if err == nil && res.Bool() {
			return nil
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

func (d *ChromeDriver) Count(ctx context.Context, f *Frame, selector string) (int, error) {
	if strings.HasPrefix(selector, piercePrefix) {
		var nodes []*cdp.Node
		err := d.run(ctx, chromedp.Nodes(plain(selector), &nodes, chromedp.BySearch, chromedp.AtLeast(0)))
		return len(nodes), err
	}
	res, err := d.call(ctx, f, `function(sel) { return this.querySelectorAll(sel).length }`, selector)
	return int(res.Int()), err
}

func (d *ChromeDriver) Hover(ctx context.Context, f *Frame, selector string) error {
	return d.callOK(ctx, f, "hover", selector, `function(sel) {
	const el = this.querySelector(sel);
	if (!el) return false;
	el.scrollIntoView({block: 'center'});
	for (const type of ['mouseover', 'mouseenter', 'mousemove']) {
		el.dispatchEvent(new MouseEvent(type, {bubbles: true}));
	}
	return true;
}`, plain(selector))
}

func (d *ChromeDriver) Click(ctx context.Context, f *Frame, selector string) error {
	sel, opts, err := d.query(ctx, f, selector, chromedp.NodeVisible)
	if err != nil {
		return err
	}
	return d.run(ctx, chromedp.Click(sel, opts...))
}

func (d *ChromeDriver) DOMClick(ctx context.Context, f *Frame, selector string) error {
	return d.callOK(ctx, f, "click", selector, `function(sel) {
	const el = this.querySelector(sel);
	if (!el) return false;
	el.click();
	return true;
}`, plain(selector))
}

func (d *ChromeDriver) ClickText(ctx context.Context, text string, button bool) (bool, error) {
	res, err := d.call(ctx, nil, `function(text, button) {
	const all = Array.from(this.querySelectorAll(button ? 'button, [role=button]' : 'body *'));
	const el = all.reverse().find(e => (e.innerText || '').includes(text));
	if (!el) return false;
	el.click();
	return true;
}`, text, button)
	return res.Bool(), err
}

func (d *ChromeDriver) Type(ctx context.Context, f *Frame, selector, text string, delay time.Duration) error {
	sel, opts, err := d.query(ctx, f, selector)
	if err != nil {
		return err
	}
	if delay <= 0 {
		return d.run(ctx, chromedp.SendKeys(sel, text, opts...))
	}
	if err := d.run(ctx, chromedp.Focus(sel, opts...)); err != nil {
		return err
	}
	for _, r := range text {
		if err := d.run(ctx, chromedp.KeyEvent(string(r))); err != nil {
			return err
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (d *ChromeDriver) Clear(ctx context.Context, f *Frame, selector string) error {
	return d.callOK(ctx, f, "clear", selector, `function(sel) {
	const el = this.querySelector(sel);
	if (!el) return false;
	el.value = '';
	el.dispatchEvent(new Event('input', {bubbles: true}));
	return true;
}`, plain(selector))
}

func (d *ChromeDriver) Select(ctx context.Context, f *Frame, selector, value string) error {
	return d.callOK(ctx, f, "select", selector, `function(sel, value) {
	const el = this.querySelector(sel);
	if (!el) return false;
	el.value = value;
	el.dispatchEvent(new Event('input', {bubbles: true}));
	el.dispatchEvent(new Event('change', {bubbles: true}));
	return true;
}`, plain(selector), value)
}

func (d *ChromeDriver) Submit(ctx context.Context, f *Frame, selector string) error {
	return d.callOK(ctx, f, "submit", selector, `function(sel) {
	const el = this.querySelector(sel);
	const form = el && (el.form || el.closest('form') || el);
	if (!form || !form.requestSubmit) return false;
	form.requestSubmit();
	return true;
}`, plain(selector))
}

func (d *ChromeDriver) HideAll(ctx context.Context, f *Frame, selector string) error {
	_, err := d.call(ctx, f, `function(sel) {
	this.querySelectorAll(sel).forEach(el => { el.style.display = 'none'; });
	return true;
}`, plain(selector))
	return err
}

func (d *ChromeDriver) RemoveAll(ctx context.Context, f *Frame, selector string) error {
	_, err := d.call(ctx, f, `function(sel) {
	this.querySelectorAll(sel).forEach(el => el.remove());
	return true;
}`, plain(selector))
	return err
}

// Eval runs code as an async function body with document bound to the
// frame's document.
func (d *ChromeDriver) Eval(ctx context.Context, f *Frame, code string) error {
	_, err := d.call(ctx, f, `function(code) {
	const AsyncFunction = (async function() {}).constructor;
	return new AsyncFunction('document', code)(this).then(() => true);
}`, code)
	return err
}

func (d *ChromeDriver) ScrollTo(ctx context.Context, f *Frame, y int) error {
	_, err := d.call(ctx, f, `function(y) { this.defaultView.scrollTo(0, y); return true; }`, y)
	return err
}

func (d *ChromeDriver) ElementScreenshot(ctx context.Context, f *Frame, selector string) ([]byte, error) {
	sel, opts, err := d.query(ctx, f, selector, chromedp.NodeVisible)
	if err != nil {
		return nil, err
	}
	var buf []byte
	if err := d.run(ctx, chromedp.Screenshot(sel, &buf, opts...)); err != nil {
		return nil, err
	}
	return buf, nil
}

func (d *ChromeDriver) PageScreenshot(ctx context.Context, beyondViewport bool, quality int) ([]byte, error) {
	var buf []byte
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().
			WithFormat(page.CaptureScreenshotFormatJpeg).
			WithQuality(int64(quality)).
			WithCaptureBeyondViewport(beyondViewport).
			Do(ctx)
		return err
	}))
	return buf, err
}

// pageTargets lists open pages in the order they were first seen, which
// follows the order they were opened in.
func (d *ChromeDriver) pageTargets() ([]target.ID, error) {
	infos, err := chromedp.Targets(d.root)
	if err != nil {
		return nil, err
	}
	live := map[target.ID]bool{}
	for _, t := range infos {
		if t.Type == "page" {
			live[t.TargetID] = true
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	kept := make([]target.ID, 0, len(live))
	seen := map[target.ID]bool{}
	for _, id := range d.pages {
		if live[id] {
			kept = append(kept, id)
			seen[id] = true
		}
	}
	for _, t := range infos {
		if t.Type == "page" && !seen[t.TargetID] {
			kept = append(kept, t.TargetID)
			seen[t.TargetID] = true
		}
	}
	d.pages = kept
	return append([]target.ID(nil), kept...), nil
}

func (d *ChromeDriver) tabFor(id target.ID) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c, ok := d.tabs[id]; ok {
		return c, nil
	}
	c, cancel := chromedp.NewContext(d.root, chromedp.WithTargetID(id))
	if err := chromedp.Run(c); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to attach to tab %s: %w", id, err)
	}
	d.tabs[id] = c
	d.cancels = append(d.cancels, cancel)
	return c, nil
}

func (d *ChromeDriver) activate(ctx context.Context, id target.ID) error {
	c, err := d.tabFor(id)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.tab = c
	d.mu.Unlock()
	return d.run(ctx, page.BringToFront())
}

func (d *ChromeDriver) SwitchPage(ctx context.Context, index int) (bool, error) {
	ids, err := d.pageTargets()
	if err != nil {
		return false, err
	}
	if index < 0 || index >= len(ids) {
		return false, nil
	}
	return true, d.activate(ctx, ids[index])
}

func (d *ChromeDriver) SwitchLastPage(ctx context.Context) error {
	ids, err := d.pageTargets()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no open pages")
	}
	return d.activate(ctx, ids[len(ids)-1])
}

func (d *ChromeDriver) Frames(ctx context.Context) ([]*Frame, error) {
	var tree *page.FrameTree
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	var out []*Frame
	var walk func(t *page.FrameTree)
	walk = func(t *page.FrameTree) {
		if t == nil || t.Frame == nil {
			return
		}
		out = append(out, &Frame{ID: string(t.Frame.ID), URL: t.Frame.URL})
		for _, child := range t.ChildFrames {
			walk(child)
		}
	}
	walk(tree)
	return out, nil
}

func (d *ChromeDriver) ContentFrame(ctx context.Context, parent *Frame, selector string) (*Frame, error) {
	sel, opts, err := d.query(ctx, parent, selector, chromedp.AtLeast(0))
	if err != nil {
		return nil, err
	}
	var nodes []*cdp.Node
	if err := d.run(ctx, chromedp.Nodes(sel, &nodes, opts...)); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrSelectorNotFound, selector)
	}
	n := nodes[0]
	if n.NodeName != "IFRAME" && n.NodeName != "FRAME" {
		return nil, fmt.Errorf("%s is a %s, not a frame", selector, strings.ToLower(n.NodeName))
	}
	f := &Frame{ID: string(n.FrameID), handle: n}
	if n.ContentDocument != nil {
		f.URL = n.ContentDocument.DocumentURL
	}
	return f, nil
}

func (d *ChromeDriver) ClosePages(ctx context.Context) error {
	ids, err := d.pageTargets()
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			tab, err := d.tabFor(id)
			if err != nil {
				return err
			}
			c, cancel := context.WithCancel(tab)
			defer cancel()
			stop := context.AfterFunc(gctx, cancel)
			defer stop()
			return chromedp.Run(c, page.Close())
		})
	}
	return g.Wait()
}

func (d *ChromeDriver) Close(ctx context.Context) error {
	err := d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return browser.Close().Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	}))

	d.mu.Lock()
	cancels := d.cancels
	d.cancels = nil
	d.mu.Unlock()
	for i := len(cancels) - 1; i >= 0; i-- {
		cancels[i]()
	}
	d.allocCancel()
	return err
}
