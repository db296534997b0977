// Package executor runs compiled capture scripts against a browser Driver.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dashshot/internal/compiler"
	"dashshot/internal/config"
	"dashshot/internal/program"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrFrameNotFound    = errors.New("frame not found")
	ErrSelectorNotFound = errors.New("selector not found")
	ErrNoMarker         = errors.New("no landing marker appeared")
	ErrNoScreenshot     = errors.New("script finished without a screenshot")
)

type Options struct {
	DefaultWait       time.Duration
	NavigationTimeout time.Duration
	// Now feeds TOTP generation.
	Now func() time.Time
	// DegradedTimeout bounds the fallback page screenshot.
	DegradedTimeout time.Duration
}

func DefaultOptions() Options {
	return OptionsFromTiming(config.DefaultTiming())
}

func OptionsFromTiming(t config.TimingConfig) Options {
	return Options{
		DefaultWait:       t.DefaultWait,
		NavigationTimeout: t.InitialNavigationTimeout,
		Now:               time.Now,
		DegradedTimeout:   30 * time.Second,
	}
}

// Result is the outcome of one capture. Degraded is set when Image is the
// fallback page screenshot instead of the scripted one.
type Result struct {
	Image    []byte
	Degraded bool
}

type navigation struct {
	done chan struct{}
	err  error
}

type runner struct {
	d      Driver
	opts   Options
	logger zerolog.Logger

	frames     map[int]*Frame
	nav        *navigation
	navTimeout time.Duration
	shot       []byte
}

// Run executes script on d. A frame that cannot be located fails the run
// with no image. Any other failure, including a panic, yields a degraded
// whole-page screenshot. Pages and the browser are closed before Run
// returns, whatever happened.
func Run(ctx context.Context, script *compiler.Script, d Driver, opts Options) (Result, error) {
	if opts.DefaultWait <= 0 {
		opts.DefaultWait = 30 * time.Second
	}
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 30 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DegradedTimeout <= 0 {
		opts.DegradedTimeout = 30 * time.Second
	}

	r := &runner{
		d:      d,
		opts:   opts,
		logger: log.With().Str("dashboardId", script.Header.DashboardID).Logger(),
		frames: map[int]*Frame{},
	}
	defer r.cleanup(ctx, script.Footer.CloseTimeout)

	start := time.Now()
	r.logger.Info().Int("blocks", len(script.Blocks)).Msg("🏁 Starting capture script")

	err := r.body(ctx, script)
	if err == nil && r.shot != nil {
		r.logger.Info().Dur("took", time.Since(start)).Msg("🎉 Capture script completed")
		return Result{Image: r.shot}, nil
	}
	if err == nil {
		err = ErrNoScreenshot
	}
	if errors.Is(err, ErrFrameNotFound) {
		r.logger.Error().Err(err).Msg("❌ Frame resolution failed")
		return Result{}, err
	}

	r.logger.Warn().Err(err).Msg("⚠️ Capture script failed, taking page screenshot instead")
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.DegradedTimeout)
	defer cancel()
	img, shotErr := d.PageScreenshot(sctx, false, script.Footer.FallbackQuality)
	if shotErr != nil {
		return Result{}, fmt.Errorf("%v; fallback screenshot failed: %w", err, shotErr)
	}
	return Result{Image: img, Degraded: true}, nil
}

func (r *runner) body(ctx context.Context, script *compiler.Script) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error().Interface("panic", rec).Msg("🚨 PANIC recovered in capture script")
			err = fmt.Errorf("capture script panic: %v", rec)
		}
	}()

	h := script.Header
	if err := r.d.Setup(ctx, SetupOptions{BypassCSP: h.BypassCSP, Diagnostics: h.Diagnostics}); err != nil {
		return fmt.Errorf("failed to set up page: %w", err)
	}

	for i, l := range script.Lines() {
		if l.Instr == nil {
			continue
		}
		var f *Frame
		// frame prologues run on the main page and define their own frame
		if l.Instr.Op != program.OpResolveFrame {
			if f, err = r.frame(l.FrameID); err != nil {
				return err
			}
		}
		if err := r.exec(ctx, f, *l.Instr); err != nil {
			return fmt.Errorf("line %d (%s): %w", i, l.Kind, err)
		}
	}
	return nil
}

func (r *runner) frame(id int) (*Frame, error) {
	if id == 0 {
		return nil, nil
	}
	f, ok := r.frames[id]
	if !ok {
		return nil, fmt.Errorf("%w: frame %d used before it was located", ErrFrameNotFound, id)
	}
	return f, nil
}

func (r *runner) seq(ctx context.Context, f *Frame, list []program.Instruction) error {
	for _, ins := range list {
		if err := r.exec(ctx, f, ins); err != nil {
			return err
		}
	}
	return nil
}

func (r *runner) exec(ctx context.Context, f *Frame, ins program.Instruction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	switch ins.Op {
	case program.OpProcedure:
		return r.seq(ctx, f, ins.Body)
	case program.OpTry:
		if err := r.seq(ctx, f, ins.Body); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Debug().Err(err).Msg("Optional step failed")
		}
		return nil
	case program.OpLog:
		r.logger.Info().Msg(ins.Value)
		return nil

	case program.OpGoto:
		r.logger.Info().Str("action", "goto").Str("url", ins.Value).Msg("🌍 Navigating")
		return r.timed(ctx, ins.Timeout, r.opts.NavigationTimeout, func(ctx context.Context) error {
			return r.d.Navigate(ctx, ins.Value)
		})
	case program.OpAuthenticate:
		return r.d.Authenticate(ctx, ins.Username, ins.Value)
	case program.OpViewport:
		return r.d.SetViewport(ctx, ins.Width, ins.Height)
	case program.OpWatchNavigation:
		r.navTimeout = ins.Timeout
		r.watchNavigation(ctx, ins.Timeout)
		return nil
	case program.OpWaitNavigation:
		return r.waitNavigation(ctx, ins.Timeout)

	case program.OpWait:
		return r.timed(ctx, ins.Timeout, r.opts.DefaultWait, func(ctx context.Context) error {
			return r.d.WaitPresent(ctx, f, ins.Selector)
		})
	case program.OpWaitHidden:
		return r.timed(ctx, ins.Timeout, r.opts.DefaultWait, func(ctx context.Context) error {
			return r.d.WaitHidden(ctx, f, ins.Selector)
		})
	case program.OpWaitChain:
		_, err := r.firstPresent(ctx, f, ins.Chain)
		return err
	case program.OpWaitGone:
		return r.waitGone(ctx, f, ins.Selector, ins.Timeout, ins.Delay)

	case program.OpClick:
		return r.click(ctx, f, ins)
	case program.OpTap:
		return r.timed(ctx, 0, r.opts.DefaultWait, func(ctx context.Context) error {
			return r.d.Click(ctx, f, ins.Selector)
		})
	case program.OpPickMethod:
		return r.pickMethod(ctx, *ins.Pick)
	case program.OpType:
		if !ins.Secret {
			r.logger.Debug().Str("action", "type").Str("selector", ins.Selector).Msg("⌨️ Typing")
		}
		return r.d.Type(ctx, f, ins.Selector, ins.Value, ins.Delay)
	case program.OpClear:
		return r.d.Clear(ctx, f, ins.Selector)
	case program.OpTotp:
		code, err := totpCode(ins.Value, r.opts.Now())
		if err != nil {
			return err
		}
		return r.d.Type(ctx, f, ins.Selector, code, 0)
	case program.OpSelect:
		return r.d.Select(ctx, f, ins.Selector, ins.Value)
	case program.OpSubmit:
		return r.d.Submit(ctx, f, ins.Selector)
	case program.OpHide:
		return r.d.HideAll(ctx, f, ins.Selector)
	case program.OpRemove:
		return r.d.RemoveAll(ctx, f, ins.Selector)
	case program.OpEval:
		return r.d.Eval(ctx, f, ins.Value)
	case program.OpSleep:
		return sleep(ctx, ins.Delay)
	case program.OpScroll:
		return r.d.ScrollTo(ctx, f, ins.Index)
	case program.OpSettle:
		wait := Settle(ctx, r.d, *ins.Settle)
		if err := r.seq(ctx, f, ins.Body); err != nil {
			return err
		}
		<-wait
		return nil

	case program.OpSwitchTab:
		ok, err := r.d.SwitchPage(ctx, ins.Index)
		if err != nil {
			return err
		}
		if !ok {
			r.logger.Warn().Int("tab", ins.Index).Msg("⚠️ Tab not open, staying on current page")
		}
		return nil
	case program.OpSwitchLastTab:
		return r.d.SwitchLastPage(ctx)
	case program.OpResolveFrame:
		located, err := r.resolveFrame(ctx, *ins.Frame)
		if err != nil {
			return err
		}
		r.frames[ins.Frame.ID] = located
		return nil
	case program.OpWithFrame:
		located, err := r.resolveFrame(ctx, *ins.Frame)
		if err != nil {
			return err
		}
		return r.seq(ctx, located, ins.Body)
	case program.OpRace:
		return r.race(ctx, f, *ins.Race)

	case program.OpScreenshot:
		return r.screenshot(ctx, f, *ins.Shot)
	}
	return fmt.Errorf("unsupported instruction: %s", ins.Op)
}

// timed runs fn under timeout, or fallback when timeout is zero.
func (r *runner) timed(ctx context.Context, timeout, fallback time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = fallback
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return fn(tctx)
}

// firstPresent walks a fallback chain and returns the first alternative that
// appears within its own timeout.
func (r *runner) firstPresent(ctx context.Context, f *Frame, chain []program.Attempt) (string, error) {
	for _, a := range chain {
		err := r.timed(ctx, a.Timeout, r.opts.DefaultWait, func(ctx context.Context) error {
			return r.d.WaitPresent(ctx, f, a.Selector)
		})
		if err == nil {
			return a.Selector, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}
	return "", fmt.Errorf("%w: %s", ErrSelectorNotFound, joinChain(chain))
}

// click hovers and clicks each present alternative in order with a
// settlement wait armed. When no native click lands, the present
// alternatives get a DOM element.click() instead.
func (r *runner) click(ctx context.Context, f *Frame, ins program.Instruction) error {
	var wait <-chan string
	if ins.Settle != nil {
		wait = Settle(ctx, r.d, *ins.Settle)
	}

	clicked := false
	var present []string
	for _, a := range ins.Chain {
		n, err := r.d.Count(ctx, f, a.Selector)
		if err != nil || n == 0 {
			continue
		}
		present = append(present, a.Selector)
		if err := r.d.Hover(ctx, f, a.Selector); err != nil {
			r.logger.Debug().Err(err).Str("selector", a.Selector).Msg("Hover failed")
		}
		err = r.timed(ctx, a.Timeout, r.opts.DefaultWait, func(ctx context.Context) error {
			return r.d.Click(ctx, f, a.Selector)
		})
		if err == nil {
			clicked = true
			break
		}
		r.logger.Debug().Err(err).Str("selector", a.Selector).Msg("Click alternative failed")
	}
	for _, sel := range present {
		if clicked || ctx.Err() != nil {
			break
		}
		if err := r.d.DOMClick(ctx, f, sel); err != nil {
			r.logger.Debug().Err(err).Str("selector", sel).Msg("DOM click failed")
			continue
		}
		r.logger.Debug().Str("selector", sel).Msg("🖱️ Clicked through the DOM")
		clicked = true
	}
	if !clicked {
		return fmt.Errorf("%w: %s", ErrSelectorNotFound, joinChain(ins.Chain))
	}

	if wait != nil {
		<-wait
	}
	return sleep(ctx, ins.Delay)
}

func (r *runner) waitGone(ctx context.Context, f *Frame, selector string, timeout, delay time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		n, err := r.d.Count(ctx, f, selector)
		if err == nil && n == 0 {
			return sleep(ctx, delay)
		}
		if time.Now().After(deadline) {
			r.logger.Debug().Str("selector", selector).Msg("Element still present, moving on")
			return nil
		}
		if err := sleep(ctx, 100*time.Millisecond); err != nil {
			return err
		}
	}
}

// pickMethod keeps asking the identity provider for another sign-in method
// until the target method is offered and chosen.
func (r *runner) pickMethod(ctx context.Context, p program.PickMethod) error {
	for i := 0; i < p.Attempts; i++ {
		switched, err := r.d.ClickText(ctx, p.Switch, true)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if switched {
			r.logger.Info().Int("attempt", i+1).Msg("🔁 Asked for another sign-in method")
			if err := sleep(ctx, p.Backoff); err != nil {
				return err
			}
			continue
		}
		chosen, err := r.d.ClickText(ctx, p.Target, false)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		if chosen {
			r.logger.Info().Str("method", p.Target).Msg("✅ Sign-in method chosen")
			return nil
		}
		if err := sleep(ctx, p.Idle); err != nil {
			return err
		}
	}
	r.logger.Warn().Str("method", p.Target).Msg("⚠️ Sign-in method never offered")
	return nil
}

func (r *runner) watchNavigation(ctx context.Context, timeout time.Duration) {
	if timeout <= 0 {
		timeout = r.opts.NavigationTimeout
	}
	n := &navigation{done: make(chan struct{})}
	go func() {
		defer close(n.done)
		nctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		n.err = r.d.NextNavigation(nctx)
	}()
	r.nav = n
}

// waitNavigation awaits the standing navigation watch. With a timeout the
// wait is bounded, never fails, and a fresh watch is armed afterwards;
// without one the watch outcome is returned as is.
func (r *runner) waitNavigation(ctx context.Context, timeout time.Duration) error {
	if r.nav == nil {
		r.watchNavigation(ctx, r.navTimeout)
	}
	n := r.nav

	if timeout <= 0 {
		select {
		case <-n.done:
			return n.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-n.done:
		if n.err != nil {
			r.logger.Debug().Err(n.err).Msg("Navigation did not happen")
		}
	case <-t.C:
		r.logger.Debug().Msg("Navigation wait timed out")
	case <-ctx.Done():
		return ctx.Err()
	}
	r.watchNavigation(ctx, r.navTimeout)
	return nil
}

func (r *runner) screenshot(ctx context.Context, f *Frame, shot program.Shot) error {
	if shot.Selector == "" {
		img, err := r.d.PageScreenshot(ctx, shot.BeyondViewport, shot.Quality)
		if err != nil {
			return fmt.Errorf("failed to take page screenshot: %w", err)
		}
		r.shot = img
		r.logger.Info().Int("bytes", len(img)).Msg("📸 Page screenshot taken")
		return nil
	}

	png, err := r.d.ElementScreenshot(ctx, f, shot.Selector)
	if err != nil {
		return fmt.Errorf("failed to take element screenshot: %w", err)
	}
	img, err := cropJPEG(png, shot.CropTop, shot.CropMaxHeight, shot.Quality)
	if err != nil {
		return err
	}
	r.shot = img
	r.logger.Info().Str("selector", shot.Selector).Int("bytes", len(img)).Msg("📸 Element screenshot taken")
	return nil
}

// cleanup closes every page and then the browser, giving the browser at most
// closeTimeout before moving on.
func (r *runner) cleanup(ctx context.Context, closeTimeout time.Duration) {
	if closeTimeout <= 0 {
		closeTimeout = 5 * time.Second
	}
	base := context.WithoutCancel(ctx)

	pctx, cancel := context.WithTimeout(base, closeTimeout)
	if err := r.d.ClosePages(pctx); err != nil {
		r.logger.Warn().Err(err).Msg("⚠️ Failed to close pages")
	}
	cancel()

	bctx, cancel := context.WithTimeout(base, closeTimeout)
	defer cancel()
	closed := make(chan error, 1)
	go func() { closed <- r.d.Close(bctx) }()
	select {
	case err := <-closed:
		if err != nil {
			r.logger.Warn().Err(err).Msg("⚠️ Browser close failed")
			return
		}
		r.logger.Info().Msg("✅ Browser is closed")
	case <-bctx.Done():
		r.logger.Warn().Msg("⚠️ Browser close timeout")
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func joinChain(chain []program.Attempt) string {
	s := ""
	for i, a := range chain {
		if i > 0 {
			s += ","
		}
		s += a.Selector
	}
	return s
}
