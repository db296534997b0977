// Package compiler turns a recorded event sequence into an executable
// capture Script. Recognized dashboard vendors get a synthesized
// detect-then-act login flow; everything else is replayed event by event.
package compiler

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"dashshot/internal/config"
	"dashshot/internal/models"
	"dashshot/internal/program"

	"github.com/rs/zerolog/log"
)

var (
	ErrSecretNotFound = errors.New("secret not found")
	ErrMalformedFrame = errors.New("malformed frame data")
)

const (
	screenshotQuality  = 90
	cropMaxHeight      = 1080
	tabSettleTimeout   = 3 * time.Second
	tabSettleMinimum   = time.Second
	shotFirstRequest   = 500 * time.Millisecond
	trelloMaxInflight  = 2
	splunkLoader       = "#placeholder-main-section-body"
	splunkLoaderWait   = 3 * time.Second
	defaultShotPause   = 2 * time.Second
	splunkShotPause    = 5 * time.Second
	lookerShotPause    = time.Second
	googleIdentityPage = "https://accounts.google.com/v3/signin/identifier"
)

type Options struct {
	Timing                  config.TimingConfig
	WaitForNavigation       bool
	WaitForSelectorOnClick  bool
	BlankLinesBetweenBlocks bool
	KeyCode                 int
	Headless                bool
	ProfilesDir             string
	Proxy                   []config.ProxyRule
	Vendors                 config.VendorConfig
}

func DefaultOptions() Options {
	return Options{
		Timing:                  config.DefaultTiming(),
		WaitForSelectorOnClick:  true,
		BlankLinesBetweenBlocks: true,
		KeyCode:                 9,
		Headless:                true,
		ProfilesDir:             "./tmp/chromium-user-data",
	}
}

// OptionsFromConfig maps the application configuration onto compiler options.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Timing = cfg.Timing
	opts.WaitForNavigation = cfg.Capture.WaitForNavigation
	opts.KeyCode = cfg.Capture.KeyCode
	opts.Headless = cfg.Chrome.HeadlessMode
	opts.ProfilesDir = cfg.Chrome.ProfilesDir
	opts.Proxy = cfg.Proxy
	opts.Vendors = cfg.Vendors
	return opts
}

type Compiler struct {
	opts    Options
	vendors []Vendor
	proxies *proxySelector
}

func New(opts Options) *Compiler {
	if opts.Timing.ClickFirstTimeout == 0 {
		opts.Timing = config.DefaultTiming()
	}
	if opts.KeyCode == 0 {
		opts.KeyCode = 9
	}
	return &Compiler{
		opts:    opts,
		vendors: defaultVendors(),
		proxies: newProxySelector(opts.Proxy),
	}
}

// Compile builds the capture script for one dashboard. Events must already
// carry resolved secrets. The compiler keeps no state between calls.
func (c *Compiler) Compile(events []models.Event, tenantID, dashboardID string) (*Script, error) {
	if err := models.ValidateDashboardID(dashboardID); err != nil {
		return nil, err
	}
	if err := validateFrames(events); err != nil {
		return nil, err
	}

	lastURL := TerminalURL(events)
	s := &session{
		opts:       c.opts,
		t:          c.opts.Timing,
		frames:     map[int]program.Frame{},
		lastURL:    lastURL,
		initialURL: InitialURL(events),
	}

	logger := log.With().Str("dashboardId", dashboardID).Str("platform", Platform(events)).Logger()

	if v, ok := c.match(events, lastURL); ok {
		logger.Info().Str("vendor", v.Name).Msg("🧩 Synthesizing vendor flow")
		events = s.synthesize(events, v)
		s.synthesized = true
	} else if run, ok := findGoogleRun(events); ok {
		logger.Info().Int("start", run.start).Int("end", run.end).Msg("🧩 Collapsing identity provider steps")
		events = collapseGoogleRun(events, run)
	}

	if containsAny(lastURL, simplifiedHosts) {
		events = rewriteSelectors(events, keepIDAlternative)
	}
	if isKibanaURL(lastURL) {
		events = rewriteSelectors(events, dropIDAlternatives)
	}

	lastTab := 0
	for _, e := range events {
		s.setFrame(e)
		if e.TabIndex != nil && *e.TabIndex != lastTab && !s.synthesized {
			s.blocks = append(s.blocks, s.tabPrologue(*e.TabIndex))
			lastTab = *e.TabIndex
		}
		if b := s.handle(e); b != nil {
			s.blocks = append(s.blocks, b)
		}
	}

	s.blocks = append([]*Block{newBlockWith(0, KindNavigationPromise, program.Instruction{
		Op:      program.OpWatchNavigation,
		Timeout: s.t.InitialNavigationTimeout,
	})}, s.blocks...)

	s.postProcess()

	return &Script{
		Header: Header{
			DashboardID: dashboardID,
			ProfileDir:  filepath.Join(c.opts.ProfilesDir, dashboardID),
			Proxy:       c.proxies.pick(tenantID, lastURL),
			Headless:    c.opts.Headless,
			Stealth:     !isSplunkURL(lastURL),
			BypassCSP:   true,
			Diagnostics: true,
		},
		Blocks: s.blocks,
		Footer: Footer{
			FallbackQuality: screenshotQuality,
			CloseTimeout:    s.t.CloseTimeout,
		},
		TerminalURL: lastURL,
	}, nil
}

func (c *Compiler) match(events []models.Event, lastURL string) (Vendor, bool) {
	for _, v := range c.vendors {
		if !v.Match(lastURL) {
			continue
		}
		if v.Eligible != nil && !v.Eligible(events) {
			return Vendor{}, false
		}
		return v, true
	}
	return Vendor{}, false
}

func validateFrames(events []models.Event) error {
	for i, e := range events {
		if e.FrameID == 0 {
			continue
		}
		if e.FrameID < 0 || e.FrameIndex < 0 {
			return fmt.Errorf("%w: event %d has frame id %d index %d", ErrMalformedFrame, i, e.FrameID, e.FrameIndex)
		}
		for _, sel := range e.FrameSelectors {
			for _, alt := range strings.Split(sel, ",") {
				if strings.TrimSpace(alt) == "" {
					return fmt.Errorf("%w: event %d has empty frame selector in %q", ErrMalformedFrame, i, sel)
				}
			}
		}
	}
	return nil
}

func splitSelector(sel string) []string {
	parts := strings.Split(sel, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// session is the per-Compile state.
type session struct {
	opts Options
	t    config.TimingConfig

	blocks  []*Block
	frameID int
	frames  map[int]program.Frame

	lastURL     string
	initialURL  string
	scroll      int
	synthesized bool
}

func (s *session) setFrame(e models.Event) {
	if e.FrameID == 0 {
		s.frameID = 0
		return
	}
	s.frameID = e.FrameID

	hops := make([][]program.Attempt, 0, len(e.FrameSelectors))
	for _, sel := range e.FrameSelectors {
		hops = append(hops, program.Chain(splitSelector(sel), s.t.ClickFirstTimeout, s.t.ClickNextTimeout))
	}
	s.frames[e.FrameID] = program.Frame{
		ID:    e.FrameID,
		URL:   e.FrameURL,
		Index: e.FrameIndex,
		Hops:  hops,
	}
}

func (s *session) maxInflight() int {
	if strings.Contains(s.initialURL, "trello") {
		return trelloMaxInflight
	}
	return 0
}

func (s *session) settle(timeout time.Duration, maxInflight int) program.Settle {
	return program.Settle{
		Timeout:      timeout,
		FirstRequest: s.t.SettleFirstRequest,
		Quiet:        s.t.SettleQuiet,
		MaxInflight:  maxInflight,
	}
}

func (s *session) tabPrologue(index int) *Block {
	before := s.settle(tabSettleTimeout, s.t.SettleMaxInflight)
	before.MinDuration = tabSettleMinimum
	return newBlockWith(s.frameID, KindPageSet,
		program.Settled(before),
		program.Instruction{Op: program.OpSwitchTab, Index: index},
		program.Settled(s.settle(tabSettleTimeout, s.t.SettleMaxInflight)),
	)
}

func (s *session) postProcess() {
	if len(s.frames) > 0 {
		s.addFramePrologues()
	}
	if s.opts.BlankLinesBetweenBlocks && len(s.blocks) > 0 {
		s.addBlankBlocks()
	}
}

// addFramePrologues puts a frame resolution step on top of the first block
// that uses each recorded frame.
func (s *session) addFramePrologues() {
	for _, b := range s.blocks {
		for _, l := range b.Lines() {
			f, ok := s.frames[l.FrameID]
			if l.FrameID == 0 || !ok {
				continue
			}
			b.AddLineToTop(KindFrameSet, program.Instruction{Op: program.OpResolveFrame, Frame: &f})
			delete(s.frames, l.FrameID)
			break
		}
	}
}

func (s *session) addBlankBlocks() {
	for i := 0; i <= len(s.blocks); i += 2 {
		s.blocks = append(s.blocks[:i], append([]*Block{blankBlock()}, s.blocks[i:]...)...)
	}
}
