package executor

import (
	"bytes"
	"context"
	"testing"
	"time"

	"dashshot/internal/compiler"
	"dashshot/internal/program"

	"github.com/disintegration/imaging"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type block struct {
	frameID int
	ins     []program.Instruction
}

func scriptOf(blocks ...block) *compiler.Script {
	s := &compiler.Script{
		Header: compiler.Header{DashboardID: "dash-1", BypassCSP: true, Diagnostics: true},
		Footer: compiler.Footer{FallbackQuality: 90, CloseTimeout: 200 * time.Millisecond},
	}
	for _, b := range blocks {
		cb := compiler.NewBlock(b.frameID)
		for _, ins := range b.ins {
			cb.AddLine(compiler.KindCustom, ins)
		}
		s.Blocks = append(s.Blocks, cb)
	}
	return s
}

func mainBlock(ins ...program.Instruction) block {
	return block{ins: ins}
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.DefaultWait = 200 * time.Millisecond
	opts.DegradedTimeout = time.Second
	return opts
}

func newRunner(d Driver, opts Options) *runner {
	return &runner{d: d, opts: opts, logger: zerolog.Nop(), frames: map[int]*Frame{}}
}

func pageShot() program.Instruction {
	return program.Instruction{Op: program.OpScreenshot, Shot: &program.Shot{Quality: 90}}
}

func TestRunTakesCroppedElementScreenshot(t *testing.T) {
	d := newFakeDriver()
	d.present["#report"] = true
	d.element = testPNG(120, 400)

	res, err := Run(context.Background(), scriptOf(mainBlock(
		program.Wait("#report", 0),
		program.Instruction{Op: program.OpScreenshot, Shot: &program.Shot{
			Selector:      "#report",
			CropTop:       100,
			CropMaxHeight: 250,
			Quality:       90,
		}},
	)), d, testOptions())
	require.NoError(t, err)
	assert.False(t, res.Degraded)

	img, err := imaging.Decode(bytes.NewReader(res.Image))
	require.NoError(t, err)
	assert.Equal(t, 120, img.Bounds().Dx())
	assert.Equal(t, 250, img.Bounds().Dy())

	assert.True(t, d.called("setup csp=true diagnostics=true"))
	assert.True(t, d.pagesClosed)
	assert.True(t, d.closed)
}

func TestRunFallsBackToPageScreenshot(t *testing.T) {
	d := newFakeDriver()

	res, err := Run(context.Background(), scriptOf(mainBlock(
		program.Wait("#never", 50*time.Millisecond),
		pageShot(),
	)), d, testOptions())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.Equal(t, []byte("page-jpeg"), res.Image)
	assert.True(t, d.called("page screenshot quality=90"))
	assert.True(t, d.closed)
}

func TestRunRecoversFromPanic(t *testing.T) {
	d := newFakeDriver()
	d.panicOnEval = true

	res, err := Run(context.Background(), scriptOf(mainBlock(
		program.Instruction{Op: program.OpEval, Value: "boom()"},
		pageShot(),
	)), d, testOptions())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
	assert.True(t, d.pagesClosed)
}

func TestRunWithoutScreenshotIsDegraded(t *testing.T) {
	d := newFakeDriver()
	res, err := Run(context.Background(), scriptOf(mainBlock(program.Log("nothing to see"))), d, testOptions())
	require.NoError(t, err)
	assert.True(t, res.Degraded)
}

func TestUnresolvedFrameIsFatal(t *testing.T) {
	d := newFakeDriver()
	frame := program.Frame{
		ID:    7,
		URL:   "https://reports.example.com/embed",
		Index: 3,
		Hops:  [][]program.Attempt{program.Chain([]string{"iframe.missing"}, 50*time.Millisecond, 10*time.Millisecond)},
	}

	res, err := Run(context.Background(), scriptOf(block{frameID: 7, ins: []program.Instruction{
		{Op: program.OpResolveFrame, Frame: &frame},
		program.Wait("#chart", 0),
		pageShot(),
	}}), d, testOptions())
	require.ErrorIs(t, err, ErrFrameNotFound)
	assert.Nil(t, res.Image)
	assert.False(t, d.called("page screenshot"))
	assert.True(t, d.closed)
}

func TestFrameFallsBackToURL(t *testing.T) {
	d := newFakeDriver()
	embed := &Frame{ID: "embed", URL: "https://reports.example.com/embed"}
	d.frames = append(d.frames, &Frame{ID: "ads", URL: "https://ads.example.com/"}, embed)
	d.present["#chart"] = true
	frame := program.Frame{
		ID:   7,
		URL:  "https://reports.example.com/embed",
		Hops: [][]program.Attempt{program.Chain([]string{"iframe.gone"}, 20*time.Millisecond, 10*time.Millisecond)},
	}
	d.element = testPNG(10, 10)

	res, err := Run(context.Background(), scriptOf(block{frameID: 7, ins: []program.Instruction{
		{Op: program.OpResolveFrame, Frame: &frame},
		program.Type("#chart", "x", 0),
		{Op: program.OpScreenshot, Shot: &program.Shot{Selector: "#chart", Quality: 90}},
	}}), d, testOptions())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, d.called("type #chart in embed"))
	assert.True(t, d.called("element screenshot #chart in embed"))
}

func TestFrameResolvedBySelectorHops(t *testing.T) {
	d := newFakeDriver()
	d.present["#outer"] = true
	d.present["#inner"] = true
	d.present["#refresh"] = true
	d.content["#outer"] = &Frame{ID: "outer"}
	d.content["#inner"] = &Frame{ID: "inner"}
	frame := program.Frame{
		ID: 3,
		Hops: [][]program.Attempt{
			program.Chain([]string{"#absent", "#outer"}, 20*time.Millisecond, 10*time.Millisecond),
			program.Chain([]string{"#inner"}, 20*time.Millisecond, 10*time.Millisecond),
		},
	}

	_, err := Run(context.Background(), scriptOf(
		block{frameID: 3, ins: []program.Instruction{{Op: program.OpResolveFrame, Frame: &frame}, program.Tap("#refresh")}},
		mainBlock(pageShot()),
	), d, testOptions())
	require.NoError(t, err)
	assert.True(t, d.called("click #refresh in inner"))
}

func TestRaceRunsWinningBranch(t *testing.T) {
	d := newFakeDriver()
	d.appear["#password"] = 30 * time.Millisecond

	race := program.Race{
		Markers: []program.Marker{
			{Tag: "email", Selector: "#email", Timeout: 500 * time.Millisecond},
			{Tag: "password", Selector: "#password", Timeout: 500 * time.Millisecond},
		},
		Branches: []program.Branch{
			{Tag: "email", Body: []program.Instruction{program.Type("#email", "a@b.com", 0)}},
			{Tag: "password", Body: []program.Instruction{program.TypeSecret("#password", "pw", 0)}},
		},
	}

	start := time.Now()
	_, err := Run(context.Background(), scriptOf(mainBlock(program.RaceOf(race), pageShot())), d, testOptions())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
	assert.Equal(t, "pw", d.typed["#password"])
	assert.NotContains(t, d.typed, "#email")
}

func TestRaceTimeoutBranch(t *testing.T) {
	d := newFakeDriver()
	race := program.Race{
		Markers:   []program.Marker{{Tag: "a", Selector: "#a", Timeout: 30 * time.Millisecond}},
		OnTimeout: []program.Instruction{program.Goto("https://example.com/login", 0)},
	}
	res, err := Run(context.Background(), scriptOf(mainBlock(program.RaceOf(race), pageShot())), d, testOptions())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.True(t, d.called("navigate https://example.com/login"))
}

func TestRaceWithoutMarkerFails(t *testing.T) {
	d := newFakeDriver()
	race := program.Race{Markers: []program.Marker{{Tag: "a", Selector: "#a", Timeout: 30 * time.Millisecond}}}
	r := newRunner(d, testOptions())
	err := r.race(context.Background(), nil, race)
	assert.ErrorIs(t, err, ErrNoMarker)
}

func TestClickFallsThroughAlternatives(t *testing.T) {
	d := newFakeDriver()
	d.present["button.save"] = true
	settle := program.Settle{Timeout: 100 * time.Millisecond, FirstRequest: 20 * time.Millisecond}

	_, err := Run(context.Background(), scriptOf(mainBlock(
		program.Instruction{
			Op:     program.OpClick,
			Chain:  program.Chain([]string{"#save", "button.save"}, 0, 0),
			Settle: &settle,
			Delay:  10 * time.Millisecond,
		},
		pageShot(),
	)), d, testOptions())
	require.NoError(t, err)
	assert.True(t, d.called("click button.save in main"))
	assert.False(t, d.called("click #save"))
}

func TestClickHoversThenFallsBackToDOMClick(t *testing.T) {
	d := newFakeDriver()
	// Counted in the DOM but never clickable.
	d.counts["#btn"] = 1

	r := newRunner(d, testOptions())
	err := r.exec(context.Background(), nil, program.Instruction{
		Op:    program.OpClick,
		Chain: program.Chain([]string{"#missing", "#btn"}, 30*time.Millisecond, 30*time.Millisecond),
	})
	require.NoError(t, err)
	assert.True(t, d.called("hover #btn"))
	assert.True(t, d.called("domclick #btn"))
	assert.False(t, d.called("click #btn"))
	assert.False(t, d.called("domclick #missing"))
}

func TestClickWithNothingPresentFails(t *testing.T) {
	d := newFakeDriver()
	r := newRunner(d, testOptions())
	err := r.exec(context.Background(), nil, program.Instruction{
		Op:    program.OpClick,
		Chain: program.Chain([]string{"#a", "#b"}, 20*time.Millisecond, 20*time.Millisecond),
	})
	assert.ErrorIs(t, err, ErrSelectorNotFound)
	assert.False(t, d.called("domclick"))
}

func TestWaitChainExhaustedFails(t *testing.T) {
	d := newFakeDriver()
	r := newRunner(d, testOptions())
	err := r.exec(context.Background(), nil, program.Instruction{
		Op:    program.OpWaitChain,
		Chain: program.Chain([]string{"#a", "#b"}, 30*time.Millisecond, 10*time.Millisecond),
	})
	assert.ErrorIs(t, err, ErrSelectorNotFound)
}

func TestTrySwallowsFailures(t *testing.T) {
	d := newFakeDriver()
	res, err := Run(context.Background(), scriptOf(mainBlock(
		program.Try(program.Wait("#cookie-banner", 20*time.Millisecond), program.Remove("#cookie-banner")),
		pageShot(),
	)), d, testOptions())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.False(t, d.called("remove"))
}

func TestWaitGoneMovesOnWhenElementStays(t *testing.T) {
	d := newFakeDriver()
	d.counts[".spinner"] = 1
	r := newRunner(d, testOptions())
	start := time.Now()
	err := r.exec(context.Background(), nil, program.WaitGone(".spinner", 150*time.Millisecond, time.Second))
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 600*time.Millisecond)
}

func TestMissingTabIsSkipped(t *testing.T) {
	d := newFakeDriver()
	res, err := Run(context.Background(), scriptOf(mainBlock(
		program.Instruction{Op: program.OpSwitchTab, Index: 2},
		pageShot(),
	)), d, testOptions())
	require.NoError(t, err)
	assert.False(t, res.Degraded)
	assert.False(t, d.called("switch tab"))
}

func TestPickMethodSwitchesUntilTargetOffered(t *testing.T) {
	d := newFakeDriver()
	d.present["text=Google Authenticator"] = true
	r := newRunner(d, testOptions())
	err := r.pickMethod(context.Background(), program.PickMethod{
		Switch:   "Try another way",
		Target:   "Google Authenticator",
		Attempts: 3,
		Backoff:  10 * time.Millisecond,
		Idle:     10 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, d.called("clicktext Google Authenticator"))
}

func TestTotpTypesCurrentCode(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	d := newFakeDriver()
	opts := testOptions()
	opts.Now = func() time.Time { return now }
	r := newRunner(d, opts)

	require.NoError(t, r.exec(context.Background(), nil, program.Totp("#otp", "jbsw y3dp ehpk 3pxp")))

	want, err := totp.GenerateCode("JBSWY3DPEHPK3PXP", now)
	require.NoError(t, err)
	assert.Equal(t, want, d.typed["#otp"])
	assert.Len(t, want, 6)
}

func TestBrowserCloseIsBounded(t *testing.T) {
	d := newFakeDriver()
	d.closeBlock = true
	start := time.Now()
	_, err := Run(context.Background(), scriptOf(mainBlock(pageShot())), d, testOptions())
	require.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, d.pagesClosed)
}

func TestCropKeepsShortImages(t *testing.T) {
	out, err := cropJPEG(testPNG(50, 80), 500, 1080, 90)
	require.NoError(t, err)
	img, err := imaging.Decode(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 80, img.Bounds().Dy())
}
