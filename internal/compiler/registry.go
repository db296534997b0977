package compiler

import (
	"time"

	"dashshot/internal/config"
	"dashshot/internal/models"
	"dashshot/internal/program"
)

// FlowInput is what a vendor flow is parameterized with. Values are
// extracted from the recorded events.
type FlowInput struct {
	URL        string
	InitialURL string
	Email      string
	Password   string
	Seed       string
	Timing     config.TimingConfig
	Vendors    config.VendorConfig
}

// Vendor pairs a terminal URL predicate with the login-and-render flow that
// replaces the literal replay for that platform.
type Vendor struct {
	Name     string
	Match    func(terminalURL string) bool
	Eligible func(events []models.Event) bool // nil means always eligible
	Flow     func(in FlowInput) []program.Instruction

	// KeepPauseScroll carries the first recorded PAUSE and SCROLL events
	// over into the synthesized sequence.
	KeepPauseScroll bool
	// FloorPause raises a carried pause to the synthesized pause floor.
	FloorPause bool
}

// defaultVendors is evaluated in order; the first match wins.
func defaultVendors() []Vendor {
	return []Vendor{
		{
			Name:            "powerbi",
			Match:           func(u string) bool { return isPowerBIURL(u) || isDynamicsURL(u) },
			Flow:            powerBIFlow,
			KeepPauseScroll: true,
			FloorPause:      true,
		},
		{
			Name:  "looker",
			Match: isLookerURL,
			Flow:  lookerFlow,
		},
		{
			Name:            "tableau",
			Match:           isTableauURL,
			Flow:            tableauFlow,
			KeepPauseScroll: true,
		},
		{
			Name:  "salesforce",
			Match: isSalesforceURL,
			Eligible: func(events []models.Event) bool {
				_, nested := findGoogleRun(events)
				return !nested
			},
			Flow:            salesforceFlow,
			KeepPauseScroll: true,
			FloorPause:      true,
		},
	}
}

// synthesize replaces the recorded replay with one custom event running the
// vendor flow. Viewport, removal, pause, scroll and screenshot events are
// carried over; the input slice is not modified.
func (s *session) synthesize(events []models.Event, v Vendor) []models.Event {
	in := FlowInput{
		URL:        s.lastURL,
		InitialURL: s.initialURL,
		Timing:     s.t,
		Vendors:    s.opts.Vendors,
	}

	var (
		viewport, pause, scroll *models.Event
		removals                []models.Event
		screenshot              = models.Event{Action: models.ActionScreenshot}
		seedFound               bool
	)
	for i := range events {
		e := events[i]
		if e.IsEmailLike() {
			in.Email = e.Value
		}
		if e.Action == models.ActionChange && e.IsSecret {
			in.Password = e.Value
		}
		switch e.Action {
		case models.ActionTotp:
			if !seedFound {
				in.Seed, seedFound = e.Value, true
			}
		case models.ActionViewport:
			if viewport == nil {
				viewport = &e
			}
		case models.ActionPause:
			if pause == nil {
				pause = &e
			}
		case models.ActionScroll:
			if scroll == nil {
				scroll = &e
			}
		case models.ActionRemoveElement:
			removals = append(removals, e)
		case models.ActionScreenshot:
			screenshot = e
		}
	}

	out := make([]models.Event, 0, len(removals)+5)
	if viewport != nil {
		out = append(out, *viewport)
	}
	out = append(out, models.Event{
		Action:    models.ActionCustom,
		FrameID:   s.frameID,
		Procedure: v.Flow(in),
	})
	out = append(out, removals...)
	if v.KeepPauseScroll {
		if pause != nil {
			p := *pause
			if floor := int(s.t.SynthesizedPauseFloor / time.Millisecond); v.FloorPause && p.Number < floor {
				p.Number = floor
			}
			out = append(out, p)
		}
		if scroll != nil {
			out = append(out, *scroll)
		}
	}
	return append(out, screenshot)
}
