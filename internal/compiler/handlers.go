package compiler

import (
	"fmt"
	"net/url"
	"time"

	"dashshot/internal/models"
	"dashshot/internal/program"
)

// handle emits the block for one event. A nil block means the event produces
// no code.
func (s *session) handle(e models.Event) *Block {
	switch e.Action {
	case models.ActionSubmit:
		return newBlockWith(s.frameID, KindSubmit, program.Try(program.Instruction{Op: program.OpSubmit, Selector: e.Selector}))
	case models.ActionKeydown:
		if e.KeyCode == s.opts.KeyCode {
			return newBlockWith(s.frameID, KindKeydown, s.typeInto(e.Selector, e.Value, e.IsSecret))
		}
	case models.ActionClick:
		return s.handleClick(e.Selector)
	case models.ActionChange:
		switch e.TagName {
		case "SELECT":
			return newBlockWith(s.frameID, KindChange, program.Instruction{Op: program.OpSelect, Selector: e.Selector, Value: e.Value})
		case "INPUT":
			return newBlockWith(s.frameID, KindChange,
				program.Wait(e.Selector, s.t.DefaultWait),
				s.typeInto(e.Selector, e.Value, e.IsSecret),
			)
		}
	case models.ActionGoto:
		return s.handleGoto(e.Href)
	case models.ActionViewport:
		return newBlockWith(s.frameID, KindViewport, program.Instruction{Op: program.OpViewport, Width: e.Width, Height: e.Height})
	case models.ActionNavigation:
		b := NewBlock(s.frameID)
		if s.opts.WaitForNavigation {
			b.AddLine(KindNavigation, program.Instruction{Op: program.OpWaitNavigation, Timeout: s.t.NavigationTimeout})
		}
		return b
	case models.ActionScreenshot:
		return s.handleScreenshot(e.Value)
	case models.ActionTotp:
		b := NewBlock(s.frameID)
		b.AddLine(KindCustom, program.Wait(e.Selector, s.t.TotpFieldWait))
		b.AddLine(KindCustom, program.Tap(e.Selector))
		b.AddLine(KindTotp, program.Totp(e.Selector, e.Value))
		return b
	case models.ActionRemoveElement:
		b := NewBlock(s.frameID)
		if s.opts.WaitForSelectorOnClick {
			b.AddLine(KindRemoveElement, program.Try(program.Wait(e.Selector, s.t.RemoveElementWait)))
		}
		b.AddLine(KindRemoveElement, program.Instruction{Op: program.OpHide, Selector: e.Selector})
		return b
	case models.ActionPause:
		if e.Number > 0 {
			return newBlockWith(s.frameID, KindPause, program.Sleep(time.Duration(e.Number)*time.Millisecond))
		}
	case models.ActionScroll:
		if e.Number > 0 {
			s.scroll = e.Number
			return newBlockWith(s.frameID, KindScroll, program.Instruction{Op: program.OpScroll, Index: e.Number})
		}
	case models.ActionCustom:
		if e.Procedure != nil {
			return newBlockWith(s.frameID, KindCustom, program.Procedure(e.Procedure...))
		}
		return newBlockWith(s.frameID, KindCustom, program.Instruction{Op: program.OpEval, Value: e.Code})
	}
	return nil
}

func (s *session) typeInto(selector, value string, secret bool) program.Instruction {
	ins := program.Type(selector, value, s.t.TypeDelay)
	ins.Secret = secret
	return ins
}

// handleClick waits through the selector alternatives, then clicks them in
// order with a settlement wait armed around the click.
func (s *session) handleClick(selector string) *Block {
	alts := splitSelector(selector)
	b := NewBlock(s.frameID)
	if s.opts.WaitForSelectorOnClick {
		b.AddLine(KindClick, program.Instruction{
			Op:    program.OpWaitChain,
			Chain: program.Chain(alts, s.t.ClickFirstTimeout, s.t.ClickNextTimeout),
		})
	}
	settle := s.settle(s.t.SettleTimeout, s.maxInflight())
	b.AddLine(KindClick, program.Instruction{
		Op:       program.OpClick,
		Selector: selector,
		Chain:    program.Chain(alts, 0, 0),
		Settle:   &settle,
		Delay:    s.t.ClickSettleDelay,
	})
	return b
}

func (s *session) handleGoto(href string) *Block {
	u, err := url.Parse(href)
	if err != nil || u.User == nil || u.User.Username() == "" {
		return newBlockWith(s.frameID, KindGoto, program.Goto(href, 0))
	}

	username := u.User.Username()
	password, _ := u.User.Password()
	u.User = nil
	return newBlockWith(s.frameID, KindGoto,
		program.Instruction{Op: program.OpAuthenticate, Username: username, Value: password, Secret: true},
		program.Goto(u.String(), s.t.CredentialGotoTimeout),
	)
}

func (s *session) shotPause() time.Duration {
	switch {
	case isSplunkURL(s.lastURL):
		return splunkShotPause
	case isLookerURL(s.lastURL):
		return lookerShotPause
	}
	return defaultShotPause
}

func (s *session) cleanup() []program.Instruction {
	var sels []string
	switch {
	case containsAny(s.lastURL, []string{"console.aws.amazon.com"}):
		sels = []string{".popover-wrapper", "#awsccc-cb-c", "[role=dialog]"}
	case containsAny(s.lastURL, []string{"online.tableau.com/"}):
		sels = []string{
			"[data-tb-test-id=postlogin-test-id-Dialog-Glass-Root]",
			"[data-tb-test-id=postlogin-test-id-Dialog-Floater-Root]",
			"[data-tb-test-id=viz-header-search-closeviz-header-container]",
			"#toolbar-container",
		}
	}
	out := make([]program.Instruction, 0, len(sels))
	for _, sel := range sels {
		out = append(out, program.Remove(sel))
	}
	return out
}

// handleScreenshot captures the element named by selector, or the page when
// selector is empty.
func (s *session) handleScreenshot(selector string) *Block {
	beyond := !containsAny(s.lastURL, viewportOnlyHosts)
	pause := s.shotPause()
	settle := s.settle(s.t.SettleTimeout, s.maxInflight())
	settle.FirstRequest = shotFirstRequest

	b := NewBlock(s.frameID)
	if selector != "" {
		b.AddLine(KindScreenshot, program.Settled(settle))
		b.AddLine(KindScreenshot, program.Wait(selector, 0))
		b.AddLine(KindScreenshot, program.Log(fmt.Sprintf("pause before screenshot %dms", pause.Milliseconds())))
		b.AddLine(KindScreenshot, program.Sleep(pause))
		for _, ins := range s.cleanup() {
			b.AddLine(KindScreenshot, ins)
		}
		b.AddLine(KindScreenshot, program.Instruction{Op: program.OpScreenshot, Shot: &program.Shot{
			Selector:       selector,
			BeyondViewport: beyond,
			CropTop:        s.scroll,
			CropMaxHeight:  cropMaxHeight,
			Quality:        screenshotQuality,
		}})
		return b
	}

	wait := []program.Instruction{
		{Op: program.OpWaitNavigation},
		program.Settled(settle),
	}
	if isSplunkURL(s.lastURL) {
		wait = append(wait, program.Try(
			program.Wait(splunkLoader, splunkLoaderWait),
			program.WaitHidden(splunkLoader, 0),
		))
	}
	wait = append(wait, program.Sleep(pause))

	b.AddLine(KindScreenshot, program.Try(wait...))
	for _, ins := range s.cleanup() {
		b.AddLine(KindScreenshot, ins)
	}
	b.AddLine(KindScreenshot, program.Instruction{Op: program.OpScreenshot, Shot: &program.Shot{
		BeyondViewport: beyond,
		Quality:        screenshotQuality,
	}})
	return b
}
