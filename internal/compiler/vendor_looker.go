package compiler

import (
	"time"

	"dashshot/internal/program"
)

const (
	lookerEmail     = "#login-email"
	lookerPassword  = "#login-password"
	lookerSubmit    = "#login-submit"
	lookerDashboard = "#lk-react-container"
	lookerLegacy    = "#lk-container"
	lookerSpinners  = `#lk-inner-container .spinner, [aria-label="Element Loading"]`

	lookerGoogleEmail  = `#identifierId,.d2CFce:nth-child(1) > .rFrNMe .whsOnd,[type="email"]`
	lookerGoogleNext   = `.DL0QTb > .VfPpkd-dgl2Hf-ppHlrf-sM5MNb > .VfPpkd-LgbsSe > .VfPpkd-vQzf8d,div:nth-child(1) > div > div > div > [type="button"] > span`
	lookerGooglePass   = `.hDp5Db > .rFrNMe > .aCsJod > .aXBtI .whsOnd,[type="password"]`
	lookerGoogleNext2  = `.DL0QTb > .VfPpkd-dgl2Hf-ppHlrf-sM5MNb > .VfPpkd-LgbsSe > .VfPpkd-vQzf8d,div:nth-child(1) > div > div > [type="button"] > span`
	lookerGoogleMethod = ".OVnw0d > .JDAKTe:nth-child(3) > .lCoei > .vxx8jf,li:nth-child(3) div:nth-child(2)"
	lookerGoogleTotp   = `#totpPin,.aCsJod > .aXBtI .whsOnd,[type="tel"]`

	lookerOktaIdentifier = ".o-form-input-name-identifier > input"
	lookerOktaButton     = ".o-form-button-bar > input"
	lookerOktaGoogle     = "[data-se='google_otp'] > a"
	lookerOktaCode       = ".okta-form-input-field > input"
	lookerOktaPassword   = ".password-with-toggle"

	lookerStep = 2500 * time.Millisecond
)

// lookerFlow signs in natively or through SSO, then waits for the dashboard
// tiles to stop loading.
func lookerFlow(in FlowInput) []program.Instruction {
	t := in.Timing
	idle := program.Settle{Timeout: t.SettleTimeout, FirstRequest: t.SettleFirstRequest, Quiet: t.SettleQuiet}

	sso := []program.Instruction{
		program.Log("using SSO"),
		program.Tap(lookerSubmit),
		program.RaceOf(program.Race{
			Markers: []program.Marker{
				{Tag: "googleAuth", Selector: lookerGoogleEmail, Timeout: 10 * time.Second},
				{Tag: "oktaAuth", Selector: lookerOktaIdentifier, Timeout: 10 * time.Second},
			},
			Branches: []program.Branch{
				{Tag: "googleAuth", Body: lookerGoogle(in, idle)},
				{Tag: "oktaAuth", Body: lookerOkta(in)},
			},
		}),
	}

	return []program.Instruction{
		program.Goto(in.URL, 0),
		program.Wait(lookerSubmit, 0),
		program.RaceOf(program.Race{
			Markers: []program.Marker{{Tag: "native", Selector: lookerEmail, Timeout: time.Second}},
			Branches: []program.Branch{{Tag: "native", Body: []program.Instruction{
				program.Type(lookerEmail, in.Email, 0),
				program.TypeSecret(lookerPassword, in.Password, 0),
				program.Settled(idle, program.Tap(lookerSubmit)),
			}}},
			OnTimeout: sso,
		}),
		program.RaceOf(program.Race{
			Markers: []program.Marker{
				{Tag: "dashboard", Selector: lookerDashboard, Timeout: t.DefaultWait},
				{Tag: "legacy", Selector: lookerLegacy, Timeout: t.DefaultWait},
			},
		}),
		program.WaitGone(lookerSpinners, 5*time.Second, time.Second),
		program.Sleep(10 * time.Second),
	}
}

func lookerOkta(in FlowInput) []program.Instruction {
	return []program.Instruction{
		program.Type(lookerOktaIdentifier, in.Email, 0),
		program.Tap(lookerOktaButton),
		program.Sleep(lookerStep),
		program.Wait(lookerOktaGoogle, 0),
		program.Tap(lookerOktaGoogle),
		program.Sleep(lookerStep),
		program.Wait(lookerOktaCode, 0),
		program.Totp(lookerOktaCode, in.Seed),
		program.Tap(lookerOktaButton),
		program.Sleep(lookerStep),
		program.Wait(lookerOktaPassword, 0),
		program.TypeSecret(lookerOktaPassword, in.Password, 0),
		program.Tap(lookerOktaButton),
	}
}

func lookerGoogle(in FlowInput, idle program.Settle) []program.Instruction {
	return []program.Instruction{
		program.Wait(lookerGoogleEmail, 0),
		program.Type(lookerGoogleEmail, in.Email, 0),
		program.Wait(lookerGoogleNext, 0),
		program.Tap(lookerGoogleNext),
		program.Sleep(lookerStep),
		program.Wait(lookerGooglePass, 0),
		program.TypeSecret(lookerGooglePass, in.Password, 0),
		program.Wait(lookerGoogleNext2, 0),
		program.Tap(lookerGoogleNext2),
		program.Sleep(lookerStep),
		// The method list is skipped when the account has one factor.
		program.Try(
			program.Wait(lookerGoogleMethod, time.Second),
			program.Tap(lookerGoogleMethod),
			program.Sleep(lookerStep),
		),
		program.Totp(lookerGoogleTotp, in.Seed),
		program.Wait(lookerGoogleNext2, 0),
		program.Tap(lookerGoogleNext2),
		program.Wait(lookerGoogleNext2, 0),
		program.Settled(idle, program.Tap(lookerGoogleNext2)),
		program.Sleep(lookerStep),
	}
}
