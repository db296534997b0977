package compiler

import (
	"time"

	"dashshot/internal/program"
)

const (
	sfEmail     = `#username,form > .inputgroup .input,[type="email"]`
	sfPassword  = `#password,div > div .password,[type="password"]`
	sfLogin     = `#Login,div form > .button,[type="submit"]`
	sfCode      = `#tc,div .formArea > .input,[name="tc"]`
	sfCodeSave  = `#save,div > div .button,[name="save"]`
	sfDashFrame = ".windowViewMode-normal > .standalone > .dashboardContainer > iframe"
	sfRefresh   = "button.slds-button.slds-button_neutral.refresh"

	sfOktaEmail    = "#okta-signin-username"
	sfOktaPassword = "#okta-signin-password"
	sfOktaSubmit   = "#okta-signin-submit"
	sfOktaCode     = ".o-form-input-name-answer input"
)

// salesforceFlow signs in natively or through Okta and then presses the
// dashboard refresh button, if it can be found.
func salesforceFlow(in FlowInput) []program.Instruction {
	d := in.Timing.TypeDelay
	return []program.Instruction{
		program.Goto(in.URL, 0),
		program.RaceOf(program.Race{
			Markers: []program.Marker{
				{Tag: "email", Selector: sfEmail, Timeout: 15 * time.Second},
				{Tag: "okta", Selector: sfOktaEmail, Timeout: 15 * time.Second},
			},
			Branches: []program.Branch{
				{Tag: "okta", Body: []program.Instruction{
					program.Type(sfOktaEmail, in.Email, d),
					program.TypeSecret(sfOktaPassword, in.Password, d),
					program.Tap(sfOktaSubmit),
					program.Wait(sfOktaCode, 0),
					program.Totp(sfOktaCode, in.Seed),
					program.Wait(oktaVerify, 10*time.Second),
					program.Tap(oktaVerify),
					program.Sleep(5 * time.Second),
				}},
				{Tag: "email", Body: []program.Instruction{
					program.Type(sfEmail, in.Email, d),
					program.Wait(sfPassword, 10*time.Second),
					program.TypeSecret(sfPassword, in.Password, d),
					program.Tap(sfLogin),
					program.Try(
						program.Wait(sfCode, 0),
						program.Totp(sfCode, in.Seed),
						program.Tap(sfCodeSave),
					),
				}},
			},
		}),
		program.Try(
			program.Log("looking for the dashboard refresh button"),
			program.WithFrame(program.Frame{Hops: [][]program.Attempt{{{Selector: sfDashFrame, Timeout: 30 * time.Second}}}},
				program.Wait(sfRefresh, 20*time.Second),
				program.Tap(sfRefresh),
				program.Log("clicked the refresh button"),
			),
		),
	}
}
