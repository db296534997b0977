package compiler

import (
	"strings"
	"time"

	"dashshot/internal/program"
)

const (
	powerBIHome         = "https://app.powerbi.com"
	powerBISignUpBypass = "https://app.powerbi.com/?noSignUpCheck=1"
	officePortal        = "https://portal.office.com"

	pbiContainer       = "#content-container"
	pbiScrollView      = "#DashboardScrollView"
	pbiUserPicker      = ".tile-container"
	pbiLoginLink       = ".bapi-menu > .is-menu-link:nth-child(2) > a > span"
	pbiEmail           = "#i0116 , .row > .form-group .form-control"
	pbiEmailInput      = "#i0116"
	pbiCode            = `input[name="otc"]`
	pbiEmailCollection = "#emailCollection"
	pbiCollectionInput = ".pbi-text-input"
	pbiCollectionSend  = "#submitBtn"
	pbiPassword        = "#i0118"
	pbiNext            = "#idSIButton9"
	pbiCodeVerify      = "#idSubmit_SAOTCC_Continue"
	pbiKmsi            = "#KmsiDescription"
	pbiKmsiYes         = "#idSIButton9 , div > .col-xs-24 .win-button.ext-primary"

	oktaIdentifier = "input[name=identifier]"
	oktaNext       = "[value=Next]"
	oktaPasscode   = "[name='credentials.passcode']"
	oktaVerify     = "[value=Verify]"
	oktaGoogleOTP  = "[data-se=google_otp]"
)

// powerBIFlow signs into the reporting suite, whatever landing page it
// shows, then opens the dashboard. Dynamics shares the same identity flow.
func powerBIFlow(in FlowInput) []program.Instruction {
	t := in.Timing
	portal := contains(in.Vendors.PortalAccounts, in.Email)
	target := in.URL
	if portal && in.Vendors.PortalDashboardHost != "" && !strings.Contains(target, in.Vendors.PortalDashboardHost) {
		target = strings.Replace(target, powerBIHome, "https://"+in.Vendors.PortalDashboardHost, 1)
	}

	var out []program.Instruction
	if portal {
		out = append(out, program.Goto(officePortal, 0))
	} else {
		// The email collection form flashes right after load.
		out = append(out, program.Goto(in.URL, 0), program.Sleep(5*time.Second))
	}

	auth := powerBIAuth(in)
	out = append(out, program.RaceOf(program.Race{
		Markers: []program.Marker{
			{Tag: "emailCollection", Selector: pbiEmailCollection, Timeout: t.MarkerTimeout},
			{Tag: "home", Selector: pbiContainer, Timeout: t.MarkerTimeout},
			{Tag: "login", Selector: pbiLoginLink, Timeout: t.MarkerTimeout},
			{Tag: "picker", Selector: pbiUserPicker, Timeout: t.MarkerTimeout},
			{Tag: "auth", Selector: pbiEmail, Timeout: t.MarkerTimeout},
			{Tag: "code", Selector: pbiCode, Timeout: t.MarkerTimeout},
		},
		Branches: []program.Branch{
			{Tag: "home", Body: []program.Instruction{program.Log("already signed in")}},
			{Tag: "login", Body: program.Seq([]program.Instruction{program.Tap(pbiLoginLink)}, auth)},
			{Tag: "auth", Body: auth},
			{Tag: "picker", Body: program.Seq(
				[]program.Instruction{program.Tap(pbiUserPicker)},
				powerBIPassword(in),
				powerBICode(in),
				kmsi(),
			)},
			{Tag: "code", Body: program.Seq(powerBICode(in), kmsi())},
			{Tag: "emailCollection", Body: program.Seq([]program.Instruction{
				program.Sleep(time.Second),
				program.Wait(pbiCollectionInput, 10*time.Second),
				program.Tap(pbiCollectionInput),
				program.Type(pbiCollectionInput, in.Email, 0),
				program.Sleep(time.Second),
				program.Tap(pbiCollectionSend),
			}, powerBIPasswordFlow(in))},
		},
		OnTimeout: program.Seq([]program.Instruction{
			program.Log("no landing state detected"),
			program.Goto(powerBISignUpBypass, t.CredentialGotoTimeout),
		}, auth),
	}))

	open := []program.Instruction{program.Goto(target, 0)}
	if portal {
		open = append(open, program.Sleep(10*time.Second), program.Goto(target, 0))
	}
	out = append(out,
		program.Log("opening dashboard"),
		program.Settled(program.Settle{
			Timeout:      t.SettleTimeout,
			FirstRequest: t.SettleFirstRequest,
			Quiet:        t.SettleQuiet,
		}, open...),
		program.Try(program.RaceOf(program.Race{
			Markers: []program.Marker{
				{Tag: "container", Selector: pbiContainer, Timeout: t.DefaultWait},
				{Tag: "scrollView", Selector: pbiScrollView, Timeout: t.DefaultWait},
			},
		})),
	)
	return out
}

// powerBIAuth handles the native sign-in form, which may open in a new tab.
func powerBIAuth(in FlowInput) []program.Instruction {
	pause := program.Settle{
		Timeout:      3 * time.Second,
		FirstRequest: in.Timing.SettleFirstRequest,
		Quiet:        in.Timing.SettleQuiet,
		MaxInflight:  in.Timing.SettleMaxInflight,
		MinDuration:  3 * time.Second,
	}
	return program.Seq([]program.Instruction{
		program.Settled(pause),
		{Op: program.OpSwitchLastTab},
		program.Try(
			program.Wait(pbiEmail, 10*time.Second),
			program.Clear(pbiEmailInput),
			program.Sleep(1500*time.Millisecond),
			program.Tap(pbiEmail),
			program.Type(pbiEmail, in.Email, 0),
			program.Sleep(1500*time.Millisecond),
			program.Wait(pbiNext, 10*time.Second),
			program.Tap(pbiNext),
			program.Sleep(15*time.Second),
		),
	}, powerBIPasswordFlow(in))
}

// powerBIPasswordFlow races the native password form against an Okta
// identifier form.
func powerBIPasswordFlow(in FlowInput) []program.Instruction {
	code := []program.Instruction{
		program.Tap(oktaPasscode),
		program.Totp(oktaPasscode, in.Seed),
		program.Sleep(1500 * time.Millisecond),
	}
	okta := program.Seq([]program.Instruction{
		program.Clear(oktaIdentifier),
		program.Tap(oktaIdentifier),
		program.Type(oktaIdentifier, in.Email, 0),
		program.Tap(oktaNext),
		program.Sleep(time.Second),
		program.Wait(oktaPasscode, 10*time.Second),
		program.Tap(oktaPasscode),
		program.TypeSecret(oktaPasscode, in.Password, 0),
		program.Sleep(time.Second),
		program.Wait(oktaVerify, 10*time.Second),
		program.Tap(oktaVerify),
		program.Sleep(5 * time.Second),
		program.RaceOf(program.Race{
			Markers: []program.Marker{
				{Tag: "selectGoogle", Selector: oktaGoogleOTP, Timeout: 15 * time.Second},
				{Tag: "totp", Selector: oktaPasscode, Timeout: 15 * time.Second},
			},
			Branches: []program.Branch{
				{Tag: "selectGoogle", Body: program.Seq([]program.Instruction{
					program.Tap(oktaGoogleOTP),
					program.Sleep(time.Second),
				}, code)},
				{Tag: "totp", Body: code},
			},
		}),
		program.Wait(oktaVerify, 2*time.Second),
		program.Tap(oktaVerify),
		program.Sleep(10 * time.Second),
	}, kmsi(), []program.Instruction{program.Sleep(1500 * time.Millisecond)})

	return []program.Instruction{program.RaceOf(program.Race{
		Markers: []program.Marker{
			{Tag: "powerbi", Selector: pbiPassword, Timeout: 15 * time.Second},
			{Tag: "okta", Selector: oktaIdentifier, Timeout: 15 * time.Second},
		},
		Branches: []program.Branch{
			{Tag: "powerbi", Body: program.Seq(powerBIPassword(in), powerBICode(in), kmsi())},
			{Tag: "okta", Body: okta},
		},
	})}
}

func powerBIPassword(in FlowInput) []program.Instruction {
	return []program.Instruction{
		program.Wait(pbiPassword, 10*time.Second),
		program.Tap(pbiPassword),
		program.TypeSecret(pbiPassword, in.Password, 0),
		program.Wait(pbiNext, 10*time.Second),
		program.Tap(pbiNext),
		program.Sleep(2500 * time.Millisecond),
	}
}

// powerBICode enters the optional one-time code.
func powerBICode(in FlowInput) []program.Instruction {
	if in.Seed == "" {
		return []program.Instruction{program.Log("skipping 2FA: no seed recorded")}
	}
	return []program.Instruction{program.Try(
		program.Wait(pbiCode, 2*time.Second),
		program.Log("2FA requested"),
		program.Tap(pbiCode),
		program.Totp(pbiCode, in.Seed),
		program.Sleep(1500*time.Millisecond),
		program.Wait(pbiCodeVerify, 2*time.Second),
		program.Tap(pbiCodeVerify),
	)}
}

// kmsi confirms the "keep me signed in" dialog when it shows up.
func kmsi() []program.Instruction {
	return []program.Instruction{program.Try(
		program.Wait(pbiKmsi, 10*time.Second),
		program.Wait(pbiKmsiYes, 10*time.Second),
		program.Tap(pbiKmsiYes),
		program.Sleep(time.Second),
	)}
}

func contains(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
