package compiler

import (
	"strings"
	"time"

	"dashshot/internal/models"
	"dashshot/internal/program"
)

const googleIdentifierOrigin = "https://accounts.google.com/o/oauth2/auth/identifier"

const (
	googleEmail        = "#identifierId, [type=email]"
	googleEmailNext    = "#identifierNext, [role=presentation] > div > div > div > div > div > button > span"
	googlePassword     = "[type=password]"
	googlePasswordNext = "#passwordNext"
	googleTotp         = "#totpPin, [type=tel]"
	googleTotpNext     = "#submit, div:nth-child(1) > div > div > [type=button] > span"
)

// identityRun is a contiguous stretch of events recorded inside the Google
// sign-in frame. end is exclusive.
type identityRun struct {
	start, end int
	email      string
	password   string
	seed       string
}

// findGoogleRun locates the first Google sign-in run. Navigation markers and
// clicks on inputs neither start nor end a run.
func findGoogleRun(events []models.Event) (identityRun, bool) {
	run := identityRun{start: -1}
	for i, e := range events {
		if e.Action == models.ActionNavigation {
			continue
		}
		if e.Action == models.ActionClick && e.TagName == "INPUT" {
			continue
		}
		if !strings.HasPrefix(e.FrameURL, googleIdentifierOrigin) {
			if run.start != -1 {
				run.end = i
				return run, true
			}
			continue
		}

		if run.start == -1 {
			run.start = i
		}
		if e.Action == models.ActionChange && strings.Contains(e.Value, "@") {
			run.email = e.Value
		}
		if e.Action == models.ActionChange && e.IsSecret {
			run.password = e.Value
		}
		if e.Action == models.ActionTotp {
			run.seed = e.Value
		}
	}
	if run.start != -1 {
		run.end = len(events)
		return run, true
	}
	return run, false
}

// collapseGoogleRun replaces events[run.start:run.end] with one custom event
// performing the whole sign-in.
func collapseGoogleRun(events []models.Event, run identityRun) []models.Event {
	step := models.Event{
		Action:    models.ActionCustom,
		FrameURL:  googleIdentityPage,
		Procedure: googleLogin(run),
	}
	out := make([]models.Event, 0, len(events)-(run.end-run.start)+1)
	out = append(out, events[:run.start]...)
	out = append(out, step)
	return append(out, events[run.end:]...)
}

func googleLogin(run identityRun) []program.Instruction {
	pause := 5 * time.Second
	return []program.Instruction{
		program.Wait(googleEmail, 0),
		program.Type(googleEmail, run.email, 0),
		program.Wait(googleEmailNext, 0),
		program.Tap(googleEmailNext),
		program.Sleep(pause),
		program.Wait(googlePassword, 0),
		program.TypeSecret(googlePassword, run.password, 0),
		program.Wait(googlePasswordNext, 0),
		program.Sleep(pause),
		program.Tap(googlePasswordNext),
		program.Sleep(pause),
		{Op: program.OpPickMethod, Pick: &program.PickMethod{
			Switch:   "Try another way",
			Target:   "Google Authenticator",
			Attempts: 5,
			Backoff:  10 * time.Second,
			Idle:     time.Second,
		}},
		program.Sleep(pause),
		program.Wait(googleTotp, 0),
		program.Totp(googleTotp, run.seed),
		program.Wait(googleTotpNext, 0),
		program.Tap(googleTotpNext),
		program.Sleep(pause),
	}
}
