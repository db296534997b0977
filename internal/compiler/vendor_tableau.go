package compiler

import (
	"time"

	"dashshot/internal/program"
)

const (
	tableauEmail    = `#email,.tb-padded .hover > .tb-text-box-input,[name="email"]`
	tableauSubmit   = "#login-submit"
	tableauPassword = "#password"
	// The code form lives in a shadow root.
	tableauCode       = "pierce/#input-9"
	tableauCodeSubmit = `pierce/[type="submit"]`
)

// tableauFlow is a fixed two-step login followed by a one-time code.
func tableauFlow(in FlowInput) []program.Instruction {
	d := in.Timing.TypeDelay
	return []program.Instruction{
		program.Goto(in.URL, 0),
		program.Wait(tableauEmail, 0),
		program.Type(tableauEmail, in.Email, d),
		program.Wait(tableauSubmit, 10*time.Second),
		program.Tap(tableauSubmit),
		program.Wait(tableauPassword, 10*time.Second),
		program.TypeSecret(tableauPassword, in.Password, d),
		program.Tap(tableauSubmit),
		program.Wait(tableauCode, 0),
		program.Totp(tableauCode, in.Seed),
		program.Tap(tableauCodeSubmit),
		program.Sleep(15 * time.Second),
	}
}
