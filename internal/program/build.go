package program

import "time"

func Procedure(body ...Instruction) Instruction {
	return Instruction{Op: OpProcedure, Body: body}
}

func Goto(url string, timeout time.Duration) Instruction {
	return Instruction{Op: OpGoto, Value: url, Timeout: timeout}
}

func Sleep(d time.Duration) Instruction {
	return Instruction{Op: OpSleep, Delay: d}
}

// Wait waits for selector presence. A zero timeout uses the executor default.
func Wait(selector string, timeout time.Duration) Instruction {
	return Instruction{Op: OpWait, Selector: selector, Timeout: timeout}
}

func WaitHidden(selector string, timeout time.Duration) Instruction {
	return Instruction{Op: OpWaitHidden, Selector: selector, Timeout: timeout}
}

// WaitGone polls until no element matches selector or timeout elapses, then
// sleeps delay if the page cleared in time.
func WaitGone(selector string, timeout, delay time.Duration) Instruction {
	return Instruction{Op: OpWaitGone, Selector: selector, Timeout: timeout, Delay: delay}
}

func Tap(selector string) Instruction {
	return Instruction{Op: OpTap, Selector: selector}
}

func Type(selector, value string, delay time.Duration) Instruction {
	return Instruction{Op: OpType, Selector: selector, Value: value, Delay: delay}
}

func TypeSecret(selector, value string, delay time.Duration) Instruction {
	return Instruction{Op: OpType, Selector: selector, Value: value, Delay: delay, Secret: true}
}

func Clear(selector string) Instruction {
	return Instruction{Op: OpClear, Selector: selector}
}

// Totp types the current one-time code derived from seed into selector.
func Totp(selector, seed string) Instruction {
	return Instruction{Op: OpTotp, Selector: selector, Value: seed, Secret: true}
}

func Try(body ...Instruction) Instruction {
	return Instruction{Op: OpTry, Body: body}
}

func Log(message string) Instruction {
	return Instruction{Op: OpLog, Value: message}
}

func Remove(selector string) Instruction {
	return Instruction{Op: OpRemove, Selector: selector}
}

// Settled runs body while a settlement wait is armed, then waits for it.
func Settled(s Settle, body ...Instruction) Instruction {
	return Instruction{Op: OpSettle, Settle: &s, Body: body}
}

// Seq flattens instruction groups into one list.
func Seq(groups ...[]Instruction) []Instruction {
	var n int
	for _, g := range groups {
		n += len(g)
	}
	out := make([]Instruction, 0, n)
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

// Chain builds a fallback chain where the first alternative gets first and
// every later one gets next.
func Chain(alternatives []string, first, next time.Duration) []Attempt {
	chain := make([]Attempt, 0, len(alternatives))
	for i, sel := range alternatives {
		timeout := next
		if i == 0 {
			timeout = first
		}
		chain = append(chain, Attempt{Selector: sel, Timeout: timeout})
	}
	return chain
}

func RaceOf(r Race) Instruction {
	return Instruction{Op: OpRace, Race: &r}
}

// WithFrame runs body against the frame located by f.
func WithFrame(f Frame, body ...Instruction) Instruction {
	return Instruction{Op: OpWithFrame, Frame: &f, Body: body}
}
