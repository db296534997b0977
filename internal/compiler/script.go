package compiler

import (
	"fmt"
	"strings"
	"time"
)

// Header carries the launch and session wiring for one capture.
type Header struct {
	DashboardID string
	ProfileDir  string
	Proxy       string
	Headless    bool
	Stealth     bool
	BypassCSP   bool
	Diagnostics bool
}

// Footer carries the failure fallback and cleanup policy.
type Footer struct {
	FallbackQuality int
	CloseTimeout    time.Duration
}

// Script is the compiled, executable unit: header, body blocks and footer.
type Script struct {
	Header      Header
	Blocks      []*Block
	Footer      Footer
	TerminalURL string
}

// Lines returns the body lines in execution order.
func (s *Script) Lines() []Line {
	var out []Line
	for _, b := range s.Blocks {
		out = append(out, b.Lines()...)
	}
	return out
}

// Text renders the whole script. Two compiles of the same input render
// identically and secret values are masked.
func (s *Script) Text() string {
	var b strings.Builder

	h := s.Header
	fmt.Fprintf(&b, "launch dashboard=%q profile=%q proxy=%q headless=%t stealth=%t\n",
		h.DashboardID, h.ProfileDir, h.Proxy, h.Headless, h.Stealth)
	if h.Diagnostics {
		b.WriteString("diagnostics console=forward requestfailed=log response>=400=log\n")
	}
	if h.BypassCSP {
		b.WriteString("bypassCSP\n")
	}

	for _, l := range s.Lines() {
		if l.Text == "" {
			b.WriteByte('\n')
			continue
		}
		prefix := ""
		if l.FrameID != 0 {
			prefix = fmt.Sprintf("[frame %d] ", l.FrameID)
		}
		for _, row := range strings.Split(l.Text, "\n") {
			b.WriteString(prefix)
			b.WriteString(row)
			b.WriteByte('\n')
		}
	}

	fmt.Fprintf(&b, "on failure: page screenshot type=jpeg quality=%d\n", s.Footer.FallbackQuality)
	fmt.Fprintf(&b, "cleanup: close pages; close browser timeout=%dms\n", s.Footer.CloseTimeout.Milliseconds())
	return b.String()
}
