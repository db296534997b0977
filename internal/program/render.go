package program

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const mask = `"******"`

// Text renders instructions one per line, nested bodies indented.
func Text(list []Instruction) string {
	var b strings.Builder
	for _, ins := range list {
		ins.render(&b, 0)
	}
	return b.String()
}

func (ins Instruction) String() string {
	var b strings.Builder
	ins.render(&b, 0)
	return strings.TrimRight(b.String(), "\n")
}

func (ins Instruction) render(b *strings.Builder, depth int) {
	pad := strings.Repeat("  ", depth)
	b.WriteString(pad)
	b.WriteString(ins.head())
	b.WriteByte('\n')

	switch ins.Op {
	case OpRace:
		if ins.Race == nil {
			return
		}
		for _, br := range ins.Race.Branches {
			fmt.Fprintf(b, "%s  on %s:\n", pad, br.Tag)
			for _, child := range br.Body {
				child.render(b, depth+2)
			}
		}
		if ins.Race.OnTimeout != nil {
			fmt.Fprintf(b, "%s  on timeout:\n", pad)
			for _, child := range ins.Race.OnTimeout {
				child.render(b, depth+2)
			}
		}
	default:
		for _, child := range ins.Body {
			child.render(b, depth+1)
		}
	}
}

func (ins Instruction) head() string {
	parts := []string{string(ins.Op)}
	add := func(k, v string) { parts = append(parts, k+"="+v) }

	if ins.Selector != "" {
		add("selector", strconv.Quote(ins.Selector))
	}
	if len(ins.Chain) > 0 {
		add("chain", renderChain(ins.Chain))
	}
	if ins.Username != "" {
		add("username", strconv.Quote(ins.Username))
	}
	if ins.Value != "" {
		if ins.Secret {
			add("value", mask)
		} else {
			add("value", strconv.Quote(ins.Value))
		}
	}
	if ins.Timeout > 0 {
		add("timeout", ms(ins.Timeout))
	}
	if ins.Delay > 0 {
		add("delay", ms(ins.Delay))
	}
	if ins.Width > 0 || ins.Height > 0 {
		add("size", fmt.Sprintf("%dx%d", ins.Width, ins.Height))
	}
	if ins.Op == OpSwitchTab || ins.Op == OpScroll {
		add("index", strconv.Itoa(ins.Index))
	}
	if s := ins.Settle; s != nil {
		add("settle", fmt.Sprintf("{timeout:%s first:%s quiet:%s inflight:%d min:%s}",
			ms(s.Timeout), ms(s.FirstRequest), ms(s.Quiet), s.MaxInflight, ms(s.MinDuration)))
	}
	if r := ins.Race; r != nil {
		markers := make([]string, 0, len(r.Markers))
		for _, m := range r.Markers {
			markers = append(markers, fmt.Sprintf("%s:%s@%s", m.Tag, strconv.Quote(m.Selector), ms(m.Timeout)))
		}
		add("markers", "["+strings.Join(markers, ", ")+"]")
	}
	if f := ins.Frame; f != nil {
		hops := make([]string, 0, len(f.Hops))
		for _, h := range f.Hops {
			hops = append(hops, renderChain(h))
		}
		add("frame", fmt.Sprintf("{id:%d url:%s index:%d hops:[%s]}", f.ID, strconv.Quote(f.URL), f.Index, strings.Join(hops, " ")))
	}
	if s := ins.Shot; s != nil {
		add("shot", fmt.Sprintf("{selector:%s beyond:%t cropTop:%d cropMax:%d quality:%d}",
			strconv.Quote(s.Selector), s.BeyondViewport, s.CropTop, s.CropMaxHeight, s.Quality))
	}
	if p := ins.Pick; p != nil {
		add("pick", fmt.Sprintf("{switch:%s target:%s attempts:%d backoff:%s idle:%s}",
			strconv.Quote(p.Switch), strconv.Quote(p.Target), p.Attempts, ms(p.Backoff), ms(p.Idle)))
	}
	return strings.Join(parts, " ")
}

func renderChain(chain []Attempt) string {
	out := make([]string, 0, len(chain))
	for _, a := range chain {
		if a.Timeout > 0 {
			out = append(out, strconv.Quote(a.Selector)+"@"+ms(a.Timeout))
		} else {
			out = append(out, strconv.Quote(a.Selector))
		}
	}
	return "[" + strings.Join(out, " -> ") + "]"
}

func ms(d time.Duration) string {
	return strconv.FormatInt(d.Milliseconds(), 10) + "ms"
}
