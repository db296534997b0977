package executor

import (
	"context"
	"fmt"
	"strings"

	"dashshot/internal/program"
)

// resolveFrame locates a recorded frame in the live page. The recorded
// selector hops are tried first; if any hop fails the live frame list is
// searched instead. Landing on the main page is always an error.
func (r *runner) resolveFrame(ctx context.Context, pf program.Frame) (*Frame, error) {
	f, err := r.frameBySelectors(ctx, pf.Hops)
	if err == nil && f != nil {
		r.logger.Debug().Int("frameId", pf.ID).Str("url", f.URL).Msg("🪟 Frame located by selectors")
		return f, nil
	}
	r.logger.Info().Err(err).Int("frameId", pf.ID).Msg("Failed to get iframe by selectors")

	frames, ferr := r.d.Frames(ctx)
	if ferr != nil {
		return nil, fmt.Errorf("%w: listing frames: %v", ErrFrameNotFound, ferr)
	}
	if f = pickFrame(frames, pf); f == nil || (len(frames) > 0 && f == frames[0]) {
		return nil, fmt.Errorf("%w: url %q index %d selectors %q",
			ErrFrameNotFound, pf.URL, pf.Index, hopsText(pf.Hops))
	}
	r.logger.Debug().Int("frameId", pf.ID).Str("url", f.URL).Msg("🪟 Frame located from frame list")
	return f, nil
}

// frameBySelectors descends one frame level per hop. Each hop is a fallback
// chain over selector alternatives.
func (r *runner) frameBySelectors(ctx context.Context, hops [][]program.Attempt) (*Frame, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("no frame selectors recorded")
	}
	var cur *Frame
	for _, hop := range hops {
		sel, err := r.firstPresent(ctx, cur, hop)
		if err != nil {
			return nil, err
		}
		next, err := r.d.ContentFrame(ctx, cur, sel)
		if err != nil {
			return nil, fmt.Errorf("no content frame behind %s: %w", sel, err)
		}
		cur = next
	}
	return cur, nil
}

// pickFrame falls back from the lone child frame to the recorded URL and
// finally to the recorded index.
func pickFrame(frames []*Frame, pf program.Frame) *Frame {
	if len(frames) == 2 {
		return frames[1]
	}
	for _, f := range frames {
		if f.URL == pf.URL {
			return f
		}
	}
	if pf.Index >= 0 && pf.Index < len(frames) {
		return frames[pf.Index]
	}
	return nil
}

func hopsText(hops [][]program.Attempt) string {
	parts := make([]string, 0, len(hops))
	for _, h := range hops {
		parts = append(parts, joinChain(h))
	}
	return strings.Join(parts, "; ")
}
