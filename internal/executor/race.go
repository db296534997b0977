package executor

import (
	"context"
	"fmt"
	"sync"

	"dashshot/internal/program"
)

// race waits for every marker concurrently, each under its own timeout, and
// runs the branch of the first marker to appear. Losing waits are cancelled
// and drained before the branch starts.
func (r *runner) race(ctx context.Context, f *Frame, race program.Race) error {
	rctx, cancel := context.WithCancel(ctx)
	won := make(chan string, len(race.Markers))

	var wg sync.WaitGroup
	for _, m := range race.Markers {
		wg.Add(1)
		go func(m program.Marker) {
			defer wg.Done()
			err := r.timed(rctx, m.Timeout, r.opts.DefaultWait, func(ctx context.Context) error {
				return r.d.WaitPresent(ctx, f, m.Selector)
			})
			if err == nil {
				won <- m.Tag
			}
		}(m)
	}

	all := make(chan struct{})
	go func() {
		wg.Wait()
		close(all)
	}()

	winner := ""
	select {
	case winner = <-won:
	case <-all:
		// a marker may have landed just before the last wait returned
		select {
		case winner = <-won:
		default:
		}
	}
	cancel()
	<-all

	if err := ctx.Err(); err != nil {
		return err
	}

	if winner == "" {
		if race.OnTimeout == nil {
			return fmt.Errorf("%w: %d markers", ErrNoMarker, len(race.Markers))
		}
		r.logger.Info().Msg("⏱️ No landing marker appeared")
		return r.seq(ctx, f, race.OnTimeout)
	}

	r.logger.Info().Str("marker", winner).Msg("🎯 Landing marker appeared")
	for _, b := range race.Branches {
		if b.Tag == winner {
			return r.seq(ctx, f, b.Body)
		}
	}
	return nil
}
