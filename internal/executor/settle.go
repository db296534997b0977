package executor

import (
	"context"
	"time"

	"dashshot/internal/program"

	"github.com/rs/zerolog/log"
)

// Settlement reasons.
const (
	SettledTimeout   = "timeout"
	SettledNoRequest = "no request"
	SettledQuiet     = "quiet"
	SettledCancelled = "cancelled"
)

const (
	defaultSettleTotal = 10 * time.Second
	defaultSettleFirst = 5 * time.Second
	defaultSettleQuiet = 3 * time.Second
)

// Settle starts a network-settlement wait and returns a channel that
// receives the reason it resolved. The wait never fails: it resolves on the
// overall timeout, when no request starts within FirstRequest, or when the
// in-flight count has stayed at or below MaxInflight for Quiet since the last
// request finished. Subscription happens before Settle returns, so requests
// started by the caller afterwards are observed.
func Settle(ctx context.Context, src NetworkSource, s program.Settle) <-chan string {
	if s.Timeout <= 0 {
		s.Timeout = defaultSettleTotal
	}
	if s.FirstRequest <= 0 {
		s.FirstRequest = defaultSettleFirst
	}
	if s.Quiet <= 0 {
		s.Quiet = defaultSettleQuiet
	}
	if s.MaxInflight < 0 {
		s.MaxInflight = 0
	}

	events, unsubscribe := src.Subscribe()
	done := make(chan string, 1)

	go func() {
		defer unsubscribe()
		start := time.Now()

		overall := time.NewTimer(s.Timeout)
		defer overall.Stop()
		first := time.NewTimer(s.FirstRequest)
		defer first.Stop()
		// quiet is armed only after a request finishes
		quiet := time.NewTimer(time.Hour)
		quiet.Stop()
		defer quiet.Stop()

		firstC := first.C
		var quietC <-chan time.Time
		inflight := 0

		reason := ""
		for reason == "" {
			select {
			case <-ctx.Done():
				reason = SettledCancelled
			case <-overall.C:
				reason = SettledTimeout
			case <-firstC:
				reason = SettledNoRequest
			case <-quietC:
				reason = SettledQuiet
			case ev := <-events:
				switch ev {
				case RequestStarted:
					inflight++
					first.Stop()
					firstC = nil
					quiet.Stop()
					quietC = nil
				case RequestFinished:
					inflight--
					if inflight <= s.MaxInflight {
						quiet.Stop()
						quiet.Reset(s.Quiet)
						quietC = quiet.C
					}
				}
			}
		}

		if rest := s.MinDuration - time.Since(start); rest > 0 && reason != SettledCancelled {
			select {
			case <-time.After(rest):
			case <-ctx.Done():
			}
		}

		log.Debug().Str("reason", reason).Dur("waited", time.Since(start)).Msg("🌐 Network settled")
		done <- reason
	}()

	return done
}

// WaitSettled blocks until the network settles and returns the reason.
func WaitSettled(ctx context.Context, src NetworkSource, s program.Settle) string {
	return <-Settle(ctx, src, s)
}
