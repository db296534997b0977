package executor

import (
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/rs/zerolog/log"
)

// eventSendTimeout bounds how long the browser event loop waits on a slow
// settlement consumer.
const eventSendTimeout = 50 * time.Millisecond

// requestTracker turns raw network events into balanced start and finish
// notifications. A redirect reuses its request id and is not a new request,
// and a finish is only reported for a request that was reported started.
type requestTracker struct {
	mu   sync.Mutex
	ids  map[network.RequestID]struct{}
	ch   chan NetEvent
	done <-chan struct{}
}

func newRequestTracker(done <-chan struct{}) *requestTracker {
	return &requestTracker{
		ids:  map[network.RequestID]struct{}{},
		ch:   make(chan NetEvent, 1024),
		done: done,
	}
}

func (t *requestTracker) started(id network.RequestID, redirect bool) {
	t.mu.Lock()
	_, known := t.ids[id]
	fresh := !known && !redirect
	if fresh {
		t.ids[id] = struct{}{}
	}
	t.mu.Unlock()
	if fresh {
		t.send(RequestStarted, id)
	}
}

func (t *requestTracker) finished(id network.RequestID) {
	t.mu.Lock()
	_, known := t.ids[id]
	delete(t.ids, id)
	t.mu.Unlock()
	if known {
		t.send(RequestFinished, id)
	}
}

func (t *requestTracker) send(e NetEvent, id network.RequestID) {
	select {
	case t.ch <- e:
		return
	default:
	}
	timer := time.NewTimer(eventSendTimeout)
	defer timer.Stop()
	select {
	case t.ch <- e:
	case <-t.done:
	case <-timer.C:
		log.Warn().Str("requestId", string(id)).Msg("⚠️ Network event dropped, settlement may run to its timeout")
	}
}
