package executor

import (
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/assert"
)

func drain(ch <-chan NetEvent) []NetEvent {
	var got []NetEvent
	for {
		select {
		case e := <-ch:
			got = append(got, e)
		default:
			return got
		}
	}
}

func TestRedirectChainIsOneRequest(t *testing.T) {
	tr := newRequestTracker(make(chan struct{}))

	tr.started("r1", false)
	tr.started("r1", true)
	tr.started("r1", true)
	tr.finished("r1")

	assert.Equal(t, []NetEvent{RequestStarted, RequestFinished}, drain(tr.ch))
}

func TestFinishWithoutStartIsIgnored(t *testing.T) {
	tr := newRequestTracker(make(chan struct{}))

	// subscribed halfway through a redirect
	tr.started("r0", true)
	tr.finished("r0")
	tr.finished("unknown")
	tr.started("r1", false)
	tr.finished("r1")
	tr.finished("r1")

	assert.Equal(t, []NetEvent{RequestStarted, RequestFinished}, drain(tr.ch))
}

func TestFullChannelDoesNotBlockForever(t *testing.T) {
	done := make(chan struct{})
	tr := newRequestTracker(done)
	for i := 0; i < cap(tr.ch); i++ {
		tr.ch <- RequestStarted
	}

	start := time.Now()
	tr.started(network.RequestID("late"), false)
	assert.Less(t, time.Since(start), time.Second)

	close(done)
	start = time.Now()
	tr.finished("late")
	assert.Less(t, time.Since(start), eventSendTimeout)
}

func TestSlowConsumerStillReceivesEvent(t *testing.T) {
	tr := newRequestTracker(make(chan struct{}))
	for i := 0; i < cap(tr.ch); i++ {
		tr.ch <- RequestStarted
	}

	go func() {
		time.Sleep(10 * time.Millisecond)
		<-tr.ch
	}()
	tr.started("r1", false)

	got := drain(tr.ch)
	assert.Len(t, got, cap(tr.ch))
}
