package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"anoa.com/casethreads/internal/realtime"
	"github.com/stretchr/testify/require"
)

// Recorder collects the events delivered to one subscription.
type Recorder struct {
	mu     sync.Mutex
	events []realtime.Event
}

// Record subscribes a new Recorder to channel for the rest of the test.
func Record(t *testing.T, b realtime.Broker, channel string) *Recorder {
	t.Helper()

	r := &Recorder{}
	sub, err := b.Subscribe(context.Background(), channel, r.handle)
	require.NoError(t, err)
	t.Cleanup(sub.Close)
	return r
}

func (r *Recorder) handle(ev realtime.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *Recorder) Events() []realtime.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]realtime.Event(nil), r.events...)
}

// OfType returns the recorded events of type typ.
func (r *Recorder) OfType(typ realtime.EventType) []realtime.Event {
	var out []realtime.Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

// Flush publishes a marker on channel and waits until it arrives. Delivery is
// ordered, so every earlier event has been recorded when Flush returns.
func (r *Recorder) Flush(t *testing.T, b realtime.Broker, channel string) {
	t.Helper()

	const marker realtime.EventType = "test.flush"
	before := len(r.OfType(marker))
	require.NoError(t, b.Publish(context.Background(), channel, realtime.Event{Type: marker}))
	require.Eventually(t, func() bool {
		return len(r.OfType(marker)) > before
	}, 2*time.Second, 5*time.Millisecond)
}
