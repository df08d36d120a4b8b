package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeProber) setFail(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = fail
}

func (f *fakeProber) Probe(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("probe: no route to device")
	}
	return nil
}

func waitState(t *testing.T, events <-chan State, want State) {
	t.Helper()
	select {
	case got := <-events:
		require.Equal(t, want, got)
	case <-time.After(3 * time.Second):
		t.Fatalf("timed out waiting for state %s", want)
	}
}

func TestPoller_Transitions(t *testing.T) {
	prober := &fakeProber{}
	events := make(chan State, 16)

	p := NewPoller(prober,
		WithPollInterval(10*time.Millisecond),
		WithOnChange(func(s State) { events <- s }),
	)
	assert.Equal(t, StateDisconnected, p.State())

	p.Start(context.Background())
	defer p.Stop()

	// first probe runs immediately
	waitState(t, events, StateConnected)
	assert.True(t, p.Connected())

	prober.setFail(true)
	waitState(t, events, StateDisconnected)
	assert.False(t, p.Connected())

	prober.setFail(false)
	waitState(t, events, StateConnected)
	assert.True(t, p.Connected())
}

func TestPoller_NoEventWithoutTransition(t *testing.T) {
	prober := &fakeProber{}
	events := make(chan State, 16)

	p := NewPoller(prober,
		WithPollInterval(5*time.Millisecond),
		WithOnChange(func(s State) { events <- s }),
	)
	p.Start(context.Background())

	waitState(t, events, StateConnected)

	// let a bunch of same-verdict ticks pass, then stop and drain: no
	// further events may have fired
	time.Sleep(100 * time.Millisecond)
	p.Stop()

	select {
	case s := <-events:
		t.Fatalf("unexpected event %s without a transition", s)
	default:
	}
}

func TestPoller_StopIsIdempotentAndKeepsState(t *testing.T) {
	prober := &fakeProber{}
	p := NewPoller(prober, WithPollInterval(5*time.Millisecond))

	p.Start(context.Background())

	require.Eventually(t, p.Connected, 3*time.Second, 5*time.Millisecond)

	p.Stop()
	p.Stop() // second stop must not panic or block

	assert.Equal(t, StateConnected, p.State())
}

func TestPoller_ContextCancelStopsPolling(t *testing.T) {
	prober := &fakeProber{}
	ctx, cancel := context.WithCancel(context.Background())

	p := NewPoller(prober, WithPollInterval(5*time.Millisecond))
	p.Start(ctx)

	require.Eventually(t, p.Connected, 3*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case <-p.done:
	case <-time.After(3 * time.Second):
		t.Fatal("poll goroutine did not exit after context cancel")
	}
}
