package device

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPollInterval is how often the poller probes the device.
const DefaultPollInterval = 5 * time.Second

// State is the poller's view of the device.
type State int

const (
	StateDisconnected State = iota
	StateConnected
)

func (s State) String() string {
	if s == StateConnected {
		return "connected"
	}
	return "disconnected"
}

// Prober is the reachability surface of rmsdk.Client the poller needs.
type Prober interface {
	Probe(ctx context.Context) error
}

// Poller probes the device on a fixed interval and tracks a two-state
// connection machine. Only transitions are observable: the callback fires
// when the state flips, never on a repeated verdict.
type Poller struct {
	prober   Prober
	interval time.Duration
	onChange func(State)

	mu    sync.RWMutex
	state State

	cancel context.CancelFunc
	done   chan struct{}
}

// PollerOption customizes a Poller.
type PollerOption func(*Poller)

// WithPollInterval overrides the probe interval.
func WithPollInterval(d time.Duration) PollerOption {
	return func(p *Poller) { p.interval = d }
}

// WithOnChange registers a transition callback. It runs on the poller
// goroutine; keep it quick.
func WithOnChange(fn func(State)) PollerOption {
	return func(p *Poller) { p.onChange = fn }
}

// NewPoller creates a poller around a prober. It starts disconnected until
// the first probe says otherwise.
func NewPoller(prober Prober, opts ...PollerOption) *Poller {
	p := &Poller{
		prober:   prober,
		interval: DefaultPollInterval,
		state:    StateDisconnected,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start probes once immediately, then keeps probing on the interval until
// the context ends or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	pollCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		p.tick(pollCtx)
		for {
			select {
			case <-pollCtx.Done():
				return
			case <-ticker.C:
				p.tick(pollCtx)
			}
		}
	}()
}

// Stop halts probing and waits for the poll goroutine to exit. The last
// observed state stays readable.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
	p.cancel = nil
}

// State returns the last observed state.
func (p *Poller) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Connected reports whether the last probe succeeded.
func (p *Poller) Connected() bool {
	return p.State() == StateConnected
}

func (p *Poller) tick(ctx context.Context) {
	next := StateConnected
	if err := p.prober.Probe(ctx); err != nil {
		next = StateDisconnected
	}

	p.mu.Lock()
	prev := p.state
	p.state = next
	p.mu.Unlock()

	if prev == next {
		return
	}

	slog.Info("device state changed", "from", prev, "to", next)
	if p.onChange != nil {
		p.onChange(next)
	}
}
