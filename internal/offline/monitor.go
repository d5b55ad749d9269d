package offline

import (
	"context"
	"sync/atomic"
	"time"
)

// Probe reports whether the backend is currently reachable.
type Probe func(ctx context.Context) bool

// Monitor polls a probe and fires callbacks on reachability transitions.
// Callbacks run on the polling goroutine.
type Monitor struct {
	probe     Probe
	interval  time.Duration
	online    atomic.Bool
	onOnline  func()
	onOffline func()
	stop      chan struct{}
	done      chan struct{}
}

func NewMonitor(probe Probe, interval time.Duration) *Monitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Monitor{
		probe:    probe,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Monitor) OnOnline(fn func()) {
	m.onOnline = fn
}

func (m *Monitor) OnOffline(fn func()) {
	m.onOffline = fn
}

func (m *Monitor) Online() bool {
	return m.online.Load()
}

// Check runs a single probe evaluation, firing a callback if reachability
// flipped. Exposed for manual triggers and tests; Start calls it on a
// ticker.
func (m *Monitor) Check(ctx context.Context) {
	now := m.probe(ctx)
	was := m.online.Swap(now)
	if now == was {
		return
	}
	if now {
		if m.onOnline != nil {
			m.onOnline()
		}
		return
	}
	if m.onOffline != nil {
		m.onOffline()
	}
}

func (m *Monitor) Start(ctx context.Context) {
	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()

		m.Check(ctx)
		for {
			select {
			case <-ticker.C:
				m.Check(ctx)
			case <-m.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) Stop() {
	close(m.stop)
	<-m.done
}
