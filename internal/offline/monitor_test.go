package offline

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestMonitorFiresOnTransitions(t *testing.T) {
	var reachable atomic.Bool
	probe := func(context.Context) bool { return reachable.Load() }

	m := NewMonitor(probe, time.Minute)
	var onlineFired, offlineFired int
	m.OnOnline(func() { onlineFired++ })
	m.OnOffline(func() { offlineFired++ })

	ctx := context.Background()

	m.Check(ctx)
	if m.Online() {
		t.Fatal("monitor online before probe succeeded")
	}
	if onlineFired != 0 || offlineFired != 0 {
		t.Fatalf("callbacks fired without transition: online=%d offline=%d", onlineFired, offlineFired)
	}

	reachable.Store(true)
	m.Check(ctx)
	if !m.Online() {
		t.Fatal("monitor not online after successful probe")
	}
	if onlineFired != 1 {
		t.Fatalf("onOnline fired %d times, want 1", onlineFired)
	}

	// steady state: no repeated callback
	m.Check(ctx)
	if onlineFired != 1 {
		t.Fatalf("onOnline fired %d times in steady state, want 1", onlineFired)
	}

	reachable.Store(false)
	m.Check(ctx)
	if m.Online() {
		t.Fatal("monitor still online after failed probe")
	}
	if offlineFired != 1 {
		t.Fatalf("onOffline fired %d times, want 1", offlineFired)
	}
}

func TestMonitorStartStop(t *testing.T) {
	probe := func(context.Context) bool { return true }
	m := NewMonitor(probe, 5*time.Millisecond)

	fired := make(chan struct{}, 1)
	m.OnOnline(func() {
		select {
		case fired <- struct{}{}:
		default:
		}
	})

	m.Start(context.Background())
	select {
	case <-fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onOnline never fired")
	}
	m.Stop()
}
