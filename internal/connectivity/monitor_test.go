package connectivity

import (
	"context"
	"testing"
	"time"
)

func TestMonitorSeedsInitialState(t *testing.T) {
	if !NewMonitor(true).IsOnline() {
		t.Fatal("expected monitor seeded online")
	}
	if NewMonitor(false).IsOnline() {
		t.Fatal("expected monitor seeded offline")
	}
}

func TestMonitorNotifiesOnTransition(t *testing.T) {
	monitor := NewMonitor(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := monitor.Subscribe(ctx)
	defer cleanup()

	monitor.SetOnline(false)

	select {
	case transition := <-stream:
		if transition.Online {
			t.Fatal("expected offline transition")
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("expected transition within deadline")
	}
	if monitor.IsOnline() {
		t.Fatal("expected monitor to report offline")
	}
}

func TestMonitorIgnoresRedundantSet(t *testing.T) {
	monitor := NewMonitor(true)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stream, cleanup := monitor.Subscribe(ctx)
	defer cleanup()

	monitor.SetOnline(true)

	select {
	case <-stream:
		t.Fatal("did not expect a transition for the current state")
	case <-time.After(200 * time.Millisecond):
	}
}
