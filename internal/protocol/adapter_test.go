package protocol

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConnect_NoEndpoints(t *testing.T) {
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error { return nil }, nil)
	_, err := b.Connect(context.Background())
	if !errors.Is(err, ErrNoEndpoints) {
		t.Fatalf("expected ErrNoEndpoints, got %v", err)
	}
}

func TestConnect_SuccessOnPrimary(t *testing.T) {
	var tried []Endpoint
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error {
		tried = append(tried, ep)
		return nil
	}, nil)
	b.ConfigureEndpoints(EndpointSet{Primary: Endpoint{Host: "a"}})

	ok, err := b.Connect(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected success, got ok=%v err=%v", ok, err)
	}
	if !b.Connected() {
		t.Fatalf("expected Connected() true")
	}
	if len(tried) != 1 || tried[0].Host != "a" {
		t.Fatalf("unexpected attempts: %v", tried)
	}
}

func TestConnect_FailoverToSecondary(t *testing.T) {
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error {
		if ep.Host == "primary" {
			return errors.New("down")
		}
		return nil
	}, nil)
	b.ConfigureEndpoints(EndpointSet{
		Primary:   Endpoint{Host: "primary"},
		Secondary: []Endpoint{{Host: "secondary"}},
	})

	ok, err := b.Connect(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected success via secondary, got ok=%v err=%v", ok, err)
	}
}

func TestConnect_StickyIndex(t *testing.T) {
	var statusEvents []bool
	var tried []string
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error {
		tried = append(tried, ep.Host)
		if ep.Host == "primary" {
			return errors.New("down")
		}
		return nil
	}, nil)
	b.OnConnectionStatusChanged(func(name string, connected bool) {
		statusEvents = append(statusEvents, connected)
	})
	b.ConfigureEndpoints(EndpointSet{
		Primary:   Endpoint{Host: "primary"},
		Secondary: []Endpoint{{Host: "secondary"}},
	})

	b.Connect(context.Background()) // fails on primary, succeeds on secondary
	b.Disconnect()

	tried = nil
	ok, err := b.Connect(context.Background())
	if err != nil || !ok {
		t.Fatalf("expected reconnect success, got ok=%v err=%v", ok, err)
	}
	if len(tried) != 1 || tried[0] != "secondary" {
		t.Fatalf("expected reconnect to start from the sticky secondary index without revisiting primary, got %v", tried)
	}

	if len(statusEvents) != 3 || statusEvents[0] != true || statusEvents[1] != false || statusEvents[2] != true {
		t.Fatalf("expected connect, disconnect, reconnect events, got %v", statusEvents)
	}
}

func TestConnect_BackoffMonotonic(t *testing.T) {
	calls := 0
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error {
		calls++
		return errors.New("always fails")
	}, nil)
	b.ConfigureEndpoints(EndpointSet{Primary: Endpoint{Host: "a"}})

	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		b.Connect(context.Background())
	}

	if calls > 5 {
		t.Fatalf("expected <=5 tryConnect invocations over 10s of backoff, got %d", calls)
	}
	if calls < 1 {
		t.Fatalf("expected at least 1 invocation")
	}
}

func TestDisconnect_EmitsOnlyOnTransition(t *testing.T) {
	events := 0
	b := NewBase("test", func(ctx context.Context, ep Endpoint) error { return nil }, nil)
	b.OnConnectionStatusChanged(func(name string, connected bool) { events++ })
	b.ConfigureEndpoints(EndpointSet{Primary: Endpoint{Host: "a"}})

	b.Disconnect() // never connected: no transition
	if events != 0 {
		t.Fatalf("expected no event for no-op disconnect, got %d", events)
	}

	b.Connect(context.Background())
	b.Disconnect()
	b.Disconnect() // already disconnected: no second event
	if events != 2 {
		t.Fatalf("expected exactly 2 events (connect, disconnect), got %d", events)
	}
}
