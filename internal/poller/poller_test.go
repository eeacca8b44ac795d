package poller

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tamzrod/scada-gateway/internal/config"
	"github.com/tamzrod/scada-gateway/internal/protocol"
)

type countingAdapter struct {
	connected int32
	reads     int32
	failConn  bool
}

func (a *countingAdapter) ConfigureEndpoints(protocol.EndpointSet) {}
func (a *countingAdapter) Connect(ctx context.Context) (bool, error) {
	if a.failConn {
		return false, nil
	}
	atomic.StoreInt32(&a.connected, 1)
	return true, nil
}
func (a *countingAdapter) Disconnect()   { atomic.StoreInt32(&a.connected, 0) }
func (a *countingAdapter) Connected() bool { return atomic.LoadInt32(&a.connected) == 1 }
func (a *countingAdapter) ReadBatch(ctx context.Context, vars []protocol.Variable) (map[int64]protocol.Result, error) {
	atomic.AddInt32(&a.reads, 1)
	return nil, nil
}
func (a *countingAdapter) OnDataReceived(protocol.DataHandler)             {}
func (a *countingAdapter) OnConnectionStatusChanged(protocol.StatusHandler) {}

func TestPoller_ConnectsThenReadsOnTicks(t *testing.T) {
	adapter := &countingAdapter{}
	binding := config.Binding{
		ProtocolKey: "modbus_tcp",
		Adapter:     adapter,
		Variables:   []protocol.Variable{{ID: 1, Name: "x", Type: protocol.TypeBool}},
		Interval:    10 * time.Millisecond,
	}
	p := NewPoller(binding, newAdapterLock(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 80*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if !adapter.Connected() {
		t.Fatal("expected adapter to be connected")
	}
	if atomic.LoadInt32(&adapter.reads) < 3 {
		t.Fatalf("expected several read cycles, got %d", adapter.reads)
	}
}

func TestPoller_FailedConnectSkipsRead(t *testing.T) {
	adapter := &countingAdapter{failConn: true}
	binding := config.Binding{
		ProtocolKey: "modbus_tcp",
		Adapter:     adapter,
		Variables:   []protocol.Variable{{ID: 1, Name: "x", Type: protocol.TypeBool}},
		Interval:    10 * time.Millisecond,
	}
	p := NewPoller(binding, newAdapterLock(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	p.Run(ctx)

	if atomic.LoadInt32(&adapter.reads) != 0 {
		t.Fatalf("expected no reads when connect always fails, got %d", adapter.reads)
	}
}

func TestManager_RebindStopsOldPollers(t *testing.T) {
	adapter := &countingAdapter{}
	binding := config.Binding{
		ProtocolKey: "modbus_tcp",
		Adapter:     adapter,
		Variables:   []protocol.Variable{{ID: 1, Name: "x", Type: protocol.TypeBool}},
		Interval:    10 * time.Millisecond,
	}

	m := NewManager(nil)
	m.Rebind([]config.Binding{binding})
	time.Sleep(30 * time.Millisecond)

	m.Rebind(nil)
	readsAfterRebind := atomic.LoadInt32(&adapter.reads)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt32(&adapter.reads) != readsAfterRebind {
		t.Fatal("expected old poller to stop reading after Rebind(nil)")
	}
	if adapter.Connected() {
		t.Fatal("expected superseded adapter to be disconnected by Rebind")
	}

	m.Stop()
}

func TestManager_StopDisconnectsCurrentAdapters(t *testing.T) {
	adapter := &countingAdapter{}
	binding := config.Binding{
		ProtocolKey: "modbus_tcp",
		Adapter:     adapter,
		Variables:   []protocol.Variable{{ID: 1, Name: "x", Type: protocol.TypeBool}},
		Interval:    10 * time.Millisecond,
	}

	m := NewManager(nil)
	m.Rebind([]config.Binding{binding})
	time.Sleep(15 * time.Millisecond)
	if !adapter.Connected() {
		t.Fatal("expected adapter to be connected before Stop")
	}

	m.Stop()
	if adapter.Connected() {
		t.Fatal("expected Stop to disconnect the adapter")
	}
}
