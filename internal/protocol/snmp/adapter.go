// Package snmp registers the "snmp" protocol key behind the
// protocol.Adapter contract without a wire implementation. Like
// internal/protocol/iec104, this is a structural slot only, every
// operation failing with protocol.ErrUnsupported until a real transport
// is wired in.
package snmp

import (
	"context"

	"github.com/tamzrod/scada-gateway/internal/protocol"
)

const Key = "snmp"

// Adapter is a structurally-complete, functionally-stubbed
// protocol.Adapter.
type Adapter struct {
	base *protocol.Base
}

// New constructs a stub SNMP adapter.
func New() *Adapter {
	a := &Adapter{}
	a.base = protocol.NewBase(Key, a.tryConnect, nil)
	return a
}

func (a *Adapter) tryConnect(ctx context.Context, ep protocol.Endpoint) error {
	return protocol.ErrUnsupported
}

func (a *Adapter) ConfigureEndpoints(set protocol.EndpointSet) { a.base.ConfigureEndpoints(set) }
func (a *Adapter) Connected() bool                             { return a.base.Connected() }
func (a *Adapter) OnDataReceived(h protocol.DataHandler)       { a.base.OnDataReceived(h) }
func (a *Adapter) OnConnectionStatusChanged(h protocol.StatusHandler) {
	a.base.OnConnectionStatusChanged(h)
}

func (a *Adapter) Connect(ctx context.Context) (bool, error) {
	return false, protocol.ErrUnsupported
}

func (a *Adapter) Disconnect() {}

func (a *Adapter) ReadBatch(ctx context.Context, vars []protocol.Variable) (map[int64]protocol.Result, error) {
	return nil, protocol.ErrUnsupported
}
