// Package iec104 registers the "iec60870_5_104" protocol key behind the
// protocol.Adapter contract without a wire implementation, so a config
// controller can bind the key structurally, but every operation fails with
// protocol.ErrUnsupported until a real transport is wired in.
package iec104

import (
	"context"

	"github.com/tamzrod/scada-gateway/internal/protocol"
)

const Key = "iec60870_5_104"

// Adapter is a structurally-complete, functionally-stubbed
// protocol.Adapter.
type Adapter struct {
	base *protocol.Base
}

// New constructs a stub IEC-60870-5-104 adapter.
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
