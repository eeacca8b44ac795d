// Package poller drives protocol.Adapter instances on a fixed cadence: one
// goroutine per binding, ticker-driven, no overlapping reads, reconnecting
// before a read whenever the adapter is down.
package poller

import (
	"context"
	"time"

	"github.com/tamzrod/scada-gateway/internal/config"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
)

// Poller runs one config.Binding's read cycle on its own ticker. lock is
// shared across every Poller driving the same underlying adapter (several
// Bindings can share one adapter when variables have heterogeneous
// polling intervals) so ReadBatch/Connect calls against a single
// non-concurrent transport never overlap.
type Poller struct {
	binding config.Binding
	lock    *adapterLock
	log     *gatewaylog.Logger
}

// NewPoller constructs a Poller for one binding. lock must be the same
// *adapterLock for every Poller sharing binding.Adapter.
func NewPoller(binding config.Binding, lock *adapterLock, log *gatewaylog.Logger) *Poller {
	return &Poller{binding: binding, lock: lock, log: log}
}

// Run blocks until ctx is cancelled, reading the bound variables once per
// tick. A disconnected adapter attempts to reconnect on the same tick
// before any read; a failed reconnect attempt simply skips the read for
// that cycle.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.binding.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	adapter := p.binding.Adapter

	p.lock.Lock()
	defer p.lock.Unlock()

	if !adapter.Connected() {
		if ok, err := adapter.Connect(ctx); err != nil || !ok {
			if err != nil && p.log != nil {
				p.log.Warningf("poller %s: connect failed: %v", p.binding.ProtocolKey, err)
			}
			return
		}
	}

	if _, err := adapter.ReadBatch(ctx, p.binding.Variables); err != nil && p.log != nil {
		p.log.Warningf("poller %s: read batch failed: %v", p.binding.ProtocolKey, err)
	}
}

// adapterLock serializes every Poller sharing a single protocol.Adapter.
type adapterLock struct {
	ch chan struct{}
}

func newAdapterLock() *adapterLock {
	l := &adapterLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

func (l *adapterLock) Lock()   { <-l.ch }
func (l *adapterLock) Unlock() { l.ch <- struct{}{} }
