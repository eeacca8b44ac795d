package poller

import (
	"context"
	"sync"

	"github.com/tamzrod/scada-gateway/internal/config"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
	"github.com/tamzrod/scada-gateway/internal/protocol"
)

// Manager owns the set of running Poller goroutines and replaces them
// wholesale every time config.Controller hands it a fresh binding set,
// one or more pollers per protocol key.
type Manager struct {
	log *gatewaylog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	current []config.Binding
}

// NewManager constructs an idle Manager. Call Rebind to start pollers.
func NewManager(log *gatewaylog.Logger) *Manager {
	return &Manager{log: log}
}

// Rebind stops every currently running poller, waits for them to exit,
// disconnects the adapters those pollers were driving, and starts one
// goroutine per binding against the new set. Bindings sharing an Adapter
// share one adapterLock so their reads never interleave.
func (m *Manager) Rebind(bindings []config.Binding) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
	}
	disconnectAdapters(m.current)

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.current = bindings

	locks := make(map[protocol.Adapter]*adapterLock)
	for _, b := range bindings {
		if _, ok := locks[b.Adapter]; !ok {
			locks[b.Adapter] = newAdapterLock()
		}
	}

	for _, b := range bindings {
		binding := b
		p := NewPoller(binding, locks[binding.Adapter], m.log)
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			p.Run(ctx)
		}()
	}
}

// Stop halts every running poller, waits for them to exit, and disconnects
// the adapters they were driving.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		m.cancel()
		m.wg.Wait()
		m.cancel = nil
	}
	disconnectAdapters(m.current)
	m.current = nil
}

// disconnectAdapters closes the transport behind every distinct adapter in
// bindings exactly once, so a superseded or shut-down binding set never
// leaks an open socket.
func disconnectAdapters(bindings []config.Binding) {
	seen := make(map[protocol.Adapter]bool)
	for _, b := range bindings {
		if b.Adapter == nil || seen[b.Adapter] {
			continue
		}
		seen[b.Adapter] = true
		b.Adapter.Disconnect()
	}
}

// Bindings returns the currently active binding set.
func (m *Manager) Bindings() []config.Binding {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}
