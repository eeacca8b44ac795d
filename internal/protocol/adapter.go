// Package protocol defines the abstract Adapter contract pollers drive,
// plus Base, a reusable implementation of the connect/backoff/
// endpoint-rotation state machine every concrete adapter shares. Status and
// data events are delivered through plain func fields rather than a
// pub/sub library, since adapters only ever have one listener.
package protocol

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrUnsupported is returned by adapters that register a protocol key but
// have no working implementation (see internal/protocol/iec104,
// internal/protocol/snmp).
var ErrUnsupported = errors.New("protocol: unsupported")

// ErrNoEndpoints is returned by Connect when ConfigureEndpoints was never
// called or was given an empty endpoint set.
var ErrNoEndpoints = errors.New("protocol: no endpoints configured")

// VarType is the wire type tag for a variable's value.
type VarType string

const (
	TypeFloat32 VarType = "float32"
	TypeUint16  VarType = "uint16"
	TypeBool    VarType = "bool"
	TypeString  VarType = "string"
)

// Variable is everything a ReadBatch call needs for one point. Address is
// opaque to the core: each adapter defines and parses its own encoding.
type Variable struct {
	ID      int64
	Name    string
	Address interface{}
	Type    VarType
}

// Endpoint is one connection parameter bundle.
type Endpoint struct {
	Host      string
	Port      int
	TimeoutMs int
}

func (e Endpoint) timeout() time.Duration {
	if e.TimeoutMs <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.TimeoutMs) * time.Millisecond
}

// EndpointSet is the ordered primary+secondary failover list.
type EndpointSet struct {
	Primary   Endpoint
	Secondary []Endpoint
}

func (s EndpointSet) list() []Endpoint {
	if s.Primary == (Endpoint{}) && len(s.Secondary) == 0 {
		return nil
	}
	out := make([]Endpoint, 0, 1+len(s.Secondary))
	out = append(out, s.Primary)
	out = append(out, s.Secondary...)
	return out
}

// Result is one variable's read outcome, ready to publish into the cache.
type Result struct {
	Value   interface{}
	Quality string // cache.Quality, kept as string to avoid an import cycle
}

// DataHandler is invoked once per variable on every ReadBatch call,
// synchronously, from the adapter's calling goroutine. It must not block.
type DataHandler func(id int64, name string, value interface{}, quality string)

// StatusHandler is invoked on every connected/disconnected transition.
type StatusHandler func(protocolName string, connected bool)

// Adapter is the contract every concrete protocol implementation satisfies.
type Adapter interface {
	ConfigureEndpoints(set EndpointSet)
	Connect(ctx context.Context) (bool, error)
	Disconnect()
	Connected() bool
	ReadBatch(ctx context.Context, vars []Variable) (map[int64]Result, error)
	OnDataReceived(h DataHandler)
	OnConnectionStatusChanged(h StatusHandler)
}

// maxBackoffExponent clamps the exponential throttle at 2^6 = 64s.
const maxBackoffExponent = 6

// Base implements the connect/backoff/endpoint-rotation/event-emission
// machinery shared by every Adapter. Concrete adapters hold one and supply
// tryConnect/release closures via NewBase.
type Base struct {
	Name string

	tryConnect func(ctx context.Context, ep Endpoint) error
	release    func()

	mu           sync.Mutex
	endpoints    []Endpoint
	currentIndex int
	connected    bool
	attempts     int
	lastAttempt  time.Time

	onData   DataHandler
	onStatus StatusHandler
}

// NewBase constructs a Base. tryConnect attempts exactly one connection to
// the given endpoint and must return nil only on success. release tears
// down whatever transport tryConnect last established (called on
// Disconnect; Connect itself never calls it).
func NewBase(name string, tryConnect func(ctx context.Context, ep Endpoint) error, release func()) *Base {
	return &Base{Name: name, tryConnect: tryConnect, release: release}
}

// ConfigureEndpoints sets the endpoint list and resets sticky selection to
// the primary.
func (b *Base) ConfigureEndpoints(set EndpointSet) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.endpoints = set.list()
	b.currentIndex = 0
}

// OnDataReceived registers the data callback. Not safe to call concurrently
// with ReadBatch.
func (b *Base) OnDataReceived(h DataHandler) { b.onData = h }

// OnConnectionStatusChanged registers the status callback. Not safe to call
// concurrently with Connect/Disconnect.
func (b *Base) OnConnectionStatusChanged(h StatusHandler) { b.onStatus = h }

// Connected reports the adapter's last-known connection state.
func (b *Base) Connected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

// Connect throttles retries, rotates through the endpoint list starting
// from the last successful index, and sticks to whichever endpoint answers.
// A failed attempt grows the backoff window exponentially.
func (b *Base) Connect(ctx context.Context) (bool, error) {
	b.mu.Lock()
	if len(b.endpoints) == 0 {
		b.mu.Unlock()
		return false, ErrNoEndpoints
	}

	if b.attempts > 0 {
		exp := b.attempts - 1 // gaps are 2^0, 2^1, 2^2, ... after the 1st, 2nd, 3rd failure
		if exp > maxBackoffExponent {
			exp = maxBackoffExponent
		}
		wait := time.Duration(1<<uint(exp)) * time.Second
		if time.Since(b.lastAttempt) < wait {
			b.mu.Unlock()
			return false, nil
		}
	}

	endpoints := b.endpoints
	start := b.currentIndex
	b.lastAttempt = time.Now()
	b.mu.Unlock()

	for i := 0; i < len(endpoints); i++ {
		idx := (start + i) % len(endpoints)
		ep := endpoints[idx]

		cctx := ctx
		var cancel context.CancelFunc
		if _, ok := ctx.Deadline(); !ok {
			cctx, cancel = context.WithTimeout(ctx, ep.timeout())
		}
		err := b.tryConnect(cctx, ep)
		if cancel != nil {
			cancel()
		}
		if err == nil {
			b.mu.Lock()
			b.connected = true
			b.attempts = 0
			b.currentIndex = idx
			b.mu.Unlock()
			b.emitStatus(true)
			return true, nil
		}
	}

	b.mu.Lock()
	b.attempts++
	wasConnected := b.connected
	b.connected = false
	b.mu.Unlock()

	if wasConnected {
		b.emitStatus(false)
	}
	return false, nil
}

// Disconnect releases the underlying transport and emits a status
// transition if the adapter was connected.
func (b *Base) Disconnect() {
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = false
	b.mu.Unlock()

	if b.release != nil {
		b.release()
	}
	if wasConnected {
		b.emitStatus(false)
	}
}

// MarkDisconnected flips internal state to disconnected without releasing
// the transport (the caller releases it itself), used by ReadBatch on a
// transport-level failure mid-batch.
func (b *Base) MarkDisconnected() {
	b.mu.Lock()
	wasConnected := b.connected
	b.connected = false
	b.mu.Unlock()
	if wasConnected {
		b.emitStatus(false)
	}
}

// Publish both records a data-received event and is the single choke point
// concrete adapters call from ReadBatch for every variable, success or
// failure.
func (b *Base) Publish(id int64, name string, value interface{}, quality string) {
	if b.onData != nil {
		b.onData(id, name, value, quality)
	}
}

func (b *Base) emitStatus(connected bool) {
	if b.onStatus != nil {
		b.onStatus(b.Name, connected)
	}
}
