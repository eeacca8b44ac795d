// Package modbus implements protocol.Adapter over Modbus/TCP, using
// goburrow/modbus's ReadCoils/ReadDiscreteInputs/ReadHoldingRegisters/
// ReadInputRegisters calls to satisfy the ReadBatch contract, and adds a
// simulation mode for running against a config with no real device
// attached.
package modbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	gomodbus "github.com/goburrow/modbus"

	"github.com/tamzrod/scada-gateway/internal/gatewayerr"
	"github.com/tamzrod/scada-gateway/internal/protocol"
)

const Key = "modbus_tcp"

// address is this adapter's private encoding of protocol.Variable.Address.
// The core never inspects it; only this package parses it.
type address struct {
	Register uint16 `json:"register"`
	Length   uint16 `json:"length,omitempty"` // holding registers consumed; only meaningful for "string"
	Area     string `json:"area,omitempty"`   // registers: "holding" (default) or "input"; bool: "coil" (default) or "discrete"
}

func parseAddress(raw interface{}) (address, error) {
	var a address
	switch v := raw.(type) {
	case address:
		return v, nil
	case json.RawMessage:
		if err := json.Unmarshal(v, &a); err != nil {
			return address{}, err
		}
	case map[string]interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return address{}, err
		}
		if err := json.Unmarshal(b, &a); err != nil {
			return address{}, err
		}
	case []byte:
		if err := json.Unmarshal(v, &a); err != nil {
			return address{}, err
		}
	default:
		return address{}, fmt.Errorf("modbus: unrecognized address encoding %T", raw)
	}
	return a, nil
}

// Config configures a new Adapter.
type Config struct {
	UnitID   uint8
	Simulate bool // substitute simulation mode in place of a real transport
}

// client is the subset of gomodbus.Client this adapter calls. Narrowed to an
// interface so simulation mode and tests don't need a real socket.
type client interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	ReadHoldingRegisters(address, quantity uint16) ([]byte, error)
	ReadInputRegisters(address, quantity uint16) ([]byte, error)
}

// Adapter is the concrete modbus_tcp protocol.Adapter.
type Adapter struct {
	base *protocol.Base
	cfg  Config
	rng  *rand.Rand

	mu       sync.Mutex
	handler  *gomodbus.TCPClientHandler
	cli      client
	endpoint string // host:port of the currently held transport, for error reporting
}

// New constructs a modbus_tcp adapter. When cfg.Simulate is set, no real
// socket is ever opened: connect succeeds with ~75% probability and
// ReadBatch manufactures pseudo-random values of the requested type.
func New(cfg Config) *Adapter {
	a := &Adapter{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	a.base = protocol.NewBase(Key, a.tryConnect, a.releaseTransport)
	return a
}

func (a *Adapter) ConfigureEndpoints(set protocol.EndpointSet) { a.base.ConfigureEndpoints(set) }
func (a *Adapter) Connected() bool                             { return a.base.Connected() }
func (a *Adapter) OnDataReceived(h protocol.DataHandler)       { a.base.OnDataReceived(h) }
func (a *Adapter) OnConnectionStatusChanged(h protocol.StatusHandler) {
	a.base.OnConnectionStatusChanged(h)
}

func (a *Adapter) Connect(ctx context.Context) (bool, error) { return a.base.Connect(ctx) }
func (a *Adapter) Disconnect()                                { a.base.Disconnect() }

func (a *Adapter) tryConnect(ctx context.Context, ep protocol.Endpoint) error {
	if a.cfg.Simulate {
		if a.rng.Float64() < 0.75 {
			return nil
		}
		return errors.New("modbus: simulated connect failure")
	}

	h := gomodbus.NewTCPClientHandler(fmt.Sprintf("%s:%d", ep.Host, ep.Port))
	if ep.TimeoutMs > 0 {
		h.Timeout = time.Duration(ep.TimeoutMs) * time.Millisecond
	}
	h.SlaveId = a.cfg.UnitID

	if err := h.Connect(); err != nil {
		return err
	}

	a.mu.Lock()
	a.handler = h
	a.cli = gomodbus.NewClient(h)
	a.endpoint = fmt.Sprintf("%s:%d", ep.Host, ep.Port)
	a.mu.Unlock()
	return nil
}

func (a *Adapter) releaseTransport() {
	a.mu.Lock()
	h := a.handler
	a.handler = nil
	a.cli = nil
	a.mu.Unlock()
	if h != nil {
		_ = h.Close()
	}
}

func (a *Adapter) currentEndpoint() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.endpoint
}

// ReadBatch reads every variable in vars. A per-variable decode failure
// (reported as a *gatewayerr.ProtocolError) gets quality "bad" and a nil
// value without aborting the batch; a transport-level failure (reported as
// a *gatewayerr.TransportError) disconnects and returns whatever was
// collected so far.
func (a *Adapter) ReadBatch(ctx context.Context, vars []protocol.Variable) (map[int64]protocol.Result, error) {
	out := make(map[int64]protocol.Result, len(vars))

	for _, v := range vars {
		value, err := a.readOne(v)
		if err != nil {
			var te *gatewayerr.TransportError
			if errors.As(err, &te) {
				a.base.MarkDisconnected()
				a.releaseTransport()
				return out, err
			}
			a.base.Publish(v.ID, v.Name, nil, "bad")
			out[v.ID] = protocol.Result{Value: nil, Quality: "bad"}
			continue
		}
		a.base.Publish(v.ID, v.Name, value, "good")
		out[v.ID] = protocol.Result{Value: value, Quality: "good"}
	}

	return out, nil
}

func (a *Adapter) readOne(v protocol.Variable) (interface{}, error) {
	if a.cfg.Simulate {
		return a.simulateValue(v.Type), nil
	}

	addr, err := parseAddress(v.Address)
	if err != nil {
		return nil, &gatewayerr.ProtocolError{VariableID: v.ID, Err: err}
	}

	a.mu.Lock()
	cli := a.cli
	a.mu.Unlock()
	if cli == nil {
		return nil, &gatewayerr.TransportError{Endpoint: a.currentEndpoint(), Err: errors.New("not connected")}
	}

	switch v.Type {
	case protocol.TypeBool:
		raw, err := readBits(cli, addr, 1)
		if err != nil {
			return nil, a.wrapReadErr(v, err)
		}
		return raw[0], nil

	case protocol.TypeUint16:
		raw, err := readRegisters(cli, addr, 1)
		if err != nil {
			return nil, a.wrapReadErr(v, err)
		}
		return raw[0], nil

	case protocol.TypeFloat32:
		raw, err := readRegisters(cli, addr, 2)
		if err != nil {
			return nil, a.wrapReadErr(v, err)
		}
		bits := uint32(raw[0])<<16 | uint32(raw[1])
		return math.Float32frombits(bits), nil

	case protocol.TypeString:
		n := addr.Length
		if n == 0 {
			n = 1
		}
		raw, err := readRegisterBytes(cli, addr, n)
		if err != nil {
			return nil, a.wrapReadErr(v, err)
		}
		return trimNul(raw), nil

	default:
		return nil, &gatewayerr.ProtocolError{VariableID: v.ID, Err: fmt.Errorf("unsupported variable type %q", v.Type)}
	}
}

// wrapReadErr classifies a gomodbus read failure: a net.Error means the
// socket itself is bad (transport-level, triggers a reconnect), anything
// else is treated as a malformed response for this one variable.
func (a *Adapter) wrapReadErr(v protocol.Variable, err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return &gatewayerr.TransportError{Endpoint: a.currentEndpoint(), Err: err}
	}
	return &gatewayerr.ProtocolError{VariableID: v.ID, Err: err}
}

func (a *Adapter) simulateValue(t protocol.VarType) interface{} {
	switch t {
	case protocol.TypeBool:
		return a.rng.Intn(2) == 1
	case protocol.TypeUint16:
		return uint16(a.rng.Intn(1 << 16))
	case protocol.TypeFloat32:
		return float32(a.rng.NormFloat64()*10 + 50)
	case protocol.TypeString:
		const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
		n := 4 + a.rng.Intn(8)
		b := make([]byte, n)
		for i := range b {
			b[i] = letters[a.rng.Intn(len(letters))]
		}
		return string(b)
	default:
		return nil
	}
}

// ---- area dispatch + byte unpacking ----

func readBits(cli client, addr address, qty uint16) ([]bool, error) {
	area := addr.Area
	if area == "" {
		area = "coil"
	}
	var raw []byte
	var err error
	if area == "discrete" {
		raw, err = cli.ReadDiscreteInputs(addr.Register, qty)
	} else {
		raw, err = cli.ReadCoils(addr.Register, qty)
	}
	if err != nil {
		return nil, err
	}
	return unpackBits(raw, int(qty)), nil
}

func readRegisters(cli client, addr address, qty uint16) ([]uint16, error) {
	raw, err := readRegisterBytes(cli, addr, qty)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(raw), nil
}

func readRegisterBytes(cli client, addr address, qty uint16) ([]byte, error) {
	area := addr.Area
	if area == "" {
		area = "holding"
	}
	if area == "input" {
		return cli.ReadInputRegisters(addr.Register, qty)
	}
	return cli.ReadHoldingRegisters(addr.Register, qty)
}

func unpackBits(data []byte, count int) []bool {
	out := make([]bool, count)
	for i := 0; i < count; i++ {
		byteIdx := i / 8
		bitIdx := i % 8
		if byteIdx >= len(data) {
			continue
		}
		out[i] = data[byteIdx]&(1<<uint(bitIdx)) != 0
	}
	return out
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}

func trimNul(data []byte) string {
	for i, b := range data {
		if b == 0 {
			return string(data[:i])
		}
	}
	return string(data)
}

