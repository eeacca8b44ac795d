package config

import (
	"fmt"
	"time"

	"github.com/tamzrod/scada-gateway/internal/cache"
	"github.com/tamzrod/scada-gateway/internal/hub"
	"github.com/tamzrod/scada-gateway/internal/protocol"
	"github.com/tamzrod/scada-gateway/internal/protocol/iec104"
	"github.com/tamzrod/scada-gateway/internal/protocol/modbus"
	"github.com/tamzrod/scada-gateway/internal/protocol/snmp"
)

// Binding is one poller's worth of work: a protocol adapter (shared across
// every Binding for the same protocol key when variables have heterogeneous
// polling_interval_ms) plus the variables and interval that poller drives.
type Binding struct {
	ProtocolKey string
	Adapter     protocol.Adapter
	Variables   []protocol.Variable
	Interval    time.Duration
}

// newAdapter constructs the concrete adapter for a known protocol key by
// direct construction, no plugin registry.
func newAdapter(protocolKey string, unitID uint8, simulate bool) (protocol.Adapter, bool) {
	switch protocolKey {
	case modbus.Key:
		return modbus.New(modbus.Config{UnitID: unitID, Simulate: simulate}), true
	case iec104.Key:
		return iec104.New(), true
	case snmp.Key:
		return snmp.New(), true
	default:
		return nil, false
	}
}

func toEndpointSet(cp ConnectionParameters) protocol.EndpointSet {
	set := protocol.EndpointSet{
		Primary: protocol.Endpoint{
			Host:      cp.Primary.Host,
			Port:      cp.Primary.Port,
			TimeoutMs: cp.Primary.TimeoutMs,
		},
	}
	for _, s := range cp.Secondary {
		set.Secondary = append(set.Secondary, protocol.Endpoint{
			Host:      s.Host,
			Port:      s.Port,
			TimeoutMs: s.TimeoutMs,
		})
	}
	return set
}

// buildBindings constructs one adapter per recognized protocol key in doc,
// wires its callbacks to cache.Update/hub.Publish, and groups its variables
// into one Binding per distinct effective polling interval. Unknown
// protocol keys are skipped (reported via warn), not fatal.
func buildBindings(doc Document, c *cache.Cache, h *hub.Hub, warn func(string)) ([]Binding, error) {
	var bindings []Binding

	for protoKey, pc := range doc {
		adapter, known := newAdapter(protoKey, pc.ConnectionParameters.UnitID, pc.Simulate)
		if !known {
			if warn != nil {
				warn(fmt.Sprintf("config: skipping unknown protocol key %q", protoKey))
			}
			continue
		}

		adapter.ConfigureEndpoints(toEndpointSet(pc.ConnectionParameters))
		adapter.OnDataReceived(func(id int64, name string, value interface{}, quality string) {
			c.Update(id, name, value, cache.Quality(quality))
			h.Publish(id, name, value)
		})
		adapter.OnConnectionStatusChanged(func(name string, connected bool) {
			if warn != nil && !connected {
				warn(fmt.Sprintf("protocol %q disconnected", name))
			}
		})

		byInterval := make(map[int][]protocol.Variable)
		for _, v := range pc.Variables {
			interval := effectiveIntervalMs(pc.PollingIntervalMs, v)
			vtype := protocol.VarType(v.Type)
			byInterval[interval] = append(byInterval[interval], protocol.Variable{
				ID:      v.ID,
				Name:    v.Name,
				Address: v.Address,
				Type:    vtype,
			})
		}

		for intervalMs, vars := range byInterval {
			if intervalMs <= 0 {
				intervalMs = 1000
			}
			bindings = append(bindings, Binding{
				ProtocolKey: protoKey,
				Adapter:     adapter,
				Variables:   vars,
				Interval:    time.Duration(intervalMs) * time.Millisecond,
			})
		}
	}

	return bindings, nil
}
