// Package config implements the Controller: JSON config document parsing,
// id assignment, persistence, hot reload, and protocol-adapter (re)binding.
// Validate never mutates; id assignment and adapter binding only run after
// Validate passes.
package config

import "encoding/json"

// Document is the persisted config: protocol key -> protocol config.
type Document map[string]ProtocolConfig

// ProtocolConfig is one protocol's connection parameters, polling interval,
// and variable set.
type ProtocolConfig struct {
	ConnectionParameters ConnectionParameters     `json:"connection_parameters"`
	Variables            map[string]VariableConfig `json:"variables"`
	PollingIntervalMs    int                       `json:"polling_interval_ms"`

	// Simulate substitutes the adapter's simulation mode in place of a real
	// transport. Defaults to false.
	Simulate bool `json:"simulate,omitempty"`
}

// ConnectionParameters is the ordered primary+secondary endpoint list.
type ConnectionParameters struct {
	Primary   EndpointConfig   `json:"primary"`
	Secondary []EndpointConfig `json:"secondary,omitempty"`

	// UnitID is the Modbus slave address (or protocol-equivalent unit
	// selector) needed to actually address a device.
	UnitID uint8 `json:"unit_id,omitempty"`
}

// EndpointConfig is one {host, port, timeout_ms} bundle.
type EndpointConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
}

// VariableConfig is one entry under a protocol's "variables" map, keyed by
// an arbitrary local key.
type VariableConfig struct {
	ID                int64           `json:"id,omitempty"`
	Name              string          `json:"name"`
	Address           json.RawMessage `json:"address"`
	Type              string          `json:"type"`
	PollingIntervalMs *int            `json:"polling_interval_ms,omitempty"`
}

// effectiveIntervalMs resolves a variable-level polling_interval_ms
// override against the protocol-level default.
func effectiveIntervalMs(protocolDefault int, v VariableConfig) int {
	if v.PollingIntervalMs != nil && *v.PollingIntervalMs > 0 {
		return *v.PollingIntervalMs
	}
	return protocolDefault
}
