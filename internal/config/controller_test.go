package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tamzrod/scada-gateway/internal/cache"
	"github.com/tamzrod/scada-gateway/internal/hub"
	"github.com/tamzrod/scada-gateway/internal/ids"
)

func newTestController(t *testing.T) (*Controller, string) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	c := New(ids.New(), cache.New(), hub.New(nil, nil), nil)
	return c, path
}

const sampleConfig = `{
	"modbus_tcp": {
		"connection_parameters": {
			"primary": {"host": "10.0.0.5", "port": 502, "timeout_ms": 1000},
			"unit_id": 1
		},
		"polling_interval_ms": 1000,
		"simulate": true,
		"variables": {
			"tank_level": {"name": "tank_level", "type": "float32", "address": {"register": 100, "length": 2}},
			"pump_running": {"name": "pump_running", "type": "bool", "address": {"register": 10, "length": 1}}
		}
	}
}`

func TestLoad_AssignsMissingIdsAndBinds(t *testing.T) {
	c, path := newTestController(t)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}

	var got []Binding
	c.OnRebind(func(b []Binding) { got = b })

	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	doc := c.Document()
	pc := doc["modbus_tcp"]
	for key, v := range pc.Variables {
		if v.ID == 0 {
			t.Errorf("variable %q did not get an assigned id", key)
		}
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 binding (single shared interval), got %d", len(got))
	}
	if len(got[0].Variables) != 2 {
		t.Fatalf("expected 2 variables bound, got %d", len(got[0].Variables))
	}
}

func TestLoad_InvalidJSON_LeavesStatePreviouslyLoaded(t *testing.T) {
	c, path := newTestController(t)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err != nil {
		t.Fatalf("initial Load: %v", err)
	}
	before := c.Document()

	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err == nil {
		t.Fatal("expected error for invalid JSON")
	}

	after := c.Document()
	if len(after) != len(before) {
		t.Fatalf("state changed after failed load: before=%d after=%d", len(before), len(after))
	}
}

func TestLoad_DuplicateID_Rejected(t *testing.T) {
	c, path := newTestController(t)
	bad := `{
		"modbus_tcp": {
			"connection_parameters": {"primary": {"host": "h", "port": 502}},
			"variables": {
				"a": {"id": 5, "name": "a", "type": "bool", "address": {"register": 1, "length": 1}},
				"b": {"id": 5, "name": "b", "type": "bool", "address": {"register": 2, "length": 1}}
			}
		}
	}`
	if err := os.WriteFile(path, []byte(bad), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err == nil {
		t.Fatal("expected validation error for duplicate id")
	}
}

func TestSave_RoundTrips(t *testing.T) {
	c, path := newTestController(t)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Save(""); err != nil {
		t.Fatalf("Save: %v", err)
	}

	c2, _ := newTestController(t)
	if err := c2.Load(path); err != nil {
		t.Fatalf("reload after save: %v", err)
	}
	if len(c2.Document()["modbus_tcp"].Variables) != 2 {
		t.Fatal("round-tripped document lost variables")
	}
}

func TestApplyUpdate_PersistsToDisk(t *testing.T) {
	c, path := newTestController(t)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	newDoc := c.Document()
	pc := newDoc["modbus_tcp"]
	pc.PollingIntervalMs = 2000
	newDoc["modbus_tcp"] = pc

	if err := c.ApplyUpdate(newDoc); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("expected ApplyUpdate to persist non-empty document")
	}
}

func TestWatch_PicksUpExternalEdit(t *testing.T) {
	c, path := newTestController(t)
	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	reloaded := make(chan struct{}, 1)
	c.OnRebind(func([]Binding) {
		select {
		case reloaded <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Force the watch loop to fire quickly for the test instead of waiting
	// the full 5s production interval.
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
				c.checkForChange()
			}
		}
	}()

	edited := `{
		"modbus_tcp": {
			"connection_parameters": {"primary": {"host": "10.0.0.5", "port": 502}},
			"polling_interval_ms": 500,
			"simulate": true,
			"variables": {
				"tank_level": {"name": "tank_level", "type": "float32", "address": {"register": 100, "length": 2}}
			}
		}
	}`
	time.Sleep(20 * time.Millisecond)
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-reloaded:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for watch loop to pick up external edit")
	}

	if len(c.Document()["modbus_tcp"].Variables) != 1 {
		t.Fatal("expected reloaded document to reflect the edit")
	}
}
