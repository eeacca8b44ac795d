package config

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"github.com/tamzrod/scada-gateway/internal/cache"
	"github.com/tamzrod/scada-gateway/internal/gatewayerr"
	"github.com/tamzrod/scada-gateway/internal/gatewaylog"
	"github.com/tamzrod/scada-gateway/internal/hub"
	"github.com/tamzrod/scada-gateway/internal/ids"
)

// watchInterval is the config file's re-read period.
const watchInterval = 5 * time.Second

// Controller owns the config document, id allocation, and protocol adapter
// lifecycle: Load parses, validates, assigns missing ids, and (re)binds
// adapters in one atomic step; Watch re-reads the file on a fixed interval
// and repeats that step on a byte-level diff.
type Controller struct {
	alloc *ids.Allocator
	cache *cache.Cache
	hub   *hub.Hub
	log   *gatewaylog.Logger

	mu       sync.RWMutex
	doc      Document
	path     string
	rawAtLoad []byte

	onRebind func([]Binding)
}

// New constructs a Controller. alloc, cache, and hub are shared with the
// rest of the gateway; the controller never owns them exclusively.
func New(alloc *ids.Allocator, c *cache.Cache, h *hub.Hub, log *gatewaylog.Logger) *Controller {
	return &Controller{alloc: alloc, cache: c, hub: h, log: log}
}

// OnRebind registers a callback invoked with the full new binding set every
// time Load/ApplyUpdate successfully (re)binds adapters. The gateway uses
// this to restart its poller goroutines against the fresh, immutable
// snapshot.
func (c *Controller) OnRebind(fn func([]Binding)) {
	c.onRebind = fn
}

// Load parses the config document at path, restores the id high watermark,
// assigns missing ids, and (re)binds protocol adapters. On any failure the
// previous in-memory config and bindings are left untouched.
func (c *Controller) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return &gatewayerr.ConfigError{Op: "load:" + path, Err: err}
	}
	if err := c.loadFromBytes(data); err != nil {
		return err
	}
	c.mu.Lock()
	c.path = path
	c.rawAtLoad = data
	c.mu.Unlock()
	return nil
}

// loadFromBytes implements the shared parse/validate/assign/bind sequence
// used by both Load and Watch.
func (c *Controller) loadFromBytes(data []byte) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &gatewayerr.ConfigError{Op: "parse", Err: err}
	}
	return c.applyDoc(doc)
}

// ApplyUpdate replaces the in-memory config with newDoc (e.g. from an
// update_config request), reassigns missing ids, rebinds adapters, and
// persists the result. If only the persist step fails, the new config stays
// in effect and the save error is returned.
func (c *Controller) ApplyUpdate(newDoc Document) error {
	if err := c.applyDoc(newDoc); err != nil {
		return err
	}
	return c.Save("")
}

// applyDoc is the all-or-nothing commit path: everything that can fail
// (validate, build bindings) happens before any controller state is
// mutated.
func (c *Controller) applyDoc(doc Document) error {
	if err := Validate(doc); err != nil {
		return &gatewayerr.ConfigError{Op: "validate", Err: err}
	}

	c.alloc.RestoreHighWatermark(maxID(doc))
	assignMissingIds(doc, c.alloc)

	warn := func(msg string) {
		if c.log != nil {
			c.log.Warningf(msg)
		}
	}
	bindings, err := buildBindings(doc, c.cache, c.hub, warn)
	if err != nil {
		return &gatewayerr.ConfigError{Op: "bind", Err: err}
	}

	c.mu.Lock()
	c.doc = doc
	c.mu.Unlock()

	// Previous adapters are simply superseded; the poller manager owns
	// stopping the goroutines that were using them (see internal/gateway).
	for _, pc := range doc {
		for _, v := range pc.Variables {
			c.cache.SetName(v.ID, v.Name)
		}
	}

	if c.onRebind != nil {
		c.onRebind(bindings)
	}
	return nil
}

// Save writes the current config as pretty JSON (4-space indent) to path,
// or to Path() if path is "". A non-empty path becomes the new Path().
func (c *Controller) Save(path string) error {
	c.mu.RLock()
	doc := c.doc
	target := path
	if target == "" {
		target = c.path
	}
	c.mu.RUnlock()

	if target == "" {
		return &gatewayerr.ConfigError{Op: "save", Err: errNoPath}
	}

	b, err := marshalIndent(doc)
	if err != nil {
		return &gatewayerr.ConfigError{Op: "save:marshal", Err: err}
	}
	if err := os.WriteFile(target, b, 0o644); err != nil {
		return &gatewayerr.ConfigError{Op: "save:write", Err: err}
	}

	c.mu.Lock()
	if path != "" {
		c.path = path
	}
	c.rawAtLoad = b
	c.mu.Unlock()
	return nil
}

func marshalIndent(doc Document) ([]byte, error) {
	return json.MarshalIndent(doc, "", "    ")
}

// Document returns a snapshot of the current in-memory config.
func (c *Controller) Document() Document {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.doc == nil {
		return nil
	}
	out := make(Document, len(c.doc))
	for key, pc := range c.doc {
		if pc.Variables != nil {
			vars := make(map[string]VariableConfig, len(pc.Variables))
			for k, v := range pc.Variables {
				vars[k] = v
			}
			pc.Variables = vars
		}
		out[key] = pc
	}
	return out
}

// Path returns the path Load was most recently called with, or the path an
// explicit Save target was last written to.
func (c *Controller) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.path
}

// Watch re-reads the loaded config file every 5s; if its contents differ
// from what was read at the last successful load/save, it performs the
// full load sequence again. A parse error aborts that reload without
// touching in-memory state and is reported via the injected logger.
// Watch returns when ctx is cancelled.
func (c *Controller) Watch(ctx context.Context) {
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.checkForChange()
		}
	}
}

func (c *Controller) checkForChange() {
	c.mu.RLock()
	path := c.path
	last := c.rawAtLoad
	c.mu.RUnlock()

	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if c.log != nil {
			c.log.Warningf("config watch: re-read %s failed: %v", path, err)
		}
		return
	}
	if bytes.Equal(data, last) {
		return
	}

	if err := c.loadFromBytes(data); err != nil {
		if c.log != nil {
			c.log.Errorf("config watch: reload aborted: %v", err)
		}
		return
	}

	c.mu.Lock()
	c.rawAtLoad = data
	c.mu.Unlock()

	if c.log != nil {
		c.log.Infof("config watch: reloaded %s", path)
	}
}

var errNoPath = &pathError{}

type pathError struct{}

func (*pathError) Error() string { return "no config path to save to" }
