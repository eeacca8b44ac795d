// Package cache holds the most recent reading and a bounded history for
// every configured variable, keyed by stable 64-bit id, behind a single
// RWMutex over plain maps. Sharding the map by id range would reduce lock
// contention further but isn't worth the complexity at this scale.
package cache

import (
	"sync"
	"time"
)

// Quality tags how trustworthy a sample is.
type Quality string

const (
	Good      Quality = "good"
	Bad       Quality = "bad"
	Uncertain Quality = "uncertain"
)

// History is capped at this many samples per id; the oldest is dropped on
// overflow.
const HistoryLimit = 100

// Sample is one observation: a value (nil when Quality != Good), a capture
// timestamp, and a quality tag.
type Sample struct {
	Value     interface{}
	Timestamp time.Time
	Quality   Quality
}

// entry is the per-id state. Copied out of the cache only by value-copying
// its Sample fields, never shared by pointer, so readers can never observe a
// write in progress.
type entry struct {
	name    string
	current Sample
	history []Sample // oldest first, len <= HistoryLimit
}

// Cache is the concurrent id -> {current, history, name} map. The zero value
// is not usable; construct with New.
type Cache struct {
	mu   sync.RWMutex
	data map[int64]*entry
}

// New creates an empty Cache.
func New() *Cache {
	return &Cache{data: make(map[int64]*entry)}
}

// Update appends a sample to id's history, replaces its current sample, and
// upserts its name. O(1) amortized. Name is sticky: once a non-empty name is
// recorded, passing an empty name on a later update never blanks it — only a
// config reload explicitly reassigns names via SetName.
func (c *Cache) Update(id int64, name string, value interface{}, quality Quality) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[id]
	if e == nil {
		e = &entry{}
		c.data[id] = e
	}
	if name != "" {
		e.name = name
	}

	s := Sample{Value: value, Timestamp: time.Now(), Quality: quality}
	e.current = s
	e.history = append(e.history, s)
	if len(e.history) > HistoryLimit {
		e.history = e.history[len(e.history)-HistoryLimit:]
	}
}

// SetName explicitly (re)assigns the informational name for id, creating the
// entry if it doesn't exist yet. Used by ConfigController on reload.
func (c *Cache) SetName(id int64, name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := c.data[id]
	if e == nil {
		e = &entry{}
		c.data[id] = e
	}
	e.name = name
}

// CurrentOf returns id's current sample, or ok=false if id is unknown.
func (c *Cache) CurrentOf(id int64) (Sample, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[id]
	if !ok {
		return Sample{}, false
	}
	return e.current, true
}

// HistoryOf returns up to n most recent samples for id, oldest first
// (newest last). If fewer than n are stored, it returns what exists.
func (c *Cache) HistoryOf(id int64, n int) []Sample {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[id]
	if !ok || n <= 0 {
		return nil
	}
	h := e.history
	if n < len(h) {
		h = h[len(h)-n:]
	}
	out := make([]Sample, len(h))
	copy(out, h)
	return out
}

// NameOf returns id's name, or "" if id is unknown.
func (c *Cache) NameOf(id int64) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[id]
	if !ok {
		return ""
	}
	return e.name
}

// Exists reports whether id has ever been registered (via Update or
// SetName).
func (c *Cache) Exists(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.data[id]
	return ok
}

// SnapshotEntry is one row of a point-in-time snapshot.
type SnapshotEntry struct {
	Name    string
	Value   interface{}
	Time    time.Time
	Quality Quality
}

// SnapshotAll returns a consistent point-in-time view of every known id. No
// concurrent Update can be partially reflected: the whole map is copied
// under a single read lock.
func (c *Cache) SnapshotAll() map[int64]SnapshotEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[int64]SnapshotEntry, len(c.data))
	for id, e := range c.data {
		out[id] = SnapshotEntry{
			Name:    e.name,
			Value:   e.current.Value,
			Time:    e.current.Timestamp,
			Quality: e.current.Quality,
		}
	}
	return out
}

// IDMap returns id -> name for every known id, the shape the JSON API's
// get_id_map action exposes directly.
func (c *Cache) IDMap() map[int64]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[int64]string, len(c.data))
	for id, e := range c.data {
		out[id] = e.name
	}
	return out
}
