package server

import (
	"github.com/tamzrod/scada-gateway/internal/cache"
)

// compactEntry is one row of the snapshot object keyed by variable id.
// encoding/json marshals an integer map key as its base-10 string form
// automatically, so snapshot() below needs no manual string conversion.
type compactEntry struct {
	Name    string      `json:"n"`
	Value   interface{} `json:"v"`
	TsMs    int64       `json:"t"`
	Quality string      `json:"q"`
}

func snapshot(c *cache.Cache) map[int64]compactEntry {
	all := c.SnapshotAll()
	out := make(map[int64]compactEntry, len(all))
	for id, e := range all {
		if e.Quality == "" {
			// Seeded by config load but never actually polled yet; omit it
			// rather than reporting a fabricated quality and a zero-time
			// timestamp.
			continue
		}
		out[id] = compactEntry{
			Name:    e.Name,
			Value:   e.Value,
			TsMs:    e.Time.UnixMilli(),
			Quality: string(e.Quality),
		}
	}
	return out
}

// historyEntry is one row of a GET_HISTORY response array.
type historyEntry struct {
	Value   interface{} `json:"v"`
	TsMs    int64       `json:"t"`
	Quality string      `json:"q"`
}

func history(c *cache.Cache, id int64, n int) []historyEntry {
	samples := c.HistoryOf(id, n)
	out := make([]historyEntry, len(samples))
	for i, sm := range samples {
		out[i] = historyEntry{
			Value:   sm.Value,
			TsMs:    sm.Timestamp.UnixMilli(),
			Quality: string(sm.Quality),
		}
	}
	return out
}
