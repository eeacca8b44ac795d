package config

import "github.com/tamzrod/scada-gateway/internal/ids"

// maxID returns the highest explicit id present in doc, or 0 if none.
func maxID(doc Document) int64 {
	var max int64
	for _, pc := range doc {
		for _, v := range pc.Variables {
			if v.ID > max {
				max = v.ID
			}
		}
	}
	return max
}

// assignMissingIds allocates ids for every variable lacking one (id == 0),
// mutating doc in place. MUST be called only after Validate(doc) passes and
// after the allocator's high watermark has been restored from maxID(doc),
// so newly assigned ids are always strictly greater than every
// pre-existing one and a variable's id never changes across reloads.
func assignMissingIds(doc Document, alloc *ids.Allocator) {
	for protoKey, pc := range doc {
		for localKey, v := range pc.Variables {
			if v.ID != 0 {
				continue
			}
			v.ID = alloc.Next()
			pc.Variables[localKey] = v
		}
		doc[protoKey] = pc
	}
}
