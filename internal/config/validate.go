package config

import "fmt"

// Validate checks configuration correctness declaratively. It MUST NOT
// mutate doc.
func Validate(doc Document) error {
	seen := make(map[int64]string) // id -> "protocolKey.localKey" that claimed it

	for protoKey, pc := range doc {
		for localKey, v := range pc.Variables {
			if v.Name == "" {
				return fmt.Errorf("protocol %q variable %q: name is required", protoKey, localKey)
			}
			if !isKnownType(v.Type) {
				return fmt.Errorf("protocol %q variable %q: unknown type %q", protoKey, localKey, v.Type)
			}
			if v.ID < 0 {
				return fmt.Errorf("protocol %q variable %q: id must not be negative", protoKey, localKey)
			}
			if v.ID == 0 {
				continue // assigned later by assignMissingIds
			}
			ref := fmt.Sprintf("%s.%s", protoKey, localKey)
			if prev, exists := seen[v.ID]; exists {
				return fmt.Errorf("duplicate variable id %d: used by %q and %q", v.ID, prev, ref)
			}
			seen[v.ID] = ref
		}
	}
	return nil
}

func isKnownType(t string) bool {
	switch t {
	case "float32", "uint16", "bool", "string":
		return true
	default:
		return false
	}
}
