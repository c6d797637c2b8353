package transform

import (
	"strconv"
	"strings"
)

// ResolvePath walks a decoded JSON value by a minimal dotted/indexed path:
// "items[0].price", optionally prefixed with "$.". A miss at any segment
// returns nil.
func ResolvePath(value any, path string) any {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return value
	}

	current := value
	for _, segment := range strings.Split(path, ".") {
		if segment == "" {
			continue
		}
		key, indices := splitIndices(segment)
		if key != "" {
			obj, ok := current.(map[string]any)
			if !ok {
				return nil
			}
			current, ok = obj[key]
			if !ok {
				return nil
			}
		}
		for _, idx := range indices {
			seq, ok := current.([]any)
			if !ok || idx < 0 || idx >= len(seq) {
				return nil
			}
			current = seq[idx]
		}
	}
	return current
}

// splitIndices separates "items[0][2]" into "items" and [0, 2].
func splitIndices(segment string) (string, []int) {
	open := strings.IndexByte(segment, '[')
	if open < 0 {
		return segment, nil
	}
	key := segment[:open]
	var indices []int
	rest := segment[open:]
	for strings.HasPrefix(rest, "[") {
		close := strings.IndexByte(rest, ']')
		if close < 0 {
			break
		}
		idx, err := strconv.Atoi(rest[1:close])
		if err != nil {
			return key, indices
		}
		indices = append(indices, idx)
		rest = rest[close+1:]
	}
	return key, indices
}
