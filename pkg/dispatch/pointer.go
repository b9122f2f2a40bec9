package dispatch

import (
	"fmt"
	"strconv"
	"strings"
)

// resolvePointer walks an RFC 6901 JSON pointer through a decoded JSON
// document. Only the subset needed for response extraction is supported:
// object member access and array index access, with ~0/~1 escapes.
func resolvePointer(doc any, pointer string) (any, error) {
	if pointer == "" {
		return doc, nil
	}
	if !strings.HasPrefix(pointer, "/") {
		return nil, fmt.Errorf("invalid JSON pointer %q: must start with /", pointer)
	}

	current := doc
	for _, token := range strings.Split(pointer[1:], "/") {
		token = strings.ReplaceAll(token, "~1", "/")
		token = strings.ReplaceAll(token, "~0", "~")

		switch node := current.(type) {
		case map[string]any:
			value, ok := node[token]
			if !ok {
				return nil, fmt.Errorf("JSON pointer %q: member %q not found", pointer, token)
			}
			current = value
		case []any:
			idx, err := strconv.Atoi(token)
			if err != nil || idx < 0 || idx >= len(node) {
				return nil, fmt.Errorf("JSON pointer %q: invalid array index %q", pointer, token)
			}
			current = node[idx]
		default:
			return nil, fmt.Errorf("JSON pointer %q: cannot descend into %T at %q", pointer, current, token)
		}
	}
	return current, nil
}
