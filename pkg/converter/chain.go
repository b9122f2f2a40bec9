package converter

import (
	"fmt"
	"strings"
)

// MaxChainLength caps every converter chain. Not overridable: longer chains
// degrade payload intelligibility faster than they add obfuscation.
const MaxChainLength = 3

// Chain is an ordered, validated sequence of converter names.
type Chain struct {
	names []string
}

// NewChain validates names against the registry and returns a chain.
// Rules: at most MaxChainLength converters; every name must resolve;
// a repeated converter must have a non-idempotent converter between the
// repetitions (repeating an idempotent converter back-to-back is a no-op).
func NewChain(reg *Registry, names ...string) (Chain, error) {
	if len(names) > MaxChainLength {
		return Chain{}, fmt.Errorf("chain length %d exceeds maximum %d", len(names), MaxChainLength)
	}
	for _, name := range names {
		if !reg.Has(name) {
			return Chain{}, fmt.Errorf("unknown converter %q in chain", name)
		}
	}
	for i := 0; i < len(names); i++ {
		for j := i + 1; j < len(names); j++ {
			if names[i] != names[j] {
				continue
			}
			separated := false
			for k := i + 1; k < j; k++ {
				if !reg.Idempotent(names[k]) {
					separated = true
					break
				}
			}
			if !separated {
				return Chain{}, fmt.Errorf("duplicate converter %q not separated by a non-idempotent converter", names[i])
			}
		}
	}
	out := make([]string, len(names))
	copy(out, names)
	return Chain{names: out}, nil
}

// Names returns a copy of the chain's converter names.
func (c Chain) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Len returns the number of converters in the chain.
func (c Chain) Len() int { return len(c.names) }

// String renders the chain as "a→b→c" for logging.
func (c Chain) String() string {
	if len(c.names) == 0 {
		return "(identity)"
	}
	return strings.Join(c.names, "→")
}

// ChainsEqual reports whether two chains (as name slices) are identical.
func ChainsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ContainsChain reports whether tried already includes the given chain.
func ContainsChain(tried [][]string, chain []string) bool {
	for _, t := range tried {
		if ChainsEqual(t, chain) {
			return true
		}
	}
	return false
}
