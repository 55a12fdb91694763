package catalog

import (
	"strings"

	"github.com/elliotchance/orderedmap/v2"
)

// dedupe trims tokens and drops empty and repeated ones. Matching is
// case-sensitive and the first occurrence keeps its position.
func dedupe(tokens []string) []string {
	seen := orderedmap.NewOrderedMap[string, struct{}]()
	for _, t := range tokens {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		seen.Set(t, struct{}{})
	}

	out := make([]string, 0, seen.Len())
	for el := seen.Front(); el != nil; el = el.Next() {
		out = append(out, el.Key)
	}
	return out
}
