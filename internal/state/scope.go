package state

import (
	"path/filepath"
	"strings"
)

// Scope identifies where state lives: platform, then optionally namespace,
// API and version. Segments after the first empty one are ignored.
type Scope struct {
	Platform  string
	Namespace string
	API       string
	Version   string
}

func (s Scope) segments() []string {
	segs := []string{s.Platform}
	for _, seg := range []string{s.Namespace, s.API, s.Version} {
		if seg == "" {
			break
		}
		segs = append(segs, seg)
	}
	return segs
}

// Dir returns the scope directory under root.
func (s Scope) Dir(root string) string {
	return filepath.Join(append([]string{root}, s.segments()...)...)
}

// String renders the scope as "platform[/ns[/api[/ver]]]".
func (s Scope) String() string {
	return strings.Join(s.segments(), "/")
}
