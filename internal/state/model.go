// Package state persists discovery progress: the per-scope DiscoveryState,
// the per-table field-dictionary cache and the catalog index.
package state

import (
	"sort"
)

// GeneratorVersion is recorded in every state file.
const GeneratorVersion = "0.1.0"

// Kind classifies a discovered resource.
type Kind string

const (
	KindTable    Kind = "table"
	KindEndpoint Kind = "endpoint"
)

// Evidence records where a resource was observed and how much it is trusted.
type Evidence struct {
	Sources    []string `json:"sources"`
	Confidence float64  `json:"confidence"`
}

// ResourceRecord is one discovered resource.
type ResourceRecord struct {
	Name     string                 `json:"name"`
	Kind     Kind                   `json:"kind"`
	Verified bool                   `json:"verified"`
	Evidence *Evidence              `json:"evidence"`
	Meta     map[string]interface{} `json:"meta"`
}

// DiscoveryState is the persisted progress of one scope. A name is never in
// both Known and Unknown.
type DiscoveryState struct {
	Known            map[string]ResourceRecord `json:"known"`
	Unknown          []string                  `json:"unknown"`
	Platform         string                    `json:"platform"`
	GeneratorVersion string                    `json:"generator_version"`
}

// NewDiscoveryState returns an empty state for platform.
func NewDiscoveryState(platform string) *DiscoveryState {
	return &DiscoveryState{
		Known:            make(map[string]ResourceRecord),
		Unknown:          []string{},
		Platform:         platform,
		GeneratorVersion: GeneratorVersion,
	}
}

// Upsert inserts or replaces rec under rec.Name and drops the name from Unknown.
func (s *DiscoveryState) Upsert(rec ResourceRecord) {
	if s.Known == nil {
		s.Known = make(map[string]ResourceRecord)
	}
	if rec.Meta == nil {
		rec.Meta = map[string]interface{}{}
	}
	s.Known[rec.Name] = rec
	s.removeUnknown(rec.Name)
}

// AddUnknown records name as seen-but-unresolved unless it is already known
// or already listed.
func (s *DiscoveryState) AddUnknown(name string) {
	if _, known := s.Known[name]; known {
		return
	}
	for _, u := range s.Unknown {
		if u == name {
			return
		}
	}
	s.Unknown = append(s.Unknown, name)
}

// SetVerified marks a known resource verified and replaces its evidence.
// It reports false when name is not known.
func (s *DiscoveryState) SetVerified(name string, evidence *Evidence) bool {
	rec, ok := s.Known[name]
	if !ok {
		return false
	}
	rec.Verified = true
	if evidence != nil {
		rec.Evidence = evidence
	}
	s.Known[name] = rec
	return true
}

// KnownNames returns the known resource names, sorted.
func (s *DiscoveryState) KnownNames() []string {
	names := make([]string, 0, len(s.Known))
	for name := range s.Known {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Counts returns the number of known, verified and unknown resources.
func (s *DiscoveryState) Counts() (known, verified, unknown int) {
	for _, rec := range s.Known {
		if rec.Verified {
			verified++
		}
	}
	return len(s.Known), verified, len(s.Unknown)
}

func (s *DiscoveryState) removeUnknown(name string) {
	kept := s.Unknown[:0]
	for _, u := range s.Unknown {
		if u != name {
			kept = append(kept, u)
		}
	}
	s.Unknown = kept
}

// normalize fills nil collections after decoding so callers never see nil maps,
// and drops unknown entries that are repeated or already known.
func (s *DiscoveryState) normalize(platform string) {
	if s.Known == nil {
		s.Known = make(map[string]ResourceRecord)
	}
	if s.Unknown == nil {
		s.Unknown = []string{}
	}
	if s.Platform == "" {
		s.Platform = platform
	}
	if s.GeneratorVersion == "" {
		s.GeneratorVersion = GeneratorVersion
	}
	for name, rec := range s.Known {
		if rec.Name == "" {
			rec.Name = name
		}
		if rec.Meta == nil {
			rec.Meta = map[string]interface{}{}
		}
		s.Known[name] = rec
	}

	seen := make(map[string]bool, len(s.Unknown))
	kept := s.Unknown[:0]
	for _, name := range s.Unknown {
		if _, known := s.Known[name]; known || seen[name] {
			continue
		}
		seen[name] = true
		kept = append(kept, name)
	}
	s.Unknown = kept
}
