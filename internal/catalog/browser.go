package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/afero"
)

// browserCatalog is the JSON document written by the browser enumeration
// collaborator. Versions are keyed by "namespace/api".
type browserCatalog struct {
	Namespaces []string            `json:"namespaces"`
	APIs       map[string][]string `json:"apis"`
	Versions   map[string][]string `json:"versions"`
}

// BrowserFile serves tokens from a browser-collaborator output file. The
// file is read on first use.
type BrowserFile struct {
	fs      afero.Fs
	path    string
	loaded  bool
	loadErr error
	data    browserCatalog
}

// NewBrowserFile creates the strategy for the file at path.
func NewBrowserFile(fs afero.Fs, path string) *BrowserFile {
	return &BrowserFile{fs: fs, path: path}
}

// Name implements Strategy.
func (b *BrowserFile) Name() string { return "browser" }

// Resolve implements Strategy.
func (b *BrowserFile) Resolve(_ context.Context, kind Kind, q Query) ([]string, error) {
	if err := b.load(); err != nil {
		return nil, err
	}

	switch kind {
	case KindNamespace:
		return b.data.Namespaces, nil
	case KindAPI:
		return b.data.APIs[q.Namespace], nil
	case KindVersion:
		return b.data.Versions[q.Namespace+"/"+q.API], nil
	}
	return nil, nil
}

func (b *BrowserFile) load() error {
	if b.loaded {
		return b.loadErr
	}
	b.loaded = true

	raw, err := afero.ReadFile(b.fs, b.path)
	if err != nil {
		b.loadErr = fmt.Errorf("failed to read browser catalog: %w", err)
		return b.loadErr
	}
	if err := json.Unmarshal(raw, &b.data); err != nil {
		b.loadErr = fmt.Errorf("failed to parse browser catalog %s: %w", b.path, err)
		return b.loadErr
	}
	return nil
}
