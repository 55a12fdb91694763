// Package catalog enumerates REST namespaces, APIs and versions through an
// ordered chain of strategies.
package catalog

import (
	"context"
	"net/url"

	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

// Kind is the catalog level being enumerated.
type Kind string

const (
	KindNamespace Kind = "namespace"
	KindAPI       Kind = "api"
	KindVersion   Kind = "version"
)

const (
	// DefaultNamespace is always part of the namespace list.
	DefaultNamespace = "now"
	DefaultAPI       = "table"
	DefaultVersion   = "v1"
)

// Query narrows an enumeration: Namespace for APIs, Namespace and API for
// versions.
type Query struct {
	Namespace string
	API       string
}

// Strategy is one source of catalog tokens. An empty result defers to the
// next strategy in the chain.
type Strategy interface {
	Name() string
	Resolve(ctx context.Context, kind Kind, q Query) ([]string, error)
}

// Client is the subset of the REST client used by the strategies.
type Client interface {
	ListRecords(ctx context.Context, table string, opts restclient.ListOptions) ([]map[string]interface{}, error)
	Get(ctx context.Context, path string, params url.Values) (*restclient.Response, error)
}

// Resolver walks its strategies in order; the first non-empty answer wins.
// Strategy errors are logged and treated as empty.
type Resolver struct {
	strategies []Strategy
	logger     *logger.Logger
}

// NewResolver creates a Resolver over strategies, in priority order.
func NewResolver(log *logger.Logger, strategies ...Strategy) *Resolver {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Resolver{
		strategies: strategies,
		logger:     log.WithComponent("catalog"),
	}
}

// NewDefaultResolver wires the standard chain: authoritative metadata, the
// optional browser output file, the explorer page scrape and the defaults.
func NewDefaultResolver(client Client, browser *BrowserFile, log *logger.Logger) *Resolver {
	strategies := []Strategy{NewAuthoritative(client, log)}
	if browser != nil {
		strategies = append(strategies, browser)
	}
	strategies = append(strategies, NewScraper(client, log), Defaults{})
	return NewResolver(log, strategies...)
}

// Namespaces lists namespaces. DefaultNamespace is always included.
func (r *Resolver) Namespaces(ctx context.Context) []string {
	found := r.resolve(ctx, KindNamespace, Query{})
	return dedupe(append(found, DefaultNamespace))
}

// APIs lists the APIs of a namespace.
func (r *Resolver) APIs(ctx context.Context, namespace string) []string {
	return r.resolve(ctx, KindAPI, Query{Namespace: namespace})
}

// Versions lists the versions of an API.
func (r *Resolver) Versions(ctx context.Context, namespace, api string) []string {
	return r.resolve(ctx, KindVersion, Query{Namespace: namespace, API: api})
}

// Crawl enumerates every namespace, API and version, in first-seen order
// without duplicates. It stops early when ctx is cancelled.
func (r *Resolver) Crawl(ctx context.Context) ([]types.CatalogEntry, error) {
	seen := make(map[types.CatalogEntry]bool)
	entries := []types.CatalogEntry{}

	for _, ns := range r.Namespaces(ctx) {
		for _, api := range r.APIs(ctx, ns) {
			if err := ctx.Err(); err != nil {
				return entries, err
			}
			for _, ver := range r.Versions(ctx, ns, api) {
				e := types.CatalogEntry{Namespace: ns, API: api, Version: ver}
				if seen[e] {
					continue
				}
				seen[e] = true
				entries = append(entries, e)
			}
		}
	}

	r.logger.Infow("Catalog crawl complete", "entries", len(entries))
	return entries, nil
}

func (r *Resolver) resolve(ctx context.Context, kind Kind, q Query) []string {
	for _, s := range r.strategies {
		tokens, err := s.Resolve(ctx, kind, q)
		if err != nil {
			r.logger.Warnw("Catalog strategy failed",
				"strategy", s.Name(),
				"kind", kind,
				"namespace", q.Namespace,
				"api", q.API,
				"error", err,
			)
			continue
		}
		if tokens = dedupe(tokens); len(tokens) > 0 {
			r.logger.Debugw("Catalog resolved",
				"strategy", s.Name(),
				"kind", kind,
				"namespace", q.Namespace,
				"api", q.API,
				"count", len(tokens),
			)
			return tokens
		}
	}
	return []string{}
}

// Defaults answers every query with the platform default token.
type Defaults struct{}

// Name implements Strategy.
func (Defaults) Name() string { return "default" }

// Resolve implements Strategy.
func (Defaults) Resolve(_ context.Context, kind Kind, _ Query) ([]string, error) {
	switch kind {
	case KindNamespace:
		return []string{DefaultNamespace}, nil
	case KindAPI:
		return []string{DefaultAPI}, nil
	case KindVersion:
		return []string{DefaultVersion}, nil
	}
	return nil, nil
}
