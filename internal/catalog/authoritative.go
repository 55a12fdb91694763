package catalog

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/dbsmedya/goapidiscovery/internal/encquery"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

var definitionFields = []string{"sys_id", "name", "api_id", "namespace", "base_path", "sys_scope", "version", "active"}

// basePathPattern captures namespace and API from "/api/{ns}/{api}...".
var basePathPattern = regexp.MustCompile(`^/api/([^/]+)(?:/([^/]+))?`)

// definition is a sys_ws_definition row reduced to catalog tokens.
type definition struct {
	sysID     string
	namespace string
	api       string
	version   string
}

// Authoritative resolves tokens from the REST API definition tables
// (sys_ws_definition, sys_scope, sys_ws_version). Definitions are loaded once
// per Authoritative; a failed load is remembered and reported again.
type Authoritative struct {
	client  Client
	logger  *logger.Logger
	loaded  bool
	loadErr error
	defs    []definition
}

// NewAuthoritative creates the metadata-backed strategy.
func NewAuthoritative(client Client, log *logger.Logger) *Authoritative {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Authoritative{client: client, logger: log.WithComponent("catalog.authoritative")}
}

// Name implements Strategy.
func (a *Authoritative) Name() string { return "authoritative" }

// Resolve implements Strategy.
func (a *Authoritative) Resolve(ctx context.Context, kind Kind, q Query) ([]string, error) {
	defs, err := a.definitions(ctx)
	if err != nil {
		return nil, err
	}

	var out []string
	switch kind {
	case KindNamespace:
		for _, d := range defs {
			out = append(out, d.namespace)
		}
	case KindAPI:
		for _, d := range defs {
			if d.namespace == q.Namespace {
				out = append(out, d.api)
			}
		}
	case KindVersion:
		return a.versions(ctx, defs, q)
	}
	return out, nil
}

func (a *Authoritative) versions(ctx context.Context, defs []definition, q Query) ([]string, error) {
	var out []string
	for _, d := range defs {
		if d.namespace != q.Namespace || d.api != q.API {
			continue
		}

		var rows []map[string]interface{}
		if d.sysID != "" {
			var err error
			rows, err = a.client.ListRecords(ctx, "sys_ws_version", restclient.ListOptions{
				Fields: []string{"sys_id", "version", "active"},
				Query:  encquery.New().Eq("web_service", d.sysID).String(),
			})
			if err != nil {
				// Version rows are often ACL-protected; fall back to the definition.
				a.logger.Debugw("Version lookup failed", "definition", d.sysID, "error", err)
				rows = nil
			}
		}

		added := false
		for _, row := range rows {
			if v := types.ToString(row["version"]); v != "" {
				out = append(out, v)
				added = true
			}
		}
		if !added && d.version != "" {
			out = append(out, d.version)
		}
	}
	return out, nil
}

func (a *Authoritative) definitions(ctx context.Context) ([]definition, error) {
	if a.loaded {
		return a.defs, a.loadErr
	}
	a.defs, a.loadErr = a.load(ctx)
	a.loaded = true
	return a.defs, a.loadErr
}

func (a *Authoritative) load(ctx context.Context) ([]definition, error) {
	rows, err := a.client.ListRecords(ctx, "sys_ws_definition", restclient.ListOptions{
		Fields: definitionFields,
		Query:  encquery.New().Eq("active", "true").String(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list REST definitions: %w", err)
	}

	scopes, err := a.resolveScopes(ctx, rows)
	if err != nil {
		a.logger.Debugw("Scope resolution incomplete", "resolved", len(scopes), "error", err)
	}

	defs := make([]definition, 0, len(rows))
	for _, row := range rows {
		d := definition{
			sysID:   types.ToString(row["sys_id"]),
			version: types.ToString(row["version"]),
		}

		basePath := types.ToString(row["base_path"])
		var pathNS, pathAPI string
		if m := basePathPattern.FindStringSubmatch(basePath); m != nil {
			pathNS, pathAPI = m[1], m[2]
		}

		d.namespace = firstNonEmpty(
			types.ToString(row["namespace"]),
			pathNS,
			scopes[types.ToString(row["sys_scope"])],
		)
		d.api = firstNonEmpty(pathAPI, lastSegment(types.ToString(row["api_id"])))

		if d.namespace == "" || d.api == "" {
			continue
		}
		defs = append(defs, d)
	}

	a.logger.Debugw("Loaded REST definitions", "rows", len(rows), "usable", len(defs))
	return defs, nil
}

// resolveScopes maps sys_scope ids to scope names, querying in chunks.
func (a *Authoritative) resolveScopes(ctx context.Context, rows []map[string]interface{}) (map[string]string, error) {
	var ids []string
	seen := make(map[string]bool)
	for _, row := range rows {
		id := types.ToString(row["sys_scope"])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}

	scopes := make(map[string]string, len(ids))
	for _, chunk := range encquery.Chunk(ids, encquery.DefaultChunkSize) {
		scopeRows, err := a.client.ListRecords(ctx, "sys_scope", restclient.ListOptions{
			Fields: []string{"sys_id", "scope", "name"},
			Query:  encquery.New().In("sys_id", chunk).String(),
		})
		if err != nil {
			return scopes, err
		}
		for _, sr := range scopeRows {
			if scope := types.ToString(sr["scope"]); scope != "" {
				scopes[types.ToString(sr["sys_id"])] = scope
			}
		}
	}
	return scopes, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func lastSegment(s string) string {
	s = strings.Trim(s, "/")
	if i := strings.LastIndex(s, "/"); i >= 0 {
		return s[i+1:]
	}
	return s
}
