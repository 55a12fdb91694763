// Package discovery enumerates platform tables and their field dictionaries.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/elliotchance/orderedmap/v2"

	"github.com/dbsmedya/goapidiscovery/internal/encquery"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/state"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

const (
	tableRegistry   = "sys_db_object"
	fieldDictionary = "sys_dictionary"

	// dictionaryLimit caps the field rows requested per table.
	dictionaryLimit = 10000

	// metadataConfidence is the confidence of a metadata-only observation.
	metadataConfidence = 0.7
)

var (
	registryFields   = []string{"name", "label", "super_class"}
	dictionaryFields = []string{"element", "column_label", "mandatory", "internal_type", "max_length", "reference", "read_only", "attributes"}
	metadataSources  = []string{"metadata:" + tableRegistry, "metadata:" + fieldDictionary}
)

// Client is the subset of the REST client used for discovery.
type Client interface {
	ListRecords(ctx context.Context, table string, opts restclient.ListOptions) ([]map[string]interface{}, error)
}

// Options controls one discovery run.
type Options struct {
	Allow  []string // empty means every table
	Deny   []string // wins over Allow
	Resume bool     // reuse cached field dictionaries
	Force  bool     // always refetch, overriding Resume
}

// Result summarises a discovery run.
type Result struct {
	Tables       []types.TableInfo        // retained tables in registry order
	Dictionaries map[string][]types.Field // resolved tables only
	Fetched      int                      // dictionary fetches issued
	CacheHits    int                      // dictionaries served from cache
	Failed       []string                 // tables whose dictionary fetch failed
	State        *state.DiscoveryState    // state as saved
	Duration     time.Duration
}

// Discoverer lists tables and resolves their field dictionaries, reading and
// writing through the store.
type Discoverer struct {
	client Client
	store  *state.Store
	logger *logger.Logger
}

// New creates a Discoverer.
func New(client Client, store *state.Store, log *logger.Logger) *Discoverer {
	if log == nil {
		log = logger.NewDefault()
	}
	return &Discoverer{
		client: client,
		store:  store,
		logger: log.WithComponent("discovery").WithScope(store.Scope().String()),
	}
}

// Discover runs table discovery. A table whose dictionary fetch fails is left
// out of Dictionaries, recorded as unknown unless already known, and listed in
// Result.Failed; the run continues. Cache corruption, cache write failures and
// cancellation abort the run without saving state.
func (d *Discoverer) Discover(ctx context.Context, opts Options) (*Result, error) {
	start := time.Now()

	st, err := d.store.Load()
	if err != nil {
		return nil, err
	}

	tables, err := d.enumerateTables(ctx)
	if err != nil {
		return nil, err
	}
	retained := Filter(tables, opts.Allow, opts.Deny)

	d.logger.Infow("Tables enumerated",
		"total", len(tables),
		"retained", len(retained),
		"resume", opts.Resume,
		"force", opts.Force,
	)

	result := &Result{
		Tables:       retained,
		Dictionaries: make(map[string][]types.Field),
		Failed:       []string{},
		State:        st,
	}

	useCache := opts.Resume && !opts.Force
	for _, table := range retained {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("discovery interrupted: %w", err)
		}

		log := d.logger.WithTable(table.Name)

		fields, err := d.resolveFields(ctx, table.Name, useCache, result)
		if err != nil {
			var corrupt *state.CacheCorruptionError
			if errors.As(err, &corrupt) || ctx.Err() != nil || isCacheWrite(err) {
				return nil, err
			}
			log.Warnw("Field dictionary fetch failed", "error", err)
			st.AddUnknown(table.Name)
			result.Failed = append(result.Failed, table.Name)
			continue
		}

		result.Dictionaries[table.Name] = fields
		st.Upsert(state.ResourceRecord{
			Name:     table.Name,
			Kind:     state.KindTable,
			Verified: false,
			Evidence: &state.Evidence{
				Sources:    append([]string(nil), metadataSources...),
				Confidence: metadataConfidence,
			},
			Meta: map[string]interface{}{
				"label":       table.Label,
				"superclass":  table.SuperClass,
				"field_count": len(fields),
			},
		})
	}

	if err := d.store.Save(st); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	d.logger.Infow("Discovery complete",
		"tables", len(result.Dictionaries),
		"fetched", result.Fetched,
		"cache_hits", result.CacheHits,
		"failed", len(result.Failed),
		"duration", result.Duration,
	)
	return result, nil
}

// cacheWriteError marks a failure to persist a fetched dictionary.
type cacheWriteError struct{ err error }

func (e *cacheWriteError) Error() string { return e.err.Error() }
func (e *cacheWriteError) Unwrap() error { return e.err }

func isCacheWrite(err error) bool {
	var cw *cacheWriteError
	return errors.As(err, &cw)
}

func (d *Discoverer) resolveFields(ctx context.Context, table string, useCache bool, result *Result) ([]types.Field, error) {
	if useCache {
		fields, hit, err := d.store.ReadFieldCache(table)
		if err != nil {
			return nil, err
		}
		if hit {
			result.CacheHits++
			return fields, nil
		}
	}

	result.Fetched++
	fields, err := d.fetchDictionary(ctx, table)
	if err != nil {
		return nil, err
	}
	if err := d.store.WriteFieldCache(table, fields); err != nil {
		return nil, &cacheWriteError{err: err}
	}
	return fields, nil
}

func (d *Discoverer) enumerateTables(ctx context.Context) ([]types.TableInfo, error) {
	rows, err := d.client.ListRecords(ctx, tableRegistry, restclient.ListOptions{
		Fields:  registryFields,
		OrderBy: "name",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate tables: %w", err)
	}

	// First row per name wins.
	seen := orderedmap.NewOrderedMap[string, types.TableInfo]()
	for _, row := range rows {
		info := types.TableInfoFromRecord(row)
		if info.Name == "" {
			continue
		}
		if !encquery.IsValidName(info.Name) {
			d.logger.Warnw("Skipping table with unsupported name", "table", info.Name)
			continue
		}
		if _, dup := seen.Get(info.Name); dup {
			d.logger.Debugw("Skipping repeated registry row", "table", info.Name)
			continue
		}
		seen.Set(info.Name, info)
	}

	tables := make([]types.TableInfo, 0, seen.Len())
	for el := seen.Front(); el != nil; el = el.Next() {
		tables = append(tables, el.Value)
	}
	return tables, nil
}

func (d *Discoverer) fetchDictionary(ctx context.Context, table string) ([]types.Field, error) {
	rows, err := d.client.ListRecords(ctx, fieldDictionary, restclient.ListOptions{
		Fields:     dictionaryFields,
		Query:      encquery.New().Eq("name", table).IsNotEmpty("internal_type").String(),
		PageSize:   dictionaryLimit,
		MaxRecords: dictionaryLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch dictionary for %s: %w", table, err)
	}

	fields := make([]types.Field, 0, len(rows))
	for _, row := range rows {
		f := types.FieldFromRecord(row)
		if f.Element == "" {
			continue
		}
		fields = append(fields, f)
	}
	return fields, nil
}

// Filter applies the allowlist, then the denylist. An empty allowlist admits
// every table; the denylist always wins.
func Filter(tables []types.TableInfo, allow, deny []string) []types.TableInfo {
	allowed := toSet(allow)
	denied := toSet(deny)

	out := make([]types.TableInfo, 0, len(tables))
	for _, t := range tables {
		if len(allowed) > 0 && !allowed[t.Name] {
			continue
		}
		if denied[t.Name] {
			continue
		}
		out = append(out, t)
	}
	return out
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}
