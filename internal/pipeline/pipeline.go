// Package pipeline coordinates discovery runs: table discovery, spec
// synthesis and validation, catalog crawling and runtime probing. Each
// operation takes the per-state-directory lock before writing.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/dbsmedya/goapidiscovery/internal/catalog"
	"github.com/dbsmedya/goapidiscovery/internal/config"
	"github.com/dbsmedya/goapidiscovery/internal/discovery"
	"github.com/dbsmedya/goapidiscovery/internal/lock"
	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/state"
	"github.com/dbsmedya/goapidiscovery/internal/synthesis"
	"github.com/dbsmedya/goapidiscovery/internal/types"
	"github.com/dbsmedya/goapidiscovery/internal/verifier"
)

// SpecFileName is the file name of a synthesized document.
const SpecFileName = "servicenow_generated.json"

// DefaultMaxSpecs bounds how many catalog entries a crawl synthesizes.
const DefaultMaxSpecs = 200

// Client is what a pipeline needs from the REST client.
type Client interface {
	catalog.Client
}

// Pipeline runs operations against one configured instance.
type Pipeline struct {
	config *config.Config
	fs     afero.Fs
	client Client
	logger *logger.Logger
}

// New creates a pipeline. fs holds state and spec output. client may be nil
// for offline operations (Status, ValidateSpec); the others then fail.
func New(cfg *config.Config, fs afero.Fs, client Client, log *logger.Logger) (*Pipeline, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if fs == nil {
		return nil, fmt.Errorf("filesystem is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Pipeline{config: cfg, fs: fs, client: client, logger: log}, nil
}

// Target narrows a run to one namespace/API/version scope. The zero value
// is the platform-wide scope.
type Target struct {
	Namespace string
	API       string
	Version   string
}

// RunResult summarises a discover → synthesize → validate run.
type RunResult struct {
	Scope       state.Scope
	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
	Discovery   *discovery.Result
	SpecPath    string
	Valid       bool
	Message     string
}

// CrawlResult summarises a catalog crawl.
type CrawlResult struct {
	Entries     []types.CatalogEntry
	CatalogPath string
	Generated   []string          // spec paths that validated
	Invalid     map[string]string // scope label → validation message
	Skipped     int               // entries that are not table APIs
	Failed      map[string]string // scope label → error
	Duration    time.Duration
}

// StatusReport describes the persisted state of one scope.
type StatusReport struct {
	Scope        state.Scope
	StatePath    string
	Known        int
	Verified     int
	Unknown      int
	CachedTables int
	Records      []state.ResourceRecord // sorted by name
	UnknownNames []string
}

// ProbeReport summarises a runtime probe.
type ProbeReport struct {
	Tables   []string
	Results  []verifier.ProbeResult
	Stats    verifier.ProbeStats
	Verified int
}

func (p *Pipeline) scope(t Target) state.Scope {
	return state.Scope{
		Platform:  strings.ToLower(p.config.Platform),
		Namespace: t.Namespace,
		API:       t.API,
		Version:   t.Version,
	}
}

func (p *Pipeline) store(t Target) *state.Store {
	return state.NewStore(p.fs, p.config.Run.StateDir, p.scope(t), p.logger)
}

func (p *Pipeline) discoveryOptions() discovery.Options {
	return discovery.Options{
		Allow:  p.config.Filters.Allowlist,
		Deny:   p.config.Filters.Denylist,
		Resume: p.config.Run.Resume,
		Force:  p.config.Run.Force,
	}
}

// errNoClient is returned by operations that contact the instance when the
// pipeline was built without a client.
var errNoClient = errors.New("pipeline has no client")

// withLock runs fn while holding the lock for the platform state directory.
func (p *Pipeline) withLock(ctx context.Context, fn func() error) error {
	platform := strings.ToLower(p.config.Platform)
	path := filepath.Join(p.config.Run.StateDir, platform, lock.LockFileName(platform))
	l := lock.NewFileLock(p.fs, path)

	if p.client == nil {
		return errNoClient
	}

	if err := l.AcquireOrFail(ctx); err != nil {
		return err
	}
	defer func() {
		if _, err := l.ReleaseLock(); err != nil {
			p.logger.Warnf("Failed to release lock %s: %v", path, err)
		}
	}()

	return fn()
}

// Discover runs table discovery for t and saves the state.
func (p *Pipeline) Discover(ctx context.Context, t Target) (*discovery.Result, error) {
	var result *discovery.Result
	err := p.withLock(ctx, func() error {
		var err error
		result, err = p.discover(ctx, t)
		return err
	})
	return result, err
}

func (p *Pipeline) discover(ctx context.Context, t Target) (*discovery.Result, error) {
	store := p.store(t)
	if p.config.Run.Resume && !p.config.Run.Force {
		cached, err := store.ListCachedTables()
		if err != nil {
			return nil, err
		}
		if len(cached) == 0 {
			p.logger.Infof("No cached dictionaries found in %s, fetching fresh", store.Dir())
		}
	}
	return discovery.New(p.client, store, p.logger).Discover(ctx, p.discoveryOptions())
}

// Run discovers tables for t, writes the synthesized document under the
// specs directory and validates it. A document that fails validation is
// still written; the result reports Valid=false with the message.
func (p *Pipeline) Run(ctx context.Context, t Target) (*RunResult, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is nil")
	}

	result := &RunResult{Scope: p.scope(t), StartedAt: time.Now()}

	p.logger.Infow("Starting discovery run",
		"scope", result.Scope.String(),
		"resume", p.config.Run.Resume,
		"force", p.config.Run.Force,
	)

	err := p.withLock(ctx, func() error {
		disc, err := p.discover(ctx, t)
		if err != nil {
			return fmt.Errorf("discovery failed: %w", err)
		}
		result.Discovery = disc

		path, err := p.synthesize(disc.Dictionaries, t)
		if err != nil {
			return err
		}
		result.SpecPath = path
		result.Valid, result.Message = verifier.ValidateSpec(p.fs, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.CompletedAt = time.Now()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)

	if result.Valid {
		p.logger.Infow("Discovery run completed",
			"scope", result.Scope.String(),
			"tables", len(result.Discovery.Dictionaries),
			"spec", result.SpecPath,
			"duration", result.Duration,
		)
	} else {
		p.logger.Errorw("Synthesized spec failed validation",
			"spec", result.SpecPath,
			"message", result.Message,
		)
	}
	return result, nil
}

func (p *Pipeline) synthesize(dicts map[string][]types.Field, t Target) (string, error) {
	path, err := synthesis.Synthesize(p.fs, dicts,
		synthesis.Options{BaseURL: p.config.Instance.BaseURL},
		synthesis.Target{
			Out:       filepath.Join(p.config.Run.SpecsDir, SpecFileName),
			Namespace: t.Namespace,
			API:       t.API,
			Version:   t.Version,
		})
	if err != nil {
		return "", fmt.Errorf("synthesis failed: %w", err)
	}
	return path, nil
}

// ValidateSpec validates the document at path on the pipeline filesystem.
func (p *Pipeline) ValidateSpec(path string) (bool, string) {
	return verifier.ValidateSpec(p.fs, path)
}

// Crawl enumerates the catalog through resolver, saves the catalog index and
// synthesizes a document for each table API entry, up to maxSpecs validated
// documents. Each entry is discovered under its own scope so caches do not
// collide. An entry that fails is recorded and the crawl continues; context
// cancellation and lock contention stop it.
func (p *Pipeline) Crawl(ctx context.Context, resolver *catalog.Resolver, maxSpecs int) (*CrawlResult, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is nil")
	}
	if maxSpecs <= 0 {
		maxSpecs = DefaultMaxSpecs
	}

	start := time.Now()
	result := &CrawlResult{
		Invalid: make(map[string]string),
		Failed:  make(map[string]string),
	}

	err := p.withLock(ctx, func() error {
		entries, err := resolver.Crawl(ctx)
		if err != nil {
			return fmt.Errorf("catalog crawl failed: %w", err)
		}
		result.Entries = entries

		index := p.store(Target{})
		if err := index.SaveCatalog(entries); err != nil {
			return err
		}
		result.CatalogPath = index.CatalogPath()
		p.logger.Infof("Catalog entries: %d", len(entries))

		for _, e := range entries {
			if len(result.Generated) >= maxSpecs {
				p.logger.Infof("Reached max specs (%d), stopping", maxSpecs)
				break
			}
			if !isTableAPI(e.API) {
				result.Skipped++
				continue
			}
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("crawl interrupted: %w", err)
			}

			t := Target{Namespace: e.Namespace, API: e.API, Version: e.Version}
			label := e.Path()
			log := p.logger.WithTarget(e)

			disc, err := p.discover(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					return fmt.Errorf("crawl interrupted: %w", ctx.Err())
				}
				log.Warnw("Discovery failed", "error", err)
				result.Failed[label] = err.Error()
				continue
			}

			path, err := p.synthesize(disc.Dictionaries, t)
			if err != nil {
				result.Failed[label] = err.Error()
				continue
			}
			if ok, msg := verifier.ValidateSpec(p.fs, path); ok {
				log.Infow("Generated spec", "path", path)
				result.Generated = append(result.Generated, path)
			} else {
				log.Warnw("Spec validation failed", "message", msg)
				result.Invalid[label] = msg
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	return result, nil
}

// isTableAPI reports whether an API name is served by the table API, the
// only kind synthesized from dictionary metadata.
func isTableAPI(api string) bool {
	return strings.HasPrefix(strings.ToLower(api), catalog.DefaultAPI)
}

// Status loads the persisted state of t without contacting the instance.
func (p *Pipeline) Status(t Target) (*StatusReport, error) {
	store := p.store(t)
	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	cached, err := store.ListCachedTables()
	if err != nil {
		return nil, err
	}

	report := &StatusReport{
		Scope:        store.Scope(),
		StatePath:    store.StatePath(),
		CachedTables: len(cached),
		UnknownNames: append([]string(nil), st.Unknown...),
	}
	report.Known, report.Verified, report.Unknown = st.Counts()
	for _, name := range st.KnownNames() {
		report.Records = append(report.Records, st.Known[name])
	}
	return report, nil
}

// Probe issues one read per known table of t (falling back to cached
// tables when nothing is known yet), marks successes verified and saves
// the state.
func (p *Pipeline) Probe(ctx context.Context, t Target) (*ProbeReport, error) {
	if p.client == nil {
		return nil, errNoClient
	}
	prober, err := verifier.NewProber(p.client, p.logger)
	if err != nil {
		return nil, err
	}

	report := &ProbeReport{}
	err = p.withLock(ctx, func() error {
		store := p.store(t)
		st, err := store.Load()
		if err != nil {
			return err
		}

		tables := st.KnownNames()
		if len(tables) == 0 {
			if tables, err = store.ListCachedTables(); err != nil {
				return err
			}
		}
		report.Tables = tables

		results, stats, err := prober.Probe(ctx, tables)
		report.Results, report.Stats = results, stats
		if err != nil {
			return err
		}

		report.Verified = verifier.ApplyProbeResults(st, results)
		return store.Save(st)
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
