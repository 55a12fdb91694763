package verifier

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/state"
)

const (
	// RuntimeSource is the evidence source recorded by a successful probe.
	RuntimeSource = "runtime:table_api_get"

	// runtimeConfidence replaces the metadata confidence once a probe succeeds.
	runtimeConfidence = 0.9
)

// Getter is the subset of the REST client used for probing.
type Getter interface {
	Get(ctx context.Context, path string, params url.Values) (*restclient.Response, error)
}

// ProbeResult holds the outcome for a single table.
type ProbeResult struct {
	Table    string
	OK       bool
	Detail   string
	Duration time.Duration
}

// ProbeStats contains overall probe statistics.
type ProbeStats struct {
	TablesProbed int
	TablesPassed int
	TablesFailed int
}

// Prober issues one minimal read per table.
type Prober struct {
	client Getter
	logger *logger.Logger
}

// NewProber creates a Prober.
func NewProber(client Getter, log *logger.Logger) (*Prober, error) {
	if client == nil {
		return nil, fmt.Errorf("client is nil")
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Prober{client: client, logger: log.WithComponent("probe")}, nil
}

// Probe reads one record from each table. A failed table does not stop the
// run; only cancellation does, returning the results gathered so far.
func (p *Prober) Probe(ctx context.Context, tables []string) ([]ProbeResult, ProbeStats, error) {
	results := make([]ProbeResult, 0, len(tables))
	var stats ProbeStats

	p.logger.Infof("Starting runtime probe for %d tables", len(tables))

	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return results, stats, fmt.Errorf("probe interrupted: %w", err)
		}

		start := time.Now()
		_, err := p.client.Get(ctx, restclient.TablePath(table), url.Values{"sysparm_limit": {"1"}})
		result := ProbeResult{Table: table, OK: err == nil, Duration: time.Since(start)}

		stats.TablesProbed++
		if err != nil {
			if ctx.Err() != nil {
				return results, stats, fmt.Errorf("probe interrupted: %w", ctx.Err())
			}
			result.Detail = err.Error()
			stats.TablesFailed++
			p.logger.Warnf("Probe FAILED for table %q: %s", table, result.Detail)
		} else {
			result.Detail = "GET ok"
			stats.TablesPassed++
			p.logger.Debugf("Probe PASSED for table %q", table)
		}
		results = append(results, result)
	}

	p.logger.Infof("Probe complete: %d tables probed, %d passed, %d failed",
		stats.TablesProbed, stats.TablesPassed, stats.TablesFailed)

	return results, stats, nil
}

// ApplyProbeResults marks successfully probed known tables as verified and
// adds the runtime evidence source. It returns how many records changed.
// Tables that are not known are left alone.
func ApplyProbeResults(st *state.DiscoveryState, results []ProbeResult) int {
	changed := 0
	for _, r := range results {
		if !r.OK {
			continue
		}
		rec, ok := st.Known[r.Table]
		if !ok {
			continue
		}

		var sources []string
		if rec.Evidence != nil {
			sources = append(sources, rec.Evidence.Sources...)
		}
		if !contains(sources, RuntimeSource) {
			sources = append(sources, RuntimeSource)
		}

		if st.SetVerified(r.Table, &state.Evidence{Sources: sources, Confidence: runtimeConfidence}) {
			changed++
		}
	}
	return changed
}

func contains(items []string, want string) bool {
	for _, item := range items {
		if item == want {
			return true
		}
	}
	return false
}
