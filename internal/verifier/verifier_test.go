package verifier

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goapidiscovery/internal/logger"
	"github.com/dbsmedya/goapidiscovery/internal/restclient"
	"github.com/dbsmedya/goapidiscovery/internal/state"
	"github.com/dbsmedya/goapidiscovery/internal/synthesis"
	"github.com/dbsmedya/goapidiscovery/internal/types"
)

// ============================================================================
// Static validation
// ============================================================================

func writeSynthesized(t *testing.T, fs afero.Fs, dicts map[string][]types.Field) string {
	t.Helper()
	path, err := synthesis.Synthesize(fs, dicts, synthesis.Options{BaseURL: "https://x.service-now.com"},
		synthesis.Target{Out: "/specs/openapi.json"})
	require.NoError(t, err)
	return path
}

func TestValidateSpec_SynthesizedDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeSynthesized(t, fs, map[string][]types.Field{
		"incident": {
			{Element: "number", InternalType: "string", Mandatory: true},
			{Element: "opened_at", InternalType: "glide_date_time"},
			{Element: "priority", InternalType: "integer"},
		},
		"sys_user": {
			{Element: "user_name", InternalType: "string", MaxLength: 40},
			{Element: "active", InternalType: "boolean"},
		},
	})

	ok, msg := ValidateSpec(fs, path)
	assert.True(t, ok, msg)
	assert.Equal(t, "ok", msg)
}

func TestValidateSpec_EmptyDocument(t *testing.T) {
	fs := afero.NewMemMapFs()
	path := writeSynthesized(t, fs, map[string][]types.Field{})

	ok, msg := ValidateSpec(fs, path)
	assert.True(t, ok, msg)
}

func TestValidateSpec_Failures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "malformed json", content: `{"openapi": "3.0.3", `},
		{name: "missing info", content: `{"openapi": "3.0.3", "paths": {}}`},
		{name: "missing openapi", content: `{"info": {"title": "t", "version": "1"}, "paths": {}}`},
		{name: "dangling ref", content: `{
  "openapi": "3.0.3",
  "info": {"title": "t", "version": "1"},
  "paths": {
    "/x": {"get": {"responses": {"200": {"description": "ok",
      "content": {"application/json": {"schema": {"$ref": "#/components/schemas/missing"}}}}}}}
  }
}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/spec.json", []byte(tt.content), 0o644))

			ok, msg := ValidateSpec(fs, "/spec.json")
			assert.False(t, ok)
			assert.NotEmpty(t, msg)
			assert.NotEqual(t, "ok", msg)
		})
	}
}

func TestValidateSpec_MissingFile(t *testing.T) {
	ok, msg := ValidateSpec(afero.NewMemMapFs(), "/nope.json")
	assert.False(t, ok)
	assert.NotEmpty(t, msg)
}

// ============================================================================
// Runtime probe
// ============================================================================

type fakeGetter struct {
	mu     sync.Mutex
	paths  []string
	params []url.Values
	fail   map[string]error
}

func (f *fakeGetter) Get(_ context.Context, path string, params url.Values) (*restclient.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.paths = append(f.paths, path)
	f.params = append(f.params, params)
	for table, err := range f.fail {
		if strings.HasSuffix(path, "/"+table) {
			return nil, err
		}
	}
	return &restclient.Response{StatusCode: http.StatusOK, Body: []byte(`{"result":[]}`)}, nil
}

func TestNewProber_NilClient(t *testing.T) {
	_, err := NewProber(nil, logger.NewNop())
	require.Error(t, err)
}

func TestProbe_MixedOutcomes(t *testing.T) {
	client := &fakeGetter{fail: map[string]error{
		"secret_table": &restclient.AuthError{Method: "GET", URL: "u", StatusCode: 403},
	}}
	p, err := NewProber(client, logger.NewNop())
	require.NoError(t, err)

	results, stats, err := p.Probe(context.Background(), []string{"incident", "secret_table"})
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, "incident", results[0].Table)
	assert.True(t, results[0].OK)
	assert.Equal(t, "GET ok", results[0].Detail)
	assert.Equal(t, "secret_table", results[1].Table)
	assert.False(t, results[1].OK)
	assert.Contains(t, results[1].Detail, "403")

	assert.Equal(t, ProbeStats{TablesProbed: 2, TablesPassed: 1, TablesFailed: 1}, stats)

	assert.Equal(t, []string{"/api/now/table/incident", "/api/now/table/secret_table"}, client.paths)
	assert.Equal(t, "1", client.params[0].Get("sysparm_limit"))
}

func TestProbe_Cancelled(t *testing.T) {
	client := &fakeGetter{}
	p, err := NewProber(client, logger.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, _, err := p.Probe(ctx, []string{"incident"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Empty(t, results)
	assert.Empty(t, client.paths)
}

func TestProbe_AgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/now/table/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":[{"sys_id":"1"}]}`))
	}))
	defer srv.Close()

	client, err := restclient.New(restclient.Options{
		BaseURL:            srv.URL,
		Username:           "admin",
		Password:           "pw",
		RateLimitPerSecond: 1000,
	}, logger.NewNop())
	require.NoError(t, err)

	p, err := NewProber(client, logger.NewNop())
	require.NoError(t, err)

	results, stats, err := p.Probe(context.Background(), []string{"incident", "missing"})
	require.NoError(t, err)
	assert.True(t, results[0].OK)
	assert.False(t, results[1].OK)
	assert.Equal(t, 1, stats.TablesFailed)
}

// ============================================================================
// Applying results
// ============================================================================

func TestApplyProbeResults(t *testing.T) {
	st := state.NewDiscoveryState("servicenow")
	st.Upsert(state.ResourceRecord{
		Name: "incident",
		Kind: state.KindTable,
		Evidence: &state.Evidence{
			Sources:    []string{"metadata:sys_db_object", "metadata:sys_dictionary"},
			Confidence: 0.7,
		},
	})
	st.Upsert(state.ResourceRecord{Name: "problem", Kind: state.KindTable})

	changed := ApplyProbeResults(st, []ProbeResult{
		{Table: "incident", OK: true},
		{Table: "problem", OK: false},
		{Table: "not_known", OK: true},
	})
	assert.Equal(t, 1, changed)

	inc := st.Known["incident"]
	assert.True(t, inc.Verified)
	assert.Equal(t, []string{"metadata:sys_db_object", "metadata:sys_dictionary", RuntimeSource}, inc.Evidence.Sources)
	assert.Equal(t, 0.9, inc.Evidence.Confidence)

	assert.False(t, st.Known["problem"].Verified)
	_, ok := st.Known["not_known"]
	assert.False(t, ok)
}

func TestApplyProbeResults_Idempotent(t *testing.T) {
	st := state.NewDiscoveryState("servicenow")
	st.Upsert(state.ResourceRecord{Name: "incident", Kind: state.KindTable})

	results := []ProbeResult{{Table: "incident", OK: true}}
	ApplyProbeResults(st, results)
	ApplyProbeResults(st, results)

	assert.Equal(t, []string{RuntimeSource}, st.Known["incident"].Evidence.Sources)
}
