package synthesis

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbsmedya/goapidiscovery/internal/types"
)

func incidentDictionaries() map[string][]types.Field {
	return map[string][]types.Field{
		"incident": {
			{Element: "short_description", Mandatory: true, InternalType: "string"},
		},
	}
}

func TestBuild_IncidentExample(t *testing.T) {
	doc := Build(incidentDictionaries(), Options{BaseURL: "https://dev.example.com"})

	schema, ok := doc.Components.Schemas["ServiceNow_incident"]
	require.True(t, ok)
	assert.Equal(t, "object", schema.Type)
	require.Contains(t, schema.Properties, "short_description")
	assert.Equal(t, "string", schema.Properties["short_description"].Type)
	assert.Equal(t, []string{"short_description"}, schema.Required)

	collection, ok := doc.Paths["/api/now/table/incident"]
	require.True(t, ok)
	assert.NotNil(t, collection.Get)
	assert.NotNil(t, collection.Post)
	assert.Nil(t, collection.Patch)
	assert.Nil(t, collection.Delete)

	item, ok := doc.Paths["/api/now/table/incident/{sys_id}"]
	require.True(t, ok)
	assert.NotNil(t, item.Get)
	assert.NotNil(t, item.Patch)
	assert.NotNil(t, item.Delete)
	assert.Nil(t, item.Post)

	assert.Len(t, doc.Paths, 2)
	assert.Len(t, doc.Components.Schemas, 1)
}

func TestBuild_DocumentFrame(t *testing.T) {
	doc := Build(incidentDictionaries(), Options{BaseURL: "https://dev.example.com/"})

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Equal(t, "ServiceNow Generated API", doc.Info.Title)
	assert.Equal(t, "0.1.0", doc.Info.Version)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "{server_url}", doc.Servers[0].URL)
	assert.Equal(t, "https://dev.example.com", doc.Servers[0].Variables["server_url"].Default)
	assert.Equal(t, Generator{Name: "api-discovery", Version: "0.1.0"}, doc.Generator)

	assert.Equal(t, "http", doc.Components.SecuritySchemes["basic"].Type)
	assert.Equal(t, "basic", doc.Components.SecuritySchemes["basic"].Scheme)
	oauth := doc.Components.SecuritySchemes["oauth2"]
	require.NotNil(t, oauth.Flows)
	require.NotNil(t, oauth.Flows.ClientCredentials)
	assert.Equal(t, "https://dev.example.com/oauth_token.do", oauth.Flows.ClientCredentials.TokenURL)

	assert.Equal(t, []SecurityRequirement{{"basic": []string{}}}, doc.Security)
	assert.Equal(t, []SecurityRequirement{{"basic": []string{}}, {"oauth2": []string{}}}, doc.Paths["/api/now/table/incident"].Get.Security)
}

func TestBuild_CustomInfo(t *testing.T) {
	doc := Build(nil, Options{BaseURL: "https://x", Title: "Custom", Version: "2.0.0"})

	assert.Equal(t, "Custom", doc.Info.Title)
	assert.Equal(t, "2.0.0", doc.Info.Version)
	assert.Empty(t, doc.Paths)
	assert.Empty(t, doc.Components.Schemas)
}

func TestBuild_RequiredOmittedWhenEmpty(t *testing.T) {
	doc := Build(map[string][]types.Field{
		"problem": {{Element: "number", InternalType: "string"}},
	}, Options{BaseURL: "https://x"})

	assert.Nil(t, doc.Components.Schemas["ServiceNow_problem"].Required)

	data, err := Marshal(doc)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"required": [`)
}

func TestBuild_SkipsFieldsWithoutElement(t *testing.T) {
	doc := Build(map[string][]types.Field{
		"task": {
			{Element: "", Mandatory: true, InternalType: "string"},
			{Element: "number", InternalType: "string"},
		},
	}, Options{BaseURL: "https://x"})

	schema := doc.Components.Schemas["ServiceNow_task"]
	assert.Len(t, schema.Properties, 1)
	assert.Nil(t, schema.Required)
}

func TestBuild_RepeatedElementRequiredOnce(t *testing.T) {
	doc := Build(map[string][]types.Field{
		"incident": {
			{Element: "number", Mandatory: true, InternalType: "string"},
			{Element: "state", InternalType: "integer"},
			{Element: "number", Mandatory: true, InternalType: "string", MaxLength: 40},
		},
	}, Options{BaseURL: "https://x"})

	schema := doc.Components.Schemas["ServiceNow_incident"]
	assert.Equal(t, []string{"number"}, schema.Required)
	assert.Len(t, schema.Properties, 2)
}

func TestBuild_EmptyFieldList(t *testing.T) {
	doc := Build(map[string][]types.Field{"empty_table": {}}, Options{BaseURL: "https://x"})

	schema, ok := doc.Components.Schemas["ServiceNow_empty_table"]
	require.True(t, ok)
	assert.Equal(t, "object", schema.Type)
	assert.Empty(t, schema.Properties)
	assert.Contains(t, doc.Paths, "/api/now/table/empty_table")
}

func TestFieldSchema_TypeMapping(t *testing.T) {
	tests := []struct {
		internalType string
		typ          string
		format       string
	}{
		{"string", "string", ""},
		{"integer", "integer", ""},
		{"longint", "integer", "int64"},
		{"float", "number", ""},
		{"decimal", "number", "double"},
		{"currency", "number", "double"},
		{"price", "number", "double"},
		{"boolean", "boolean", ""},
		{"date", "string", "date"},
		{"glide_date", "string", "date"},
		{"datetime", "string", "date-time"},
		{"glide_date_time", "string", "date-time"},
		{"reference", "string", ""},
		{"journal", "string", ""},
		{"html", "string", ""},
		{"GUID", "string", ""},
		{"some_vendor_type", "string", ""},
		{"", "string", ""},
	}

	for _, tt := range tests {
		t.Run(tt.internalType, func(t *testing.T) {
			s := fieldSchema(types.Field{Element: "f", InternalType: tt.internalType})
			assert.Equal(t, tt.typ, s.Type)
			assert.Equal(t, tt.format, s.Format)
		})
	}
}

func TestFieldSchema_Annotations(t *testing.T) {
	s := fieldSchema(types.Field{Element: "number", ColumnLabel: "Number", InternalType: "string", MaxLength: 40, ReadOnly: true})

	assert.Equal(t, "Number", s.Description)
	assert.True(t, s.ReadOnly)
	require.NotNil(t, s.MaxLength)
	assert.Equal(t, 40, *s.MaxLength)

	dated := fieldSchema(types.Field{Element: "opened_at", InternalType: "glide_date_time", MaxLength: 40})
	assert.Nil(t, dated.MaxLength, "maxLength only for plain strings")

	counted := fieldSchema(types.Field{Element: "reassignment_count", InternalType: "integer", MaxLength: 40})
	assert.Nil(t, counted.MaxLength)
}

func TestFieldSchema_DoesNotShareTypeMap(t *testing.T) {
	a := fieldSchema(types.Field{Element: "a", InternalType: "string", ColumnLabel: "A"})
	b := fieldSchema(types.Field{Element: "b", InternalType: "string"})

	assert.Equal(t, "A", a.Description)
	assert.Empty(t, b.Description)
	assert.Empty(t, typeMap["string"].Description)
}

func TestOperationIDsUnique(t *testing.T) {
	doc := Build(map[string][]types.Field{"incident": nil, "problem": nil}, Options{BaseURL: "https://x"})

	seen := map[string]bool{}
	for _, item := range doc.Paths {
		for _, op := range []*Operation{item.Get, item.Post, item.Patch, item.Delete} {
			if op == nil {
				continue
			}
			assert.False(t, seen[op.OperationID], "duplicate operationId %s", op.OperationID)
			seen[op.OperationID] = true
		}
	}
	assert.Len(t, seen, 10)
}

func TestMarshal_Deterministic(t *testing.T) {
	dicts := map[string][]types.Field{
		"incident":       {{Element: "short_description", Mandatory: true, InternalType: "string"}, {Element: "priority", InternalType: "integer"}},
		"problem":        {{Element: "number", InternalType: "string", Attributes: map[string]interface{}{"x": "1"}}},
		"change_request": {{Element: "start_date", InternalType: "glide_date_time"}},
	}

	first, err := Marshal(Build(dicts, Options{BaseURL: "https://x"}))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Marshal(Build(dicts, Options{BaseURL: "https://x"}))
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMarshal_Layout(t *testing.T) {
	data, err := Marshal(Build(incidentDictionaries(), Options{BaseURL: "https://dev.example.com"}))
	require.NoError(t, err)
	out := string(data)

	assert.True(t, strings.HasPrefix(out, "{\n  \"components\""), "top-level keys are sorted")
	assert.Contains(t, out, `"basic": []`)
	assert.Contains(t, out, `"x-generator": {`)
	assert.Contains(t, out, `"$ref": "#/components/schemas/ServiceNow_incident"`)
	assert.True(t, strings.Index(out, `"openapi"`) < strings.Index(out, `"paths"`))

	var generic map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &generic))
	assert.Equal(t, "3.0.3", generic["openapi"])
}

func TestTarget_Path(t *testing.T) {
	tests := []struct {
		name     string
		target   Target
		expected string
	}{
		{"no segments", Target{Out: "specs/openapi.json"}, "specs/openapi.json"},
		{"all segments", Target{Out: "specs/openapi.json", Namespace: "now", API: "table", Version: "v1"}, "specs/now/table/v1/openapi.json"},
		{"namespace only", Target{Out: "/out/spec.json", Namespace: "now"}, "/out/now/spec.json"},
		{"gap stops nesting", Target{Out: "/out/spec.json", Namespace: "now", Version: "v2"}, "/out/now/spec.json"},
		{"missing namespace", Target{Out: "/out/spec.json", API: "table", Version: "v1"}, "/out/spec.json"},
		{"bare file", Target{Out: "spec.json", Namespace: "now"}, "now/spec.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.target.Path())
		})
	}
}

func TestWrite_CreatesDirectoriesAndIsStable(t *testing.T) {
	fs := afero.NewMemMapFs()
	target := Target{Out: "/specs/openapi.json", Namespace: "now", API: "table", Version: "v1"}

	path, err := Synthesize(fs, incidentDictionaries(), Options{BaseURL: "https://x"}, target)
	require.NoError(t, err)
	assert.Equal(t, "/specs/now/table/v1/openapi.json", path)

	first, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	_, err = Synthesize(fs, incidentDictionaries(), Options{BaseURL: "https://x"}, target)
	require.NoError(t, err)
	second, err := afero.ReadFile(fs, path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "re-running overwrites with identical bytes")
}

func TestWrite_ReadOnlyFs(t *testing.T) {
	fs := afero.NewReadOnlyFs(afero.NewMemMapFs())
	_, err := Write(fs, Build(nil, Options{BaseURL: "https://x"}), Target{Out: "/specs/openapi.json"})
	assert.Error(t, err)
}
