// Package synthesis turns table field dictionaries into an OpenAPI 3.0
// description of the Table API.
package synthesis

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/dbsmedya/goapidiscovery/internal/types"
)

const (
	openAPIVersion   = "3.0.3"
	defaultTitle     = "ServiceNow Generated API"
	defaultVersion   = "0.1.0"
	generatorName    = "api-discovery"
	generatorVersion = "0.1.0"

	tablePathPrefix = "/api/now/table/"
	itemParam       = "sys_id"
	jsonMedia       = "application/json"

	// oauthScope is the instance's default OAuth scope.
	oauthScope = "useraccount"
)

// Options configures document generation.
type Options struct {
	BaseURL string // default of the server_url variable
	Title   string
	Version string
}

// Target names where a document is written: Out is a file path whose
// directory is extended by Namespace, API and Version. Segments after the
// first empty one are ignored, matching state scopes.
type Target struct {
	Out       string
	Namespace string
	API       string
	Version   string
}

// Path returns the final file path for t.
func (t Target) Path() string {
	parts := []string{filepath.Dir(t.Out)}
	for _, seg := range []string{t.Namespace, t.API, t.Version} {
		if seg == "" {
			break
		}
		parts = append(parts, seg)
	}
	parts = append(parts, filepath.Base(t.Out))
	return filepath.Join(parts...)
}

// typeMap maps dictionary internal types to schema type and format. Types not
// listed become plain strings.
var typeMap = map[string]Schema{
	"string":          {Type: "string"},
	"integer":         {Type: "integer"},
	"longint":         {Type: "integer", Format: "int64"},
	"float":           {Type: "number"},
	"decimal":         {Type: "number", Format: "double"},
	"currency":        {Type: "number", Format: "double"},
	"price":           {Type: "number", Format: "double"},
	"boolean":         {Type: "boolean"},
	"date":            {Type: "string", Format: "date"},
	"glide_date":      {Type: "string", Format: "date"},
	"datetime":        {Type: "string", Format: "date-time"},
	"glide_date_time": {Type: "string", Format: "date-time"},
	"reference":       {Type: "string"},
	"journal":         {Type: "string"},
	"html":            {Type: "string"},
}

// SchemaName returns the component schema name for table.
func SchemaName(table string) string {
	return "ServiceNow_" + table
}

// CollectionPath returns the collection path of table.
func CollectionPath(table string) string {
	return tablePathPrefix + table
}

// ItemPath returns the single-record path of table.
func ItemPath(table string) string {
	return CollectionPath(table) + "/{" + itemParam + "}"
}

// Build generates the document for dictionaries. It never fails: unknown
// field types fall back to string.
func Build(dictionaries map[string][]types.Field, opts Options) *Document {
	title := opts.Title
	if title == "" {
		title = defaultTitle
	}
	version := opts.Version
	if version == "" {
		version = defaultVersion
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")

	doc := &Document{
		OpenAPI: openAPIVersion,
		Info:    Info{Title: title, Version: version},
		Servers: []Server{{
			URL:       "{server_url}",
			Variables: map[string]ServerVariable{"server_url": {Default: baseURL}},
		}},
		Security: []SecurityRequirement{{"basic": []string{}}},
		Components: Components{
			Schemas: make(map[string]*Schema, len(dictionaries)),
			SecuritySchemes: map[string]SecurityScheme{
				"basic": {Type: "http", Scheme: "basic"},
				"oauth2": {Type: "oauth2", Flows: &OAuthFlows{
					ClientCredentials: &OAuthFlow{
						TokenURL: baseURL + "/oauth_token.do",
						Scopes:   map[string]string{oauthScope: "Access as the authenticated user"},
					},
				}},
			},
		},
		Paths:     make(map[string]*PathItem, 2*len(dictionaries)),
		Generator: Generator{Name: generatorName, Version: generatorVersion},
	}

	tables := make([]string, 0, len(dictionaries))
	for table := range dictionaries {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	for _, table := range tables {
		doc.Components.Schemas[SchemaName(table)] = tableSchema(dictionaries[table])
		doc.Paths[CollectionPath(table)] = collectionItem(table)
		doc.Paths[ItemPath(table)] = recordItem(table)
	}
	return doc
}

// Marshal encodes doc as indented JSON with sorted keys.
func Marshal(doc *Document) ([]byte, error) {
	return types.MarshalCanonical(doc)
}

// Write encodes doc and writes it to target.Path(), creating directories.
// It returns the written path. Identical documents produce identical files.
func Write(fs afero.Fs, doc *Document, target Target) (string, error) {
	data, err := Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode spec: %w", err)
	}

	path := target.Path()
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create spec directory: %w", err)
	}
	if err := afero.WriteFile(fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write spec: %w", err)
	}
	return path, nil
}

// Synthesize builds and writes the document in one step.
func Synthesize(fs afero.Fs, dictionaries map[string][]types.Field, opts Options, target Target) (string, error) {
	return Write(fs, Build(dictionaries, opts), target)
}

func tableSchema(fields []types.Field) *Schema {
	s := &Schema{Type: "object", Properties: make(map[string]*Schema, len(fields))}
	required := make(map[string]bool)
	for _, f := range fields {
		if f.Element == "" {
			continue
		}
		s.Properties[f.Element] = fieldSchema(f)
		if f.Mandatory && !required[f.Element] {
			required[f.Element] = true
			s.Required = append(s.Required, f.Element)
		}
	}
	return s
}

func fieldSchema(f types.Field) *Schema {
	mapped, ok := typeMap[f.InternalType]
	if !ok {
		mapped = Schema{Type: "string"}
	}
	s := mapped
	s.Description = f.ColumnLabel
	s.ReadOnly = f.ReadOnly
	if s.Type == "string" && s.Format == "" && f.MaxLength > 0 {
		n := f.MaxLength
		s.MaxLength = &n
	}
	return &s
}

func ref(table string) *Schema {
	return &Schema{Ref: "#/components/schemas/" + SchemaName(table)}
}

func resultOf(inner *Schema) map[string]MediaType {
	return map[string]MediaType{jsonMedia: {Schema: &Schema{
		Type:       "object",
		Properties: map[string]*Schema{"result": inner},
	}}}
}

func operationSecurity() []SecurityRequirement {
	return []SecurityRequirement{{"basic": []string{}}, {"oauth2": []string{}}}
}

func recordBody(table string) *RequestBody {
	return &RequestBody{Required: true, Content: map[string]MediaType{jsonMedia: {Schema: ref(table)}}}
}

func collectionItem(table string) *PathItem {
	return &PathItem{
		Get: &Operation{
			OperationID: "list_" + table,
			Summary:     "List records for " + table,
			Tags:        []string{table},
			Parameters: []Parameter{
				{Name: "sysparm_limit", In: "query", Schema: &Schema{Type: "integer"}},
				{Name: "sysparm_offset", In: "query", Schema: &Schema{Type: "integer"}},
				{Name: "sysparm_query", In: "query", Description: "Encoded query", Schema: &Schema{Type: "string"}},
				{Name: "sysparm_fields", In: "query", Description: "Comma-separated field list", Schema: &Schema{Type: "string"}},
			},
			Responses: map[string]Response{
				"200": {Description: "OK", Content: resultOf(&Schema{Type: "array", Items: ref(table)})},
			},
			Security: operationSecurity(),
		},
		Post: &Operation{
			OperationID: "create_" + table,
			Summary:     "Create record in " + table,
			Tags:        []string{table},
			RequestBody: recordBody(table),
			Responses: map[string]Response{
				"201": {Description: "Created", Content: resultOf(ref(table))},
			},
			Security: operationSecurity(),
		},
	}
}

func recordItem(table string) *PathItem {
	idParam := []Parameter{{Name: itemParam, In: "path", Required: true, Schema: &Schema{Type: "string"}}}
	return &PathItem{
		Get: &Operation{
			OperationID: "get_" + table,
			Summary:     "Get " + table + " by sys_id",
			Tags:        []string{table},
			Parameters:  idParam,
			Responses: map[string]Response{
				"200": {Description: "OK", Content: resultOf(ref(table))},
			},
			Security: operationSecurity(),
		},
		Patch: &Operation{
			OperationID: "update_" + table,
			Summary:     "Update " + table + " by sys_id",
			Tags:        []string{table},
			Parameters:  idParam,
			RequestBody: recordBody(table),
			Responses: map[string]Response{
				"200": {Description: "OK", Content: resultOf(ref(table))},
			},
			Security: operationSecurity(),
		},
		Delete: &Operation{
			OperationID: "delete_" + table,
			Summary:     "Delete " + table + " by sys_id",
			Tags:        []string{table},
			Parameters:  idParam,
			Responses: map[string]Response{
				"204": {Description: "No Content"},
			},
			Security: operationSecurity(),
		},
	}
}
