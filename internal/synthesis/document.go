package synthesis

// The types below cover the subset of OpenAPI 3.0 emitted for table APIs.
// Output key order is imposed at encoding time, not by field order.

// Document is an OpenAPI 3.0 document.
type Document struct {
	OpenAPI    string                `json:"openapi"`
	Info       Info                  `json:"info"`
	Servers    []Server              `json:"servers"`
	Security   []SecurityRequirement `json:"security"`
	Components Components            `json:"components"`
	Paths      map[string]*PathItem  `json:"paths"`
	Generator  Generator             `json:"x-generator"`
}

type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

type Server struct {
	URL       string                    `json:"url"`
	Variables map[string]ServerVariable `json:"variables,omitempty"`
}

type ServerVariable struct {
	Default string `json:"default"`
}

// SecurityRequirement maps a scheme name to required scopes. Scopes must be
// a non-nil slice so they encode as [].
type SecurityRequirement map[string][]string

type Components struct {
	Schemas         map[string]*Schema        `json:"schemas"`
	SecuritySchemes map[string]SecurityScheme `json:"securitySchemes"`
}

type Schema struct {
	Ref         string             `json:"$ref,omitempty"`
	Type        string             `json:"type,omitempty"`
	Format      string             `json:"format,omitempty"`
	Description string             `json:"description,omitempty"`
	ReadOnly    bool               `json:"readOnly,omitempty"`
	MaxLength   *int               `json:"maxLength,omitempty"`
	Properties  map[string]*Schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
	Items       *Schema            `json:"items,omitempty"`
}

type SecurityScheme struct {
	Type   string      `json:"type"`
	Scheme string      `json:"scheme,omitempty"`
	Flows  *OAuthFlows `json:"flows,omitempty"`
}

type OAuthFlows struct {
	ClientCredentials *OAuthFlow `json:"clientCredentials,omitempty"`
}

type OAuthFlow struct {
	TokenURL string            `json:"tokenUrl"`
	Scopes   map[string]string `json:"scopes"`
}

type PathItem struct {
	Get    *Operation `json:"get,omitempty"`
	Post   *Operation `json:"post,omitempty"`
	Patch  *Operation `json:"patch,omitempty"`
	Delete *Operation `json:"delete,omitempty"`
}

type Operation struct {
	OperationID string                `json:"operationId"`
	Summary     string                `json:"summary"`
	Tags        []string              `json:"tags,omitempty"`
	Parameters  []Parameter           `json:"parameters,omitempty"`
	RequestBody *RequestBody          `json:"requestBody,omitempty"`
	Responses   map[string]Response   `json:"responses"`
	Security    []SecurityRequirement `json:"security"`
}

type Parameter struct {
	Name        string  `json:"name"`
	In          string  `json:"in"`
	Description string  `json:"description,omitempty"`
	Required    bool    `json:"required,omitempty"`
	Schema      *Schema `json:"schema"`
}

type RequestBody struct {
	Required bool                 `json:"required"`
	Content  map[string]MediaType `json:"content"`
}

type MediaType struct {
	Schema *Schema `json:"schema,omitempty"`
}

type Response struct {
	Description string               `json:"description"`
	Content     map[string]MediaType `json:"content,omitempty"`
}

type Generator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
