// Package types contains shared types used across multiple packages to avoid import cycles.
package types

import (
	"strings"
)

// Field describes one column of a table as reported by the field dictionary.
type Field struct {
	Element      string                 `json:"element"`
	ColumnLabel  string                 `json:"column_label"`
	Mandatory    bool                   `json:"mandatory"`
	InternalType string                 `json:"internal_type"`
	MaxLength    int                    `json:"max_length"`
	Reference    string                 `json:"reference"`
	ReadOnly     bool                   `json:"read_only"`
	Attributes   map[string]interface{} `json:"attributes"`
}

// FieldFromRecord builds a Field from a raw sys_dictionary row.
func FieldFromRecord(rec map[string]interface{}) Field {
	return Field{
		Element:      ToString(rec["element"]),
		ColumnLabel:  ToString(rec["column_label"]),
		Mandatory:    ToBool(rec["mandatory"]),
		InternalType: ToString(rec["internal_type"]),
		MaxLength:    int(ToInt64(rec["max_length"])),
		Reference:    ToString(rec["reference"]),
		ReadOnly:     ToBool(rec["read_only"]),
		Attributes:   ParseAttributes(rec["attributes"]),
	}
}

// ParseAttributes turns a dictionary attribute string ("k=v,k2=v2") into a map.
// A key without "=" maps to true. An already-structured map is copied as is.
func ParseAttributes(v interface{}) map[string]interface{} {
	out := make(map[string]interface{})

	switch a := v.(type) {
	case map[string]interface{}:
		if _, isRef := a["link"]; isRef {
			return ParseAttributes(Unwrap(a))
		}
		for k, val := range a {
			out[k] = val
		}
		return out
	case string:
		for _, part := range strings.Split(a, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			key, val, found := strings.Cut(part, "=")
			key = strings.TrimSpace(key)
			if key == "" {
				continue
			}
			if !found {
				out[key] = true
				continue
			}
			out[key] = strings.TrimSpace(val)
		}
	}

	return out
}

// TableInfo is one row of the table registry (sys_db_object).
type TableInfo struct {
	Name       string
	Label      string
	SuperClass string
}

// TableInfoFromRecord builds a TableInfo from a raw sys_db_object row.
func TableInfoFromRecord(rec map[string]interface{}) TableInfo {
	return TableInfo{
		Name:       ToString(rec["name"]),
		Label:      ToString(rec["label"]),
		SuperClass: ToString(rec["super_class"]),
	}
}

// CatalogEntry identifies one API version in the REST catalog.
type CatalogEntry struct {
	Namespace string `json:"namespace"`
	API       string `json:"api"`
	Version   string `json:"version"`
}

// Path returns the entry as "namespace/api/version".
func (e CatalogEntry) Path() string {
	return e.Namespace + "/" + e.API + "/" + e.Version
}
