// Package encquery builds ServiceNow encoded queries (sysparm_query values).
package encquery

import (
	"regexp"
	"strings"
)

// DefaultChunkSize bounds the number of values placed in a single IN term.
const DefaultChunkSize = 100

// Query is an ordered list of encoded-query terms joined with "^".
type Query struct {
	terms []string
}

// New returns an empty Query.
func New() *Query {
	return &Query{}
}

// Eq appends "field=value".
func (q *Query) Eq(field, value string) *Query {
	q.terms = append(q.terms, field+"="+value)
	return q
}

// IsNotEmpty appends "fieldISNOTEMPTY".
func (q *Query) IsNotEmpty(field string) *Query {
	q.terms = append(q.terms, field+"ISNOTEMPTY")
	return q
}

// In appends "fieldINv1,v2,...". Empty values are dropped; an empty list
// appends nothing.
func (q *Query) In(field string, values []string) *Query {
	var kept []string
	for _, v := range values {
		if v != "" {
			kept = append(kept, v)
		}
	}
	if len(kept) == 0 {
		return q
	}
	q.terms = append(q.terms, field+"IN"+strings.Join(kept, ","))
	return q
}

// OrderBy appends "ORDERBYfield".
func (q *Query) OrderBy(field string) *Query {
	q.terms = append(q.terms, "ORDERBY"+field)
	return q
}

// String renders the encoded query.
// Example: New().Eq("name", "incident").IsNotEmpty("internal_type")
// -> "name=incident^internal_typeISNOTEMPTY"
func (q *Query) String() string {
	return strings.Join(q.terms, "^")
}

// Chunk splits values into consecutive slices of at most size elements.
// A non-positive size uses DefaultChunkSize.
func Chunk(values []string, size int) [][]string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	var chunks [][]string
	for start := 0; start < len(values); start += size {
		end := start + size
		if end > len(values) {
			end = len(values)
		}
		chunks = append(chunks, values[start:end])
	}
	return chunks
}

// validNameRegex matches table and element names.
// Names are restricted to alphanumerics and underscores, which keeps them
// safe to embed in URL paths and query terms.
var validNameRegex = regexp.MustCompile("^[a-zA-Z0-9_]+$")

// IsValidName checks if a table or element name is safe to embed.
func IsValidName(name string) bool {
	return validNameRegex.MatchString(name)
}

// ValidateName returns an *InvalidNameError when name is not valid.
func ValidateName(name string) error {
	if !IsValidName(name) {
		return &InvalidNameError{Name: name}
	}
	return nil
}

// InvalidNameError is returned when a name contains invalid characters.
type InvalidNameError struct {
	Name string
}

func (e *InvalidNameError) Error() string {
	return "invalid name: " + e.Name + " (must contain only alphanumeric characters and underscores)"
}
