package encquery

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_String(t *testing.T) {
	tests := []struct {
		name     string
		query    *Query
		expected string
	}{
		{
			name:     "Empty",
			query:    New(),
			expected: "",
		},
		{
			name:     "Single equality",
			query:    New().Eq("active", "true"),
			expected: "active=true",
		},
		{
			name:     "Dictionary query",
			query:    New().Eq("name", "incident").IsNotEmpty("internal_type"),
			expected: "name=incident^internal_typeISNOTEMPTY",
		},
		{
			name:     "IN term",
			query:    New().In("sys_id", []string{"a", "b", "c"}),
			expected: "sys_idINa,b,c",
		},
		{
			name:     "IN drops empty values",
			query:    New().In("sys_id", []string{"", "a", ""}),
			expected: "sys_idINa",
		},
		{
			name:     "Ordered listing",
			query:    New().IsNotEmpty("name").OrderBy("name"),
			expected: "nameISNOTEMPTY^ORDERBYname",
		},
		{
			name:     "IN with nothing appends nothing",
			query:    New().Eq("active", "true").In("sys_id", nil),
			expected: "active=true",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.query.String())
		})
	}
}

func TestChunk(t *testing.T) {
	values := make([]string, 250)
	for i := range values {
		values[i] = fmt.Sprintf("id%03d", i)
	}

	chunks := Chunk(values, DefaultChunkSize)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 100)
	assert.Len(t, chunks[1], 100)
	assert.Len(t, chunks[2], 50)
	assert.Equal(t, "id000", chunks[0][0])
	assert.Equal(t, "id249", chunks[2][49])
}

func TestChunk_EdgeCases(t *testing.T) {
	assert.Nil(t, Chunk(nil, 10))
	assert.Equal(t, [][]string{{"a", "b"}}, Chunk([]string{"a", "b"}, 0))
	assert.Equal(t, [][]string{{"a"}, {"b"}}, Chunk([]string{"a", "b"}, 1))
	assert.Equal(t, [][]string{{"a", "b"}}, Chunk([]string{"a", "b"}, 2))
}

func TestIsValidName_Valid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "Simple name", input: "incident"},
		{name: "With underscore", input: "sys_user"},
		{name: "Scoped app table", input: "x_acme_app_ticket"},
		{name: "Custom table", input: "u_custom_table"},
		{name: "Numeric", input: "cmdb_ci_2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, IsValidName(tt.input))
			assert.NoError(t, ValidateName(tt.input))
		})
	}
}

func TestIsValidName_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "Empty string", input: ""},
		{name: "With space", input: "my table"},
		{name: "With slash", input: "incident/../x"},
		{name: "With caret", input: "incident^ORactive=true"},
		{name: "With dot", input: "sys.user"},
		{name: "With query chars", input: "incident?x=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, IsValidName(tt.input))
			err := ValidateName(tt.input)
			assert.Error(t, err)
			assert.IsType(t, &InvalidNameError{}, err)
			assert.Contains(t, err.Error(), "invalid name")
		})
	}
}

func TestInvalidNameError_Error(t *testing.T) {
	err := &InvalidNameError{Name: "bad@table"}
	expected := "invalid name: bad@table (must contain only alphanumeric characters and underscores)"
	assert.Equal(t, expected, err.Error())
}
