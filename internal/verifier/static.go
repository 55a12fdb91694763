// Package verifier checks generated documents and probes discovered tables
// against the live instance.
package verifier

import (
	"fmt"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/spf13/afero"
)

// ValidateSpec parses the document at path and validates it against the
// OpenAPI 3 rules. It reports ok with message "ok", or false with the first
// problem found. It never panics.
func ValidateSpec(fs afero.Fs, path string) (ok bool, message string) {
	defer func() {
		if r := recover(); r != nil {
			ok, message = false, fmt.Sprintf("validator panic: %v", r)
		}
	}()

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return false, err.Error()
	}
	return ValidateSpecData(data)
}

// ValidateSpecData validates an in-memory document.
func ValidateSpecData(data []byte) (bool, string) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromData(data)
	if err != nil {
		return false, err.Error()
	}
	if err := doc.Validate(loader.Context); err != nil {
		return false, err.Error()
	}
	return true, "ok"
}
