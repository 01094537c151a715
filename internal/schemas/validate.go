// Package schemas checks model output against the JSON Schemas of the
// classification and extraction stages. Violations are reported, not enforced.
package schemas

import (
	_ "embed"
	"fmt"
	"sort"

	"github.com/xeipuuv/gojsonschema"
)

var (
	//go:embed classification.schema.json
	classificationSchema string

	//go:embed extraction.schema.json
	extractionSchema string
)

var (
	Classification = mustCompile("classification", classificationSchema)
	Extraction     = mustCompile("extraction", extractionSchema)
)

// Schema is a compiled JSON Schema.
type Schema struct {
	name   string
	schema *gojsonschema.Schema
}

func mustCompile(name, source string) *Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(source))
	if err != nil {
		panic(fmt.Sprintf("schemas: failed to compile %s schema: %v", name, err))
	}
	return &Schema{name: name, schema: s}
}

// Violations validates doc and returns one message per violation, sorted.
// A document that cannot be validated at all yields a single message.
func (s *Schema) Violations(doc any) []string {
	result, err := s.schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return []string{fmt.Sprintf("%s: cannot validate output: %v", s.name, err)}
	}
	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		violations = append(violations, fmt.Sprintf("%s: %s: %s", s.name, e.Field(), e.Description()))
	}
	sort.Strings(violations)
	return violations
}
