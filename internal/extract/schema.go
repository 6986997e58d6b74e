package extract

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"docverify/internal/domain"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// BuildFieldsSchema describes sanitized fields for category. Shape rules
// (every key present, string or null) always hold after Sanitize; the
// patterns flag values that are present but implausible.
func BuildFieldsSchema(category domain.DocumentCategory) map[string]any {
	nullableString := func(extra map[string]any) map[string]any {
		prop := map[string]any{"type": []string{"string", "null"}}
		for k, v := range extra {
			prop[k] = v
		}
		return prop
	}

	props := make(map[string]any)
	for _, key := range category.Fields() {
		props[key] = nullableString(nil)
	}
	props["dob"] = nullableString(map[string]any{"pattern": `^\d{2}-\d{2}-\d{4}$`})
	props["name"] = nullableString(map[string]any{"minLength": 2})

	switch category {
	case domain.CategoryPersonal:
		props["mobile"] = nullableString(map[string]any{"pattern": `^\+?[0-9 -]{10,15}$`})
	case domain.CategoryEducational:
		props["year_of_passing"] = nullableString(map[string]any{"pattern": `^(19|20)\d{2}$`})
		props["marks_type"] = map[string]any{"enum": []any{"CGPA", "Percentage", nil}}
	}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           props,
		"required":             category.Fields(),
	}
}

type fieldValidator struct {
	schemas map[domain.DocumentCategory]*jsonschema.Schema
}

func newFieldValidator() (*fieldValidator, error) {
	v := &fieldValidator{schemas: make(map[domain.DocumentCategory]*jsonschema.Schema)}
	for _, category := range []domain.DocumentCategory{domain.CategoryPersonal, domain.CategoryEducational} {
		b, err := json.Marshal(BuildFieldsSchema(category))
		if err != nil {
			return nil, fmt.Errorf("marshal %s schema: %w", category, err)
		}
		url := string(category) + ".json"
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(url, bytes.NewReader(b)); err != nil {
			return nil, fmt.Errorf("add %s schema: %w", category, err)
		}
		schema, err := compiler.Compile(url)
		if err != nil {
			return nil, fmt.Errorf("compile %s schema: %w", category, err)
		}
		v.schemas[category] = schema
	}
	return v, nil
}

// Warnings validates fields and returns one readable line per violation.
func (v *fieldValidator) Warnings(category domain.DocumentCategory, fields domain.ExtractedFields) []string {
	schema, ok := v.schemas[category]
	if !ok {
		return []string{fmt.Sprintf("no schema for category %q", category)}
	}
	err := schema.Validate(fields.Plain())
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []string{err.Error()}
	}
	var out []string
	collectLeaves(ve, &out)
	sort.Strings(out)
	return out
}

func collectLeaves(ve *jsonschema.ValidationError, out *[]string) {
	if len(ve.Causes) == 0 {
		field := strings.TrimPrefix(ve.InstanceLocation, "/")
		if field == "" {
			field = "(document)"
		}
		*out = append(*out, field+": "+ve.Message)
		return
	}
	for _, cause := range ve.Causes {
		collectLeaves(cause, out)
	}
}
