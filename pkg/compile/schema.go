package compile

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/loomkit/loom/pkg/core"
)

// BuildJSONSchema renders an input contract as a draft-07 JSON Schema
// document and proves it loadable before the workflow is allowed to
// carry it. The executor's validation state evaluates caller input
// against this document.
func BuildJSONSchema(contract core.InputContract) (map[string]interface{}, error) {
	properties := make(map[string]interface{}, len(contract.Fields))
	for field, schema := range contract.Fields {
		prop := map[string]interface{}{"type": schema.Type}
		if len(schema.Enum) > 0 {
			prop["enum"] = schema.Enum
		}
		properties[field] = prop
	}

	doc := map[string]interface{}{
		"$schema":              "http://json-schema.org/draft-07/schema#",
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": true,
	}
	if len(contract.Required) > 0 {
		doc["required"] = contract.Required
	}

	if _, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(doc)); err != nil {
		return nil, err
	}
	return doc, nil
}

// ValidateInput checks a caller's input document against a workflow's
// compiled schema and returns the individual violations.
func ValidateInput(schema map[string]interface{}, input map[string]interface{}) ([]string, error) {
	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(schema),
		gojsonschema.NewGoLoader(input),
	)
	if err != nil {
		return nil, err
	}
	if result.Valid() {
		return nil, nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}
	return violations, nil
}
