package compile

import (
	"fmt"
	"sort"

	"github.com/loomkit/loom/pkg/core"
)

// Contract presence thresholds over the source traces: fields seen in at
// least requiredShare of first-task inputs become required, fields seen
// in at least optionalShare become optional, the rest are dropped.
const (
	requiredShare = 0.9
	optionalShare = 0.3
	maxExamples   = 3
	maxEnumValues = 10
)

// buildInputContract infers what a caller must supply, from how the
// agent's first task was invoked across the source traces.
func buildInputContract(traces []*core.ExecutionTrace) core.InputContract {
	contract := core.InputContract{Fields: make(map[string]core.FieldSchema)}
	if len(traces) == 0 {
		return contract
	}

	presence := make(map[string]int)
	observed := make(map[string][]interface{})
	seen := make(map[string]map[string]bool)

	for _, trace := range traces {
		if len(trace.Tasks) == 0 {
			continue
		}
		for field, value := range trace.Tasks[0].Input {
			presence[field]++
			key := fmt.Sprintf("%#v", value)
			if seen[field] == nil {
				seen[field] = make(map[string]bool)
			}
			if !seen[field][key] {
				seen[field][key] = true
				observed[field] = append(observed[field], value)
			}
		}
	}

	fields := make([]string, 0, len(presence))
	for field := range presence {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		share := float64(presence[field]) / float64(len(traces))
		switch {
		case share >= requiredShare:
			contract.Required = append(contract.Required, field)
		case share >= optionalShare:
			contract.Optional = append(contract.Optional, field)
		default:
			continue
		}
		contract.Fields[field] = fieldSchema(observed[field])
	}

	return contract
}

// buildOutputContract describes the final task's output plus the fields
// every observed run produced (the workflow's guarantees).
func buildOutputContract(traces []*core.ExecutionTrace) core.OutputContract {
	contract := core.OutputContract{Fields: make(map[string]core.FieldSchema)}

	finals := 0
	presence := make(map[string]int)
	observed := make(map[string][]interface{})
	seen := make(map[string]map[string]bool)

	for _, trace := range traces {
		if len(trace.Tasks) == 0 {
			continue
		}
		finals++
		for field, value := range trace.Tasks[len(trace.Tasks)-1].Output {
			presence[field]++
			key := fmt.Sprintf("%#v", value)
			if seen[field] == nil {
				seen[field] = make(map[string]bool)
			}
			if !seen[field][key] {
				seen[field][key] = true
				observed[field] = append(observed[field], value)
			}
		}
	}
	if finals == 0 {
		return contract
	}

	fields := make([]string, 0, len(presence))
	for field := range presence {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		contract.Fields[field] = fieldSchema(observed[field])
		if presence[field] == finals {
			contract.Guarantees = append(contract.Guarantees, field)
		}
	}

	return contract
}

// fieldSchema infers a field's type from its first observed value,
// keeps up to maxExamples examples, and declares an enum when the
// distinct value set is small.
func fieldSchema(values []interface{}) core.FieldSchema {
	schema := core.FieldSchema{Type: "string"}
	if len(values) == 0 {
		return schema
	}

	schema.Type = core.TypeOf(values[0])

	limit := len(values)
	if limit > maxExamples {
		limit = maxExamples
	}
	schema.Examples = append(schema.Examples, values[:limit]...)

	if len(values) <= maxEnumValues {
		schema.Enum = append(schema.Enum, values...)
	}
	return schema
}
