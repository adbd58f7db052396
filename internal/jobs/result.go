package jobs

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Schema for the structured comparison result produced by inference. Shape
// follows the prompt contract; extra fields (e.g. raw_analysis on degraded
// results) are allowed.
const resultSchema = `{
  "type": "object",
  "required": ["summary", "similarities", "differences", "recommendations", "overall_assessment"],
  "properties": {
    "summary": {"type": "string"},
    "similarities": {"type": "array", "items": {"type": "string"}},
    "differences": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["description"],
        "properties": {
          "type": {"type": "string"},
          "description": {"type": "string"},
          "location": {"type": "string"},
          "old_value": {"type": "string"},
          "new_value": {"type": "string"},
          "significance": {"type": "string"}
        }
      }
    },
    "recommendations": {"type": "array", "items": {"type": "string"}},
    "overall_assessment": {"type": "string"}
  }
}`

var (
	resultSchemaOnce     sync.Once
	resultSchemaCompiled *jsonschema.Schema
	resultSchemaErr      error
)

func compiledResultSchema() (*jsonschema.Schema, error) {
	resultSchemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("result.json", strings.NewReader(resultSchema)); err != nil {
			resultSchemaErr = fmt.Errorf("add result schema: %w", err)
			return
		}
		resultSchemaCompiled, resultSchemaErr = compiler.Compile("result.json")
	})
	return resultSchemaCompiled, resultSchemaErr
}

// ParseResult validates raw inference output against the result schema and
// decodes it into the job's result payload.
func ParseResult(raw json.RawMessage) (map[string]any, error) {
	schema, err := compiledResultSchema()
	if err != nil {
		return nil, err
	}

	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("inference output invalid JSON: %w", err)
	}
	if err := schema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("inference output schema mismatch: %w", err)
	}

	payload, ok := decoded.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("inference output schema mismatch: not an object")
	}
	return payload, nil
}
