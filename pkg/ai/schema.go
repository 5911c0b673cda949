package ai

import (
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// gradingResponseSchema rejects model output whose score field is missing or
// non-numeric before the payload is ever inspected by callers.
const gradingResponseSchema = `{
	"type": "object",
	"required": ["score", "feedback"],
	"properties": {
		"score": {"type": "number", "minimum": 0},
		"feedback": {"type": "string"},
		"suggestions": {"type": "array", "items": {"type": "string"}},
		"detail": {"type": "object"}
	}
}`

var compiledGradingSchema = mustCompileGradingSchema()

func mustCompileGradingSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("grading.schema.json", strings.NewReader(gradingResponseSchema)); err != nil {
		panic(fmt.Sprintf("ai: add grading schema: %v", err))
	}
	schema, err := compiler.Compile("grading.schema.json")
	if err != nil {
		panic(fmt.Sprintf("ai: compile grading schema: %v", err))
	}
	return schema
}
