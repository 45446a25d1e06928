package mcp

import (
	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

// toJSONSchema converts a Gemini parameter schema to JSON Schema for MCP
// tool input. A nil schema becomes an empty object.
func toJSONSchema(schema *genai.Schema) (*jsonschema.Schema, error) {
	if schema == nil {
		return &jsonschema.Schema{Type: "object"}, nil
	}

	js := &jsonschema.Schema{
		Description: schema.Description,
	}

	switch schema.Type {
	case genai.TypeObject:
		js.Type = "object"
	case genai.TypeString:
		js.Type = "string"
	case genai.TypeNumber:
		js.Type = "number"
	case genai.TypeInteger:
		js.Type = "integer"
	case genai.TypeBoolean:
		js.Type = "boolean"
	case genai.TypeArray:
		js.Type = "array"
	case genai.TypeUnspecified, "":
	default:
		return nil, goerr.New("unsupported schema type", goerr.V("type", schema.Type))
	}

	for _, v := range schema.Enum {
		js.Enum = append(js.Enum, v)
	}

	if len(schema.Properties) > 0 {
		js.Properties = make(map[string]*jsonschema.Schema, len(schema.Properties))
		for name, prop := range schema.Properties {
			converted, err := toJSONSchema(prop)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property schema", goerr.V("property", name))
			}
			js.Properties[name] = converted
		}
	}

	if len(schema.Required) > 0 {
		js.Required = append([]string(nil), schema.Required...)
	}

	if schema.Items != nil {
		converted, err := toJSONSchema(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert items schema")
		}
		js.Items = converted
	}

	return js, nil
}
