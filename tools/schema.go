package tools

import "github.com/invopop/jsonschema"

// ParametersFromStruct derives a tool's []ToolParameter from a Go request
// struct's jsonschema tags, so built-in tools declare their schema once on
// the struct they already decode arguments into (mapstructure) instead of
// a second, hand-duplicated ToolParameter literal.
func ParametersFromStruct(v interface{}) []ToolParameter {
	reflector := &jsonschema.Reflector{DoNotReference: true, FieldNameTag: "mapstructure"}
	schema := reflector.Reflect(v)

	required := make(map[string]bool, len(schema.Required))
	for _, name := range schema.Required {
		required[name] = true
	}

	if schema.Properties == nil {
		return nil
	}

	params := make([]ToolParameter, 0, schema.Properties.Len())
	for pair := schema.Properties.Oldest(); pair != nil; pair = pair.Next() {
		prop := pair.Value
		param := ToolParameter{
			Name:        pair.Key,
			Type:        prop.Type,
			Description: prop.Description,
			Required:    required[pair.Key],
			Default:     prop.Default,
		}
		for _, e := range prop.Enum {
			if s, ok := e.(string); ok {
				param.Enum = append(param.Enum, s)
			}
		}
		params = append(params, param)
	}
	return params
}
