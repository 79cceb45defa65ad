package llm

import (
	"encoding/json"
	"fmt"
	"sort"
)

// PrepareSchemaForStrictMode rewrites a JSON schema so OpenAI's strict
// structured-output mode accepts it: every object node gets
// additionalProperties=false and a required list naming all of its
// properties. Nested objects, array items, $defs, and composition
// keywords are rewritten recursively.
func PrepareSchemaForStrictMode(raw json.RawMessage) (json.RawMessage, error) {
	var node any
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("parse schema: %w", err)
	}
	tightenSchemaNode(node)
	out, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("serialize schema: %w", err)
	}
	return out, nil
}

func tightenSchemaNode(node any) {
	obj, ok := node.(map[string]any)
	if !ok {
		if arr, ok := node.([]any); ok {
			for _, item := range arr {
				tightenSchemaNode(item)
			}
		}
		return
	}

	if t, _ := obj["type"].(string); t == "object" {
		obj["additionalProperties"] = false
		if props, ok := obj["properties"].(map[string]any); ok {
			names := make([]string, 0, len(props))
			for name := range props {
				names = append(names, name)
			}
			sort.Strings(names)
			required := make([]any, 0, len(names))
			for _, name := range names {
				required = append(required, name)
			}
			obj["required"] = required
		}
	}

	for _, key := range []string{"properties", "$defs", "definitions"} {
		if children, ok := obj[key].(map[string]any); ok {
			for _, child := range children {
				tightenSchemaNode(child)
			}
		}
	}
	for _, key := range []string{"items", "anyOf", "allOf", "oneOf"} {
		if child, ok := obj[key]; ok {
			tightenSchemaNode(child)
		}
	}
}
