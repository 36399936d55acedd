package config

import (
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// configSchema constrains the shape of a loaded config file before it is
// unmarshaled, so typos in section or key names fail loudly instead of
// silently falling back to defaults.
const configSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "analysis": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "cycles": {"type": "boolean"},
        "dead_code": {"type": "boolean"},
        "clones": {"type": "boolean"},
        "cohesion": {"type": "boolean"},
        "di": {"type": "boolean"}
      }
    },
    "clones": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "min_lines": {"type": "integer", "minimum": 1},
        "min_statements": {"type": "integer", "minimum": 1},
        "size_tolerance": {"type": "number", "exclusiveMinimum": 0, "maximum": 1},
        "boilerplate_ratio": {"type": "number", "exclusiveMinimum": 0, "maximum": 1}
      }
    },
    "cycles": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_cycle_length": {"type": "integer", "minimum": 2},
        "cluster_threshold": {"type": "integer", "minimum": 2},
        "include_conditional": {"type": "boolean"}
      }
    },
    "di": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "max_constructor_params": {"type": "integer", "minimum": 1}
      }
    },
    "cohesion": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "low_threshold": {"type": "integer", "minimum": 1},
        "medium_threshold": {"type": "integer", "minimum": 1}
      }
    },
    "run": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "workers": {"type": "integer", "minimum": 0},
        "timeout_seconds": {"type": "integer", "minimum": 0},
        "fail_on": {"type": "string", "enum": ["info", "warning", "critical"]}
      }
    },
    "exclude": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "patterns": {"type": "array", "items": {"type": "string"}},
        "dirs": {"type": "array", "items": {"type": "string"}},
        "gitignore": {"type": "boolean"}
      }
    },
    "output": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "format": {"type": "string", "enum": ["text", "json", "markdown"]},
        "color": {"type": "boolean"},
        "verbose": {"type": "boolean"}
      }
    }
  }
}`

// validateSchema checks the raw decoded config map against the schema.
func validateSchema(raw map[string]any) error {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(configSchema))
	if err != nil {
		return err
	}

	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("auspex-config.schema.json", doc); err != nil {
		return err
	}
	schema, err := compiler.Compile("auspex-config.schema.json")
	if err != nil {
		return err
	}

	if err := schema.Validate(normalize(raw)); err != nil {
		return &ConfigurationError{Field: "config file", Reason: err.Error()}
	}
	return nil
}

// normalize converts decoder-specific scalar types (toml int64, yaml ints)
// into the JSON value space the schema validator expects.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalize(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalize(val)
		}
		return out
	case int:
		return float64(t)
	case int32:
		return float64(t)
	case int64:
		return float64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}
