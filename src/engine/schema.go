package engine

import (
	"fmt"

	"ghostdb/src/dberrors"
	"ghostdb/src/keys"
	"ghostdb/src/models"
)

// applyDefaults fills schema defaults into a body copy for fields the
// caller left out
func applyDefaults(schema map[string]models.FieldDefinition, body map[string]interface{}) {
	for name, def := range schema {
		if def.DefaultValue == nil {
			continue
		}
		if _, ok := body[name]; !ok {
			body[name] = def.DefaultValue
		}
	}
}

// validateSchema checks a document body against the collection schema.
// A nil schema accepts everything.
func validateSchema(schema map[string]models.FieldDefinition, body map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	for name, def := range schema {
		value, ok := body[name]
		if !ok {
			if def.Required {
				return fmt.Errorf("required field %s missing: %w", name, dberrors.ErrSchemaViolation)
			}
			continue
		}
		if !typeMatches(def.Type, value) {
			return fmt.Errorf("field %s: value %v is not of type %s: %w",
				name, value, def.Type, dberrors.ErrSchemaViolation)
		}
	}
	return nil
}

func typeMatches(declared string, value interface{}) bool {
	if value == nil {
		return true
	}
	switch declared {
	case "", "any":
		return true
	case "string":
		_, ok := value.(string)
		return ok
	case "int":
		_, ok := keys.AsInt64(value)
		return ok
	case "float":
		_, ok := keys.AsFloat64(value)
		return ok
	case "bool":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]interface{})
		return ok
	case "object":
		_, ok := value.(map[string]interface{})
		return ok
	default:
		return false
	}
}
