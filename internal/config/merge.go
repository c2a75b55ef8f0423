package config

// Document is the nested configuration object graph as decoded from JSON:
// string keys mapping to scalars, arrays, or nested objects.
type Document = map[string]any

// Merge deep-merges patch into base and returns base.
//
// Nested objects merge key by key, creating (or replacing a non-object
// value with) an empty object in base first when needed. Every other
// value kind, including arrays and null, overwrites the base value
// wholesale; arrays are never merged element-wise. Keys absent from patch
// are left untouched. Applying the same patch twice yields the same
// result as applying it once.
func Merge(base, patch Document) Document {
	if base == nil {
		base = Document{}
	}
	for key, value := range patch {
		if nested, ok := value.(map[string]any); ok {
			target, ok := base[key].(map[string]any)
			if !ok {
				target = map[string]any{}
				base[key] = target
			}
			Merge(target, nested)
			continue
		}
		base[key] = value
	}
	return base
}
