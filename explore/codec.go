package explore

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// canonicalJSON encodes v with sorted object keys and no insignificant
// whitespace. Signatures and request bodies go through here so that equal
// content always yields equal bytes.
func canonicalJSON(v any) ([]byte, error) {
	return json.Marshal(v, json.Deterministic(true))
}

// indentedJSON encodes v deterministically for episode artifacts.
func indentedJSON(v any) ([]byte, error) {
	return json.Marshal(v, json.Deterministic(true), jsontext.WithIndent("  "))
}

// decodeJSON parses data into v.
func decodeJSON(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// decodeObject parses data as a JSON object. ok is false when data is not
// valid JSON or its top-level value is not an object.
func decodeObject(data []byte) (obj map[string]any, ok bool) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, false
	}
	obj, ok = v.(map[string]any)
	return obj, ok
}
