package article

import (
	"bytes"
	"encoding/json"
)

var emptySchema = json.RawMessage(`[]`)

// NormalizePayload checks that raw is a catalog document (a JSON array or
// object) and returns its compact encoding.
func NormalizePayload(raw []byte) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, Validationf("catalog payload is empty")
	}
	if trimmed[0] != '[' && trimmed[0] != '{' {
		return nil, Validationf("catalog payload must be a sequence of sections or an object")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, &Error{Kind: KindValidation, Msg: "catalog payload is not valid JSON", Err: err}
	}
	return json.RawMessage(buf.Bytes()), nil
}

// Schema flattens a catalog to its section sequence: the document itself when
// it is an array, its "sections" field when that is an array, else [].
func Schema(payload json.RawMessage) json.RawMessage {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return emptySchema
	}
	switch trimmed[0] {
	case '[':
		return json.RawMessage(trimmed)
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil {
			return emptySchema
		}
		sections := bytes.TrimSpace(obj["sections"])
		if len(sections) > 0 && sections[0] == '[' {
			return json.RawMessage(sections)
		}
	}
	return emptySchema
}

// SourceKeys returns the source keys a catalog declares in its top-level
// "sources" field. Entries may be plain strings or objects carrying "key".
func SourceKeys(payload json.RawMessage) []string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(payload, &obj); err != nil {
		return nil
	}
	var entries []json.RawMessage
	if err := json.Unmarshal(obj["sources"], &entries); err != nil {
		return nil
	}
	seen := make(map[string]bool, len(entries))
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		var key string
		if err := json.Unmarshal(e, &key); err != nil {
			var ref struct {
				Key string `json:"key"`
			}
			if json.Unmarshal(e, &ref) != nil {
				continue
			}
			key = ref.Key
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	return keys
}
