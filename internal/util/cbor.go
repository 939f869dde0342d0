package util

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// maxNestedDepth bounds how deep byte strings are opened as embedded CBOR.
const maxNestedDepth = 8

// RenderCBORPretty decodes data and renders it as indented JSON. Byte
// strings holding well-formed CBOR, as SUIT wraps most of its members, are
// opened and shown under "<<>>"; other byte strings are shown as h'..'.
func RenderCBORPretty(data []byte) (string, error) {
	var decoded any
	if err := cbor.Unmarshal(data, &decoded); err != nil {
		return "", fmt.Errorf("decode CBOR: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(normalise(decoded, 0)); err != nil {
		return "", err
	}
	return string(bytes.TrimSuffix(buf.Bytes(), []byte("\n"))), nil
}

func normalise(value any, depth int) any {
	switch v := value.(type) {
	case []any:
		out := make([]any, len(v))
		for i, elem := range v {
			out[i] = normalise(elem, depth)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(v))
		for key, val := range v {
			out[stringifyKey(key)] = normalise(val, depth)
		}
		return out
	case []byte:
		if depth < maxNestedDepth && len(v) > 0 && cbor.Wellformed(v) == nil {
			var inner any
			if err := cbor.Unmarshal(v, &inner); err == nil {
				return map[string]any{"<<>>": normalise(inner, depth+1)}
			}
		}
		return fmt.Sprintf("h'%x'", v)
	case cbor.Tag:
		return map[string]any{
			"tag":     v.Number,
			"content": normalise(v.Content, depth),
		}
	default:
		return v
	}
}

func stringifyKey(key any) string {
	switch k := key.(type) {
	case string:
		return k
	case []byte:
		return fmt.Sprintf("h'%x'", k)
	default:
		return fmt.Sprint(k)
	}
}
