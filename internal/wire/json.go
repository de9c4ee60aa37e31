// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
)

// DumpJSON renders v as extended JSON: every scalar becomes a string of the
// form "code:repr" (embedded '"' escaped by the standard json encoder, as
// for any other JSON string); map[string]any and []any recurse structurally.
// This is the spec's only extension over plain JSON — it is what lets the
// wire format carry typed bytes, tz-aware datetimes, and binary values that
// plain JSON cannot express.
//
// Raw/byte-string scalars (codes 'Y' and 'y') are base64-encoded before
// being embedded, since a JSON string must be valid UTF-8 and arbitrary
// bytes are not; LoadJSON reverses this transparently.
func DumpJSON(v any) ([]byte, error) {
	return json.Marshal(dumpNode(v))
}

func dumpNode(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = dumpNode(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = dumpNode(val)
		}
		return out
	default:
		return scalarString(v)
	}
}

func scalarString(v any) string {
	switch x := v.(type) {
	case RawBytes:
		return fmt.Sprintf("%c:%s", CodeRaw, base64.StdEncoding.EncodeToString(x))
	case []byte:
		return fmt.Sprintf("%c:%s", CodeBytes, base64.StdEncoding.EncodeToString(x))
	default:
		return string(EncodeValue(v))
	}
}

// LoadJSON inverts DumpJSON: it decodes the JSON text, then recursively
// turns each "code:repr" leaf string back into its typed Go value. logger
// may be nil; it is passed through to DecodeValue for the zoned-datetime
// naive-fallback warning.
func LoadJSON(data []byte, logger *slog.Logger) (any, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("wire: parsing extended JSON: %w", err)
	}
	return loadNode(raw, logger)
}

func loadNode(v any, logger *slog.Logger) (any, error) {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			dv, err := loadNode(val, logger)
			if err != nil {
				return nil, err
			}
			out[k] = dv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			dv, err := loadNode(val, logger)
			if err != nil {
				return nil, err
			}
			out[i] = dv
		}
		return out, nil
	case string:
		return loadScalar(x, logger)
	default:
		return nil, fmt.Errorf("wire: unexpected extended JSON leaf %T", v)
	}
}

func loadScalar(s string, logger *slog.Logger) (any, error) {
	if len(s) < 2 || s[1] != MAP {
		return nil, fmt.Errorf("wire: malformed extended JSON scalar %q", s)
	}
	switch s[0] {
	case CodeRaw:
		b, err := base64.StdEncoding.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("wire: decoding raw bytes: %w", err)
		}
		return RawBytes(b), nil
	case CodeBytes:
		b, err := base64.StdEncoding.DecodeString(s[2:])
		if err != nil {
			return nil, fmt.Errorf("wire: decoding byte-string: %w", err)
		}
		return b, nil
	default:
		return DecodeValue([]byte(s), logger)
	}
}
