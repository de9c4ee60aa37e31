// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package wire

import (
	"reflect"
	"testing"
)

func TestDumpLoadJSONRoundTrip(t *testing.T) {
	v := map[string]any{
		"n":  int64(3),
		"x":  1.5,
		"ok": true,
		"nested": []any{
			"a", int64(1), map[string]any{"inner": true},
		},
		"none": nil,
	}
	data, err := DumpJSON(v)
	if err != nil {
		t.Fatalf("DumpJSON: %v", err)
	}
	got, err := LoadJSON(data, nil)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("round trip mismatch:\ngot  %#v\nwant %#v", got, v)
	}
}

func TestDumpJSONEscapesQuotes(t *testing.T) {
	v := map[string]any{"msg": `say "hi"`}
	data, err := DumpJSON(v)
	if err != nil {
		t.Fatalf("DumpJSON: %v", err)
	}
	got, err := LoadJSON(data, nil)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if got.(map[string]any)["msg"] != `say "hi"` {
		t.Errorf("got %v", got)
	}
}

func TestDumpJSONRawBytes(t *testing.T) {
	v := map[string]any{"blob": RawBytes{0xAC, 0x96, 0x00, 0xFF}}
	data, err := DumpJSON(v)
	if err != nil {
		t.Fatalf("DumpJSON: %v", err)
	}
	got, err := LoadJSON(data, nil)
	if err != nil {
		t.Fatalf("LoadJSON: %v", err)
	}
	if !reflect.DeepEqual(got.(map[string]any)["blob"], v["blob"]) {
		t.Errorf("got %v, want %v", got, v)
	}
}
