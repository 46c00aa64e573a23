// Copyright 2026 The Renderbeam Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"bytes"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	type message struct {
		Name  string         `cbor:"name"`
		Frame int            `cbor:"frame"`
		Args  map[string]any `cbor:"args,omitempty"`
	}

	original := message{
		Name:  "start_render",
		Frame: 12,
		Args:  map[string]any{"camera": "Camera.001"},
	}

	data, err := Marshal(original)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded message
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Name != original.Name || decoded.Frame != original.Frame {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
	if decoded.Args["camera"] != "Camera.001" {
		t.Fatalf("args lost in round trip: %+v", decoded.Args)
	}
}

func TestDeterministicEncoding(t *testing.T) {
	value := map[string]any{"b": 2, "a": 1, "c": []any{"x", "y"}}

	first, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	second, err := Marshal(value)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("same value produced different encodings:\n%x\n%x", first, second)
	}
}

func TestAnyTargetDecodesToStringKeyedMap(t *testing.T) {
	data, err := Marshal(map[string]any{"frame": 3})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var decoded any
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := decoded.(map[string]any); !ok {
		t.Fatalf("any target decoded to %T, want map[string]any", decoded)
	}
}

func TestStreamEncoderDecoder(t *testing.T) {
	var buffer bytes.Buffer
	encoder := NewEncoder(&buffer)
	for i := 0; i < 3; i++ {
		if err := encoder.Encode(map[string]any{"seq": i}); err != nil {
			t.Fatalf("Encode item %d: %v", i, err)
		}
	}

	decoder := NewDecoder(&buffer)
	for i := 0; i < 3; i++ {
		var item map[string]any
		if err := decoder.Decode(&item); err != nil {
			t.Fatalf("Decode item %d: %v", i, err)
		}
		if got := item["seq"]; got != uint64(i) && got != int64(i) {
			t.Fatalf("item %d decoded seq %v", i, got)
		}
	}
}
