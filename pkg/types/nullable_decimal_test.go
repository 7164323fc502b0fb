package types

import (
	"encoding/json"
	"testing"
)

func TestNullableDecimalUnmarshal(t *testing.T) {
	type payload struct {
		Limit NullableDecimal `json:"limit"`
	}

	var got payload
	if err := json.Unmarshal([]byte(`{"limit": "250.50"}`), &got); err != nil {
		t.Fatalf("unmarshal string value: %v", err)
	}
	if !got.Limit.Set || got.Limit.Value == nil || got.Limit.Value.String() != "250.5" {
		t.Fatalf("unexpected value %+v", got.Limit)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"limit": 40}`), &got); err != nil {
		t.Fatalf("unmarshal number value: %v", err)
	}
	if got.Limit.Value == nil || got.Limit.Value.IntPart() != 40 {
		t.Fatalf("unexpected numeric value %+v", got.Limit)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{"limit": null}`), &got); err != nil {
		t.Fatalf("unmarshal null: %v", err)
	}
	if !got.Limit.IsNull() {
		t.Fatalf("expected explicit null, got %+v", got.Limit)
	}

	got = payload{}
	if err := json.Unmarshal([]byte(`{}`), &got); err != nil {
		t.Fatalf("unmarshal missing: %v", err)
	}
	if got.Limit.Set {
		t.Fatalf("expected unset for missing field, got %+v", got.Limit)
	}
}
