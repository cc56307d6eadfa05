package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestJSONCodec_RoundTrip(t *testing.T) {
	c := JSONCodec{}

	in := map[string]any{
		"name":  "dark",
		"level": float64(3),
		"tags":  []any{"a", "b"},
		"on":    true,
	}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	out, err := c.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestJSONCodec_Nil(t *testing.T) {
	c := JSONCodec{}

	data, err := c.Marshal(nil)
	if err != nil {
		t.Fatalf("Marshal(nil) failed: %v", err)
	}
	out, err := c.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}
	if out != nil {
		t.Errorf("Unmarshal() = %v, want nil", out)
	}
}

func TestJSONCodec_Malformed(t *testing.T) {
	c := JSONCodec{}
	if _, err := c.Unmarshal([]byte("{not json")); err == nil {
		t.Error("Unmarshal(malformed) succeeded, want error")
	}
}

func TestMsgpackCodec_RoundTrip(t *testing.T) {
	c := MsgpackCodec{}

	in := map[string]any{"count": int64(42), "label": "x"}

	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}

	out, err := c.Unmarshal(data)
	if err != nil {
		t.Fatalf("Unmarshal() failed: %v", err)
	}

	m, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("Unmarshal() = %T, want map[string]any", out)
	}
	if m["label"] != "x" {
		t.Errorf("label = %v, want x", m["label"])
	}
}

func TestCodec_Names(t *testing.T) {
	if got := (JSONCodec{}).Name(); got != "json" {
		t.Errorf("JSONCodec.Name() = %q, want json", got)
	}
	if got := (MsgpackCodec{}).Name(); got != "msgpack" {
		t.Errorf("MsgpackCodec.Name() = %q, want msgpack", got)
	}
}
