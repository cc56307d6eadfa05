package storage

import (
	"encoding/json"

	"github.com/vmihailenco/msgpack/v5"
)

// Codec encodes channel values for storage.
type Codec interface {
	// Marshal encodes a value to bytes.
	Marshal(v any) ([]byte, error)

	// Unmarshal decodes bytes produced by Marshal into generic Go
	// shapes (map[string]any, []any, numbers, string, bool, nil).
	// Numeric types depend on the codec: JSON yields float64,
	// MessagePack keeps integers integral.
	Unmarshal(data []byte) (any, error)

	// Name returns the codec name for configuration and logging.
	Name() string
}

// JSONCodec encodes values as JSON, the default textual encoding.
type JSONCodec struct{}

// Marshal encodes v as JSON.
func (JSONCodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes JSON into a generic value.
func (JSONCodec) Unmarshal(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// MsgpackCodec encodes values as MessagePack, a compact binary
// alternative to JSON.
type MsgpackCodec struct{}

// Marshal encodes v as MessagePack.
func (MsgpackCodec) Marshal(v any) ([]byte, error) {
	return msgpack.Marshal(v)
}

// Unmarshal decodes MessagePack into a generic value.
func (MsgpackCodec) Unmarshal(data []byte) (any, error) {
	var v any
	if err := msgpack.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Name returns "msgpack".
func (MsgpackCodec) Name() string { return "msgpack" }
