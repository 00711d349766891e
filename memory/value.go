package memory

import (
	"encoding/json"
	"fmt"
)

// ValueKind discriminates the two payload forms an entry can carry.
type ValueKind string

const (
	// KindString marks a payload stored and returned as verbatim text.
	KindString ValueKind = "string"
	// KindStructured marks a payload serialized to JSON at the store edge.
	KindStructured ValueKind = "structured"
)

// Value is the payload of an Entry: either verbatim text or a structured
// document serialized once at construction. Serialization happens only at
// the Value boundary; storage layers move the payload bytes verbatim.
type Value struct {
	kind ValueKind
	data []byte
}

// StringValue wraps text as a string-kind Value.
func StringValue(s string) Value {
	return Value{kind: KindString, data: []byte(s)}
}

// StructuredValue serializes v to JSON and wraps it as a structured-kind
// Value. Returns an error wrapping ErrSerialization when v cannot be
// marshaled.
func StructuredValue(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return Value{kind: KindStructured, data: data}, nil
}

// RawValue reconstructs a Value from its stored kind and payload bytes.
// Unknown kinds are preserved as-is so older data keeps round-tripping.
func RawValue(kind ValueKind, data []byte) Value {
	return Value{kind: kind, data: data}
}

// Kind reports the payload form.
func (v Value) Kind() ValueKind { return v.kind }

// Text returns the payload as text: the original string for string values,
// the JSON document for structured values.
func (v Value) Text() string { return string(v.data) }

// Bytes returns the raw payload bytes. Callers must not modify the slice.
func (v Value) Bytes() []byte { return v.data }

// Size returns the serialized payload length in bytes.
func (v Value) Size() int64 { return int64(len(v.data)) }

// IsZero reports whether the Value is the invalid zero value. Store rejects
// zero values.
func (v Value) IsZero() bool { return v.kind == "" }

// Decode unmarshals a structured payload into dst. String values do not
// decode; read them with Text.
func (v Value) Decode(dst any) error {
	if v.kind != KindStructured {
		return fmt.Errorf("%w: cannot decode %q value", ErrSerialization, v.kind)
	}
	if err := json.Unmarshal(v.data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	return nil
}

type valueJSON struct {
	Kind ValueKind       `json:"kind"`
	Text string          `json:"text,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalJSON encodes the Value with its kind tag so backups and snapshots
// restore the exact payload form.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.kind == KindStructured {
		return json.Marshal(valueJSON{Kind: v.kind, Data: json.RawMessage(v.data)})
	}
	return json.Marshal(valueJSON{Kind: v.kind, Text: string(v.data)})
}

// UnmarshalJSON restores a Value written by MarshalJSON.
func (v *Value) UnmarshalJSON(data []byte) error {
	var decoded valueJSON
	if err := json.Unmarshal(data, &decoded); err != nil {
		return fmt.Errorf("%w: %v", ErrSerialization, err)
	}
	if decoded.Kind == KindStructured {
		*v = Value{kind: KindStructured, data: []byte(decoded.Data)}
		return nil
	}
	*v = Value{kind: decoded.Kind, data: []byte(decoded.Text)}
	return nil
}
