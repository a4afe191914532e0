package backend

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Encode serializes a value for storage. All shipped adapters store the
// encoded bytes, so cached payloads are immune to later mutation of the
// values the caller handed in.
func Encode(value any) ([]byte, error) {
	data, err := msgpack.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("backend: encode: %w", err)
	}
	return data, nil
}

// Decode recovers a typed value from what an adapter returned. A value an
// adapter kept in native form is type-asserted directly; encoded bytes are
// unmarshaled into a fresh T.
func Decode[T any](value any) (T, error) {
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	var out T
	data, ok := value.([]byte)
	if !ok {
		return out, fmt.Errorf("backend: decode: cannot convert %T to %T", value, out)
	}
	if err := msgpack.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("backend: decode: %w", err)
	}
	return out, nil
}
