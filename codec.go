package persistmap

import (
	"encoding/json"
	"fmt"
)

// Codec externalizes keys and values for backends whose medium stores text.
// Keys round-trip through a canonical string form — DecodeKey(EncodeKey(k))
// must equal k for every valid key. Values round-trip through a structured
// encoding with no loss for the types in use.
type Codec[K comparable, V any] interface {
	EncodeKey(key K) (string, error)
	DecodeKey(s string) (K, error)
	EncodeValue(value V) ([]byte, error)
	DecodeValue(data []byte) (V, error)
}

// StringJSON returns the default codec: string keys stored verbatim, values
// encoded as JSON.
func StringJSON[V any]() Codec[string, V] {
	return stringJSON[V]{}
}

type stringJSON[V any] struct{}

func (stringJSON[V]) EncodeKey(key string) (string, error) { return key, nil }

func (stringJSON[V]) DecodeKey(s string) (string, error) { return s, nil }

func (stringJSON[V]) EncodeValue(value V) ([]byte, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return data, nil
}

func (stringJSON[V]) DecodeValue(data []byte) (V, error) {
	var value V
	if err := json.Unmarshal(data, &value); err != nil {
		return value, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	return value, nil
}
