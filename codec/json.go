package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

// JSON is the default codec. The zero value is ready to use.
// Decode rejects trailing data after the first JSON value so that a
// truncated or concatenated payload is reported as corrupt.
type JSON[V any] struct{}

var _ Codec[struct{}] = JSON[struct{}]{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }

func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	dec := json.NewDecoder(bytes.NewReader(b))
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		var zero V
		return zero, errors.New("codec: trailing data after json value")
	}
	return v, nil
}
