// Package codec turns cached values into bytes and back.
//
// A Decode error is treated by shelfcache as a corrupt entry: the key is
// deleted and the read reports a miss. Codecs therefore must not return an
// error for payloads they merely do not recognize as "empty".
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by Named.
const (
	NameJSON    = "json"
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
)

// Named returns the codec registered under name. Readers and writers of the
// same keys must agree on it.
func Named[V any](name string) (Codec[V], error) {
	switch name {
	case "", NameJSON:
		return JSON[V]{}, nil
	case NameCBOR:
		return NewCBOR[V](true)
	case NameMsgpack:
		return Msgpack[V]{}, nil
	}
	return nil, fmt.Errorf("codec: unknown codec %q", name)
}
