// Package codec centralizes the encoding of state the tools persist.
//
// Persisted files are self-describing: Encode prefixes the payload with the
// codec name so Decode can pick the matching codec when the default changes.
package codec

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned when decoding data written by an unknown codec.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Encode marshals v with c (Default if nil) behind a "<name>\n" header.
func Encode(c Codec, v any) ([]byte, error) {
	if c == nil {
		c = Default
	}
	payload, err := c.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("codec %s: %w", c.Name(), err)
	}

	out := make([]byte, 0, len(c.Name())+1+len(payload))
	out = append(out, c.Name()...)
	out = append(out, '\n')
	return append(out, payload...), nil
}

// Decode unmarshals data written by Encode into v.
func Decode(data []byte, v any) error {
	name, payload, ok := bytes.Cut(data, []byte{'\n'})
	if !ok {
		return fmt.Errorf("%w: missing header", ErrUnknownCodec)
	}
	c, ok := ByName(string(name))
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}
	if err := c.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("codec %s: %w", c.Name(), err)
	}
	return nil
}

// MustMarshal is a helper for tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s marshal failed: %w", c.Name(), err))
	}
	return b
}
