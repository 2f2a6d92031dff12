// Package codec encodes snapshot manifests.
//
// Manifests record the name of the codec that wrote them, so a manifest is
// decoded with the codec it was encoded with whenever that codec is built in.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownCodec is returned by Lookup for names no built-in codec uses.
var ErrUnknownCodec = errors.New("codec: unknown codec")

// Codec encodes/decodes manifest documents.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// Default is the codec used for new manifests.
var Default Codec = GoJSON{}

// Lookup returns the built-in codec registered under name.
func Lookup(name string) (Codec, error) {
	switch name {
	case JSON{}.Name():
		return JSON{}, nil
	case GoJSON{}.Name():
		return GoJSON{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
}

// Sniff returns the value of the top-level "codec" field of a manifest
// document, or "" if the document has none or is not a JSON object.
func Sniff(data []byte) string {
	var tag struct {
		Codec string `json:"codec"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return ""
	}
	return tag.Codec
}

// Resolve picks the codec for decoding data: the one named in the document
// if it is built in, otherwise fallback (or Default when fallback is nil).
func Resolve(data []byte, fallback Codec) Codec {
	if c, err := Lookup(Sniff(data)); err == nil {
		return c
	}
	if fallback == nil {
		return Default
	}
	return fallback
}

// MustMarshal is a helper for tests.
func MustMarshal(c Codec, v any) []byte {
	if c == nil {
		c = Default
	}
	b, err := c.Marshal(v)
	if err != nil {
		panic(fmt.Errorf("codec %s: marshal %T: %w", c.Name(), v, err))
	}
	return b
}
