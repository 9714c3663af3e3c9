package jsonx

import (
	"bytes"
	"io"

	jsoniter "github.com/json-iterator/go"
)

var jsonx = jsoniter.ConfigCompatibleWithStandardLibrary

func Marshal(v interface{}) ([]byte, error) {
	return jsonx.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return jsonx.Unmarshal(data, v)
}

func NewDecoder(r io.Reader) *jsoniter.Decoder {
	return jsonx.NewDecoder(r)
}

func NewEncoder(w io.Writer) *jsoniter.Encoder {
	return jsonx.NewEncoder(w)
}

// Fingerprint returns the canonical encoding of v; map keys are sorted by the codec,
// so two values with equal content always share a fingerprint.
func Fingerprint(v interface{}) (string, error) {
	b, err := jsonx.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Equal reports whether a and b encode to the same JSON. Values that fail to encode are never equal.
func Equal(a, b interface{}) bool {
	ba, err := jsonx.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := jsonx.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ba, bb)
}
