// Package xjson is the single JSON import site for dagflow. Run records,
// events and JSON config all go through it.
package xjson

import (
	stdjson "encoding/json"

	gojson "github.com/goccy/go-json"
)

// Marshal encodes v.
func Marshal(v any) ([]byte, error) {
	return gojson.Marshal(v)
}

// MarshalIndent encodes v with indentation.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return gojson.MarshalIndent(v, prefix, indent)
}

// Unmarshal decodes data into v.
func Unmarshal(data []byte, v any) error {
	return gojson.Unmarshal(data, v)
}

// RawMessage stays assignable to encoding/json's type.
type RawMessage = stdjson.RawMessage
