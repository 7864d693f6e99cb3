package xjson

import (
	stdjson "encoding/json"

	gjson "github.com/goccy/go-json"
)

// Single import site for JSON encoding so the implementation can be
// swapped without touching callers.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// RawMessage stays compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage
