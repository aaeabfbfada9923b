package xjson

import (
	"bytes"

	gjson "github.com/goccy/go-json"
)

// Marshal/Unmarshal wrappers keep a single import site for the JSON codec.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v interface{}) ([]byte, error) {
	return gjson.MarshalIndent(v, "", "  ")
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// UnmarshalStrict rejects fields the target type does not declare.
func UnmarshalStrict(data []byte, v interface{}) error {
	dec := gjson.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// Normalize round-trips v through JSON so typed values become the generic
// maps and slices plugins exchange.
func Normalize(v interface{}) (map[string]interface{}, error) {
	data, err := gjson.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]interface{}
	if err := gjson.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type RawMessage = gjson.RawMessage
