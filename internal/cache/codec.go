package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrSchemaMismatch = errors.New("cached value has a different schema")

// envelope tags every cached value with the schema it was written with so a
// reader never decodes a payload produced by a different version of a type.
type envelope struct {
	Schema  string          `json:"schema"`
	Version int             `json:"v"`
	Data    json.RawMessage `json:"data"`
}

// Schema names a cached payload shape. Bump Version whenever the shape of the
// encoded type changes.
type Schema struct {
	Name    string
	Version int
}

func (s Schema) Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("error encoding %s: %w", s.Name, err)
	}
	return json.Marshal(envelope{Schema: s.Name, Version: s.Version, Data: data})
}

func (s Schema) Decode(raw []byte, v any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	if env.Schema != s.Name || env.Version != s.Version {
		return fmt.Errorf("%w: have %s/v%d, want %s/v%d", ErrSchemaMismatch, env.Schema, env.Version, s.Name, s.Version)
	}
	if err := json.Unmarshal(env.Data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaMismatch, err)
	}
	return nil
}
