package dbkit

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// JSONB stores T as an opaque JSON blob, matching the "canonical snapshot
// is a single serialized blob" requirement of the mapping store.
type JSONB[T any] struct {
	Data T
}

func (j *JSONB[T]) Scan(src any) error {
	if src == nil {
		return nil
	}
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("JSONB.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, &j.Data)
}

func (j JSONB[T]) Value() (driver.Value, error) {
	return json.Marshal(j.Data)
}

func (j *JSONB[T]) GetValue() T {
	return j.Data
}
