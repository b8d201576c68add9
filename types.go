package trino

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// The database/sql surface delivers composite column values (array, map,
// row) as JSON strings. The nullable scanner types below decode them back
// into Go values on the consuming side.

// NullSlice scans ARRAY columns into Go slices.
//
//	var names trino.NullSlice[string]
//	err := row.Scan(&names)
type NullSlice[T any] struct {
	Slice []T
	Valid bool // Valid is true if the value is not NULL
}

var _ sql.Scanner = (*NullSlice[any])(nil)
var _ driver.Valuer = (*NullSlice[any])(nil)

// Scan implements sql.Scanner. It expects a JSON string or []byte.
func (s *NullSlice[T]) Scan(src any) error {
	if src == nil {
		s.Slice = nil
		s.Valid = false
		return nil
	}
	data, err := scanBytes(src, "NullSlice")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &s.Slice); err != nil {
		return fmt.Errorf("trino: cannot unmarshal array: %w", err)
	}
	s.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (s NullSlice[T]) Value() (driver.Value, error) {
	if !s.Valid {
		return nil, nil
	}
	b, err := json.Marshal(s.Slice)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NullMap scans MAP columns into Go maps.
type NullMap[K comparable, V any] struct {
	Map   map[K]V
	Valid bool // Valid is true if the value is not NULL
}

var _ sql.Scanner = (*NullMap[string, any])(nil)
var _ driver.Valuer = (*NullMap[string, any])(nil)

// Scan implements sql.Scanner. It expects a JSON string or []byte.
func (m *NullMap[K, V]) Scan(src any) error {
	if src == nil {
		m.Map = nil
		m.Valid = false
		return nil
	}
	data, err := scanBytes(src, "NullMap")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &m.Map); err != nil {
		return fmt.Errorf("trino: cannot unmarshal map: %w", err)
	}
	m.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (m NullMap[K, V]) Value() (driver.Value, error) {
	if !m.Valid {
		return nil, nil
	}
	b, err := json.Marshal(m.Map)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// NullRow scans ROW columns into Go structs or maps. The driver keys the
// JSON form by the row signature's field names (anonymous fields become
// field0, field1, ...), so struct json tags match the declared names.
//
//	type Address struct {
//	    Street string `json:"street"`
//	    City   string `json:"city"`
//	}
//	var addr trino.NullRow[Address]
//	err := row.Scan(&addr)
type NullRow[T any] struct {
	Row   T
	Valid bool // Valid is true if the value is not NULL
}

var _ sql.Scanner = (*NullRow[any])(nil)
var _ driver.Valuer = (*NullRow[any])(nil)

// Scan implements sql.Scanner. It expects a JSON string or []byte.
func (r *NullRow[T]) Scan(src any) error {
	if src == nil {
		var zero T
		r.Row = zero
		r.Valid = false
		return nil
	}
	data, err := scanBytes(src, "NullRow")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, &r.Row); err != nil {
		return fmt.Errorf("trino: cannot unmarshal row: %w", err)
	}
	r.Valid = true
	return nil
}

// Value implements driver.Valuer.
func (r NullRow[T]) Value() (driver.Value, error) {
	if !r.Valid {
		return nil, nil
	}
	b, err := json.Marshal(r.Row)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func scanBytes(src any, into string) ([]byte, error) {
	switch v := src.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		return v, nil
	}
	return nil, fmt.Errorf("trino: cannot scan %T into %s", src, into)
}
