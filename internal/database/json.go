package database

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// JsonColumn is a container for values which are stored in a
// single TEXT/JSON column. The value is encoded without HTML
// escaping so that non-ASCII labels are stored as-is.
type JsonColumn[T any] struct {
	val T
}

func NewJsonColumn[T any](v T) JsonColumn[T] {
	return JsonColumn[T]{val: v}
}

func (j *JsonColumn[T]) Get() *T {
	return &j.val
}

func (j JsonColumn[T]) Value() (driver.Value, error) {
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(j.val); err != nil {
		return nil, err
	}

	return strings.TrimRight(buf.String(), "\n"), nil
}

func (j *JsonColumn[T]) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		var zero T
		j.val = zero
		return nil
	case []byte:
		return json.Unmarshal(v, &j.val)
	case string:
		return json.Unmarshal([]byte(v), &j.val)
	default:
		return fmt.Errorf("cannot scan %T in to JsonColumn", src)
	}
}
