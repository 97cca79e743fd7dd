package database

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Row is a single result row, keyed by column name.
type Row map[string]any

var ErrInvalidParams = errors.New("invalid statement parameters")

// checkParams rejects any parameter the driver could not accept before
// the statement reaches the driver.
func checkParams(params []any) error {
	for i, p := range params {
		if p == nil {
			continue
		}

		if _, ok := p.(driver.Valuer); ok {
			continue
		}

		if _, err := driver.DefaultParameterConverter.ConvertValue(p); err != nil {
			return fmt.Errorf("%w: parameter %d (%T): %s", ErrInvalidParams, i, p, err)
		}
	}

	return nil
}

func sortedColumns(fields map[string]any) []string {
	columns := make([]string, 0, len(fields))
	for col := range fields {
		columns = append(columns, col)
	}
	sort.Strings(columns)

	return columns
}

// newRow normalizes the raw values scanned from the driver; text columns
// returned as byte slices are converted to strings.
func newRow(raw map[string]any) Row {
	row := make(Row, len(raw))
	for k, v := range raw {
		if b, ok := v.([]byte); ok {
			row[k] = string(b)
		} else {
			row[k] = v
		}
	}

	return row
}

func (r Row) String(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func (r Row) Int64(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case int32:
		return int64(v)
	case float64:
		return int64(v)
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	default:
		return 0
	}
}

// Time returns the column as a time. Drivers differ in whether timestamps
// are returned as time.Time or as text, so both are accepted.
func (r Row) Time(col string) time.Time {
	switch v := r[col].(type) {
	case time.Time:
		return v
	case string:
		return parseTimestamp(v)
	default:
		return time.Time{}
	}
}

func parseTimestamp(s string) time.Time {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05.999999999-07:00",
		"2006-01-02 15:04:05.999999999 -0700 MST",
		"2006-01-02 15:04:05-07:00",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05Z",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t
		}
	}

	return time.Time{}
}
