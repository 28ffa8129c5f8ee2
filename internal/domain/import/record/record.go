// Package record holds the loosely-typed row shape produced by the format parsers.
package record

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Kind tags the scalar held by a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindString
	KindNumber
)

// Value is a raw cell: a string, a number or null.
type Value struct {
	kind Kind
	str  string
	num  float64
}

// String wraps text. Blank text becomes Null.
func String(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Null()
	}
	return Value{kind: KindString, str: s}
}

// Number wraps a numeric cell.
func Number(f float64) Value {
	return Value{kind: KindNumber, num: f}
}

// Null is the absent value.
func Null() Value {
	return Value{}
}

func (v Value) Kind() Kind   { return v.kind }
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text renders the value as trimmed text; numbers use the shortest exact form.
func (v Value) Text() string {
	switch v.kind {
	case KindString:
		return strings.TrimSpace(v.str)
	case KindNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	}
	return ""
}

// Float returns the numeric payload of a Number value.
func (v Value) Float() (float64, bool) {
	return v.num, v.kind == KindNumber
}

func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindString:
		return json.Marshal(v.str)
	case KindNumber:
		return json.Marshal(v.num)
	}
	return []byte("null"), nil
}

// RawRow is one data row keyed by column identifier, in source column order.
type RawRow struct {
	Line    int // 1-based data row number
	columns []string
	values  map[string]Value
}

// NewRawRow returns an empty row for the given data row number.
func NewRawRow(line int) RawRow {
	return RawRow{Line: line, values: make(map[string]Value)}
}

// Set stores a value; the first Set of a column fixes its position.
func (r *RawRow) Set(column string, v Value) {
	if r.values == nil {
		r.values = make(map[string]Value)
	}
	if _, ok := r.values[column]; !ok {
		r.columns = append(r.columns, column)
	}
	r.values[column] = v
}

// Get returns the value for column, or Null when the column is unknown.
func (r RawRow) Get(column string) Value {
	return r.values[column]
}

// Columns returns the column identifiers in source order.
func (r RawRow) Columns() []string {
	return append([]string(nil), r.columns...)
}

// Empty reports whether every cell is null.
func (r RawRow) Empty() bool {
	for _, v := range r.values {
		if !v.IsNull() {
			return false
		}
	}
	return true
}

// MarshalJSON writes the row as an object with keys in source order.
func (r RawRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range r.columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		val, err := r.values[col].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
