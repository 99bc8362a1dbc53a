// Package catalog loads product catalogs and prior stage output into ordered records.
//
// Sources may be CSV with a header row, JSONL, or XLSX, either local or fetched
// through go-getter. Records keep their column order so that anything written back
// out matches the source layout.
package catalog

import (
	"bytes"
	"encoding/json"

	"github.com/teranos/shopper/errors"
)

// Catalog field names every product row is expected to carry
const (
	FieldProductID   = "product_id"
	FieldProductName = "product_name"
)

// Record is one catalog row: field names mapped to string values, in source column order.
// Records are immutable once loaded.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord builds a record from parallel key and value slices.
// Missing values become empty strings; extra values are dropped.
func NewRecord(keys, values []string) Record {
	r := Record{
		keys:   make([]string, 0, len(keys)),
		values: make(map[string]string, len(keys)),
	}
	for i, key := range keys {
		if _, dup := r.values[key]; dup {
			continue
		}
		var value string
		if i < len(values) {
			value = values[i]
		}
		r.keys = append(r.keys, key)
		r.values[key] = value
	}
	return r
}

// Get returns the value of a field, or "" when absent.
func (r Record) Get(key string) string {
	return r.values[key]
}

// Lookup returns the value of a field and whether it is present.
func (r Record) Lookup(key string) (string, bool) {
	v, ok := r.values[key]
	return v, ok
}

// Keys returns field names in source order.
func (r Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

// Len returns the number of fields.
func (r Record) Len() int { return len(r.keys) }

// ID returns the product_id field.
func (r Record) ID() string { return r.values[FieldProductID] }

// Name returns the product_name field.
func (r Record) Name() string { return r.values[FieldProductName] }

// Fields returns a copy of the record as a plain map.
func (r Record) Fields() map[string]string {
	out := make(map[string]string, len(r.values))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON writes the record as a JSON object in source column order.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range r.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r.values[key])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a flat JSON object, keeping key order.
// Non-string values are kept as their raw JSON text.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return errors.Wrap(err, "read record")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return errors.NewInvalidRequestError("record must be a JSON object")
	}

	var keys, values []string
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return errors.Wrap(err, "read record key")
		}
		key, ok := tok.(string)
		if !ok {
			return errors.NewInvalidRequestError("record key must be a string")
		}

		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return errors.Wrapf(err, "read value for %q", key)
		}

		var value string
		if err := json.Unmarshal(raw, &value); err != nil {
			value = string(bytes.TrimSpace(raw))
			if value == "null" {
				value = ""
			}
		}

		keys = append(keys, key)
		values = append(values, value)
	}

	*r = NewRecord(keys, values)
	return nil
}
