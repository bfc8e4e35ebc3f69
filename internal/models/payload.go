// Package models provides data model definitions for the offline sync subsystem.
package models

import (
	"bytes"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"

	json "github.com/goccy/go-json"
)

// Payload is the field-name to value mapping of a record destined for the
// remote store. It is written verbatim; no schema is enforced beyond the
// checks in Validate. An empty payload is valid and leaves every column of
// the remote row at its default.
type Payload map[string]any

// Validate checks the payload at the write boundary.
func (p Payload) Validate() error {
	for k := range p {
		if strings.TrimSpace(k) == "" {
			return fmt.Errorf("payload field names must not be empty")
		}
	}
	return nil
}

// Keys returns the field names in a stable order.
func (p Payload) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy so callers cannot mutate a queued payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Value implements driver.Valuer for Payload.
func (p Payload) Value() (driver.Value, error) {
	data, err := p.MarshalJSON()
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner for Payload.
func (p *Payload) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*p = nil
		return nil
	case string:
		return p.UnmarshalJSON([]byte(v))
	case []byte:
		return p.UnmarshalJSON(v)
	default:
		return fmt.Errorf("payload: unsupported scan type %T", value)
	}
}

// MarshalJSON encodes the payload as a JSON object.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(p))
}

// UnmarshalJSON decodes a JSON object, keeping numbers as json.Number so
// integer identifiers survive the round trip without float rounding.
func (p *Payload) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("payload: decode: %w", err)
	}
	*p = Payload(m)
	return nil
}

// ParsePayload decodes a JSON object supplied by a caller.
func ParsePayload(raw string) (Payload, error) {
	var p Payload
	if err := p.UnmarshalJSON([]byte(raw)); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}
