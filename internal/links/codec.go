package links

// STORAGE AND WIRE BOUNDARY:
// Inside the program a List is a plain slice. It only becomes text at two
// edges:
//
//   - the database, where it is one TEXT column (driver.Valuer / sql.Scanner)
//   - the JSON API, where existing clients expect the "links" field of a user
//     to be a JSON *string* holding the encoded array:
//
//	{"handle":"alice","links":"[{\"id\":1,\"name\":\"github\",...}]"}
//
// MarshalJSON produces that double encoding. UnmarshalJSON accepts it, and
// also a raw array, so newer clients can send structured data.

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Encode serializes the list as a JSON array. A nil list encodes as "[]".
func (l List) Encode() (string, error) {
	if l == nil {
		l = List{}
	}
	b, err := json.Marshal([]Link(l))
	if err != nil {
		return "", fmt.Errorf("links: encoding: %w", err)
	}
	return string(b), nil
}

// Decode parses a JSON array produced by Encode. Empty, whitespace-only and
// "null" input yield an empty list rather than an error.
func Decode(s string) (List, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		return List{}, nil
	}

	var raw []Link
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, fmt.Errorf("links: decoding: %w", err)
	}
	if raw == nil {
		return List{}, nil
	}
	return List(raw), nil
}

// MarshalJSON emits the list as a JSON string containing the encoded array.
func (l List) MarshalJSON() ([]byte, error) {
	enc, err := l.Encode()
	if err != nil {
		return nil, err
	}
	return json.Marshal(enc)
}

// UnmarshalJSON accepts a JSON string holding an encoded array or a raw
// array. null leaves the list untouched, so a PATCH body can send it to
// mean "no change".
func (l *List) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("links: decoding string: %w", err)
		}
		decoded, err := Decode(s)
		if err != nil {
			return err
		}
		*l = decoded
		return nil
	case '[':
		var raw []Link
		if err := json.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("links: decoding array: %w", err)
		}
		if raw == nil {
			raw = []Link{}
		}
		*l = List(raw)
		return nil
	default:
		return fmt.Errorf("links: expected a JSON string or array")
	}
}

// Value stores the list in a TEXT column.
func (l List) Value() (driver.Value, error) {
	return l.Encode()
}

// Scan reads the list back from a TEXT column.
func (l *List) Scan(src any) error {
	var s string
	switch v := src.(type) {
	case nil:
		s = ""
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		return fmt.Errorf("links: cannot scan %T into List", src)
	}

	decoded, err := Decode(s)
	if err != nil {
		return err
	}
	*l = decoded
	return nil
}
