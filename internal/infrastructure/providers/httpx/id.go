package httpx

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ID decodes identifiers that providers send either as JSON numbers or strings
type ID string

// UnmarshalJSON accepts 426101474, "426101474" and null
func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*id = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid id %s: %w", string(b), err)
	}
	*id = ID(n.String())
	return nil
}

// String returns the identifier as text
func (id ID) String() string {
	return string(id)
}
