package apiclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Int is an integer field. The API returns integers as strings; Int accepts
// both forms and always encodes as a number.
type Int int

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*i = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("integer field: %w", err)
		}
		*i = Int(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*i = Int(n)
	return nil
}
