// Package jsonutil reads loosely typed JSON from external services.
package jsonutil

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// CodeString reads a concept code that a service may send as a string or a number.
// RxNorm CUIs in particular arrive as bare integers from some coding services. Integral
// numbers keep every digit. null, empty and non-scalar values yield "".
func CodeString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}

	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	case '{', '[', 't', 'f':
		return ""
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return ""
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10)
	}
	if f, err := n.Float64(); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	return n.String()
}
