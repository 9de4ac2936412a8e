// Package jsonx holds helpers for pulling JSON objects out of model output.
package jsonx

import (
	"encoding/json"
	"errors"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoObject is returned when text contains no balanced JSON object.
var ErrNoObject = errors.New("no JSON object found")

// FirstObject returns the first balanced {...} span in text. Braces inside
// string literals are ignored.
func FirstObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			if start >= 0 {
				inString = true
			}
		case '{':
			if start < 0 {
				start = i
			}
			depth++
		case '}':
			if start < 0 {
				continue
			}
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// DecodeObject extracts the first object from text and strictly decodes it into v.
func DecodeObject(text string, v any) error {
	obj, ok := FirstObject(text)
	if !ok {
		return ErrNoObject
	}
	return json.Unmarshal([]byte(obj), v)
}

// DecodeLenient extracts the first object from text and decodes it into v,
// repairing malformed JSON when the plain decode hits a syntax error.
func DecodeLenient(text string, v any) error {
	obj, ok := FirstObject(text)
	if !ok {
		// An unterminated object can still be repaired.
		obj = text
	}
	return unmarshalRepair([]byte(obj), v)
}

func unmarshalRepair(data []byte, v any) error {
	err := json.Unmarshal(data, v)
	if err == nil {
		return nil
	}
	var syntaxErr *json.SyntaxError
	if !errors.As(err, &syntaxErr) {
		return err
	}
	fixed, rerr := jsonrepair.JSONRepair(string(data))
	if rerr != nil {
		return err
	}
	return json.Unmarshal([]byte(fixed), v)
}
