package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/strata/internal/ir"
)

// marshalAttrs converts attributes to canonical JSON TEXT for storage.
// Uses RFC 8785 canonical JSON so json_extract sees NFC strings.
func marshalAttrs(attrs ir.IRObject) (string, error) {
	if attrs == nil {
		attrs = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(attrs)
	if err != nil {
		return "", fmt.Errorf("marshal attrs: %w", err)
	}
	return string(data), nil
}

// unmarshalAttrs parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON which handles large integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalAttrs(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal attrs: %w", err)
	}
	return obj, nil
}
