package security

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxJSONDepth bounds the nesting of request bodies. Chat payloads
// are shallow: an object holding an array of flat message objects.
const DefaultMaxJSONDepth = 32

// Validation errors.
var (
	ErrJSONTooDeep = errors.New("JSON nesting exceeds maximum depth")
	ErrInvalidJSON = errors.New("invalid JSON")
)

// ValidateJSONDepth checks that the JSON in data does not nest deeper than
// limit levels, without building the decoded value. If limit is <= 0,
// DefaultMaxJSONDepth is used.
func ValidateJSONDepth(data []byte, limit int) error {
	if limit <= 0 {
		limit = DefaultMaxJSONDepth
	}
	if len(data) == 0 {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	depth := 0

	for {
		tok, err := dec.Token()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("%w: %w", ErrInvalidJSON, err)
		}

		switch tok {
		case json.Delim('{'), json.Delim('['):
			depth++
			if depth > limit {
				return fmt.Errorf("%w: depth %d (max %d)", ErrJSONTooDeep, depth, limit)
			}
		case json.Delim('}'), json.Delim(']'):
			depth--
		}
	}
}
