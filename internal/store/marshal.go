package store

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/roach88/cleanbook/internal/ir"
)

// encodeCollection converts records to the canonical JSON payload.
// A nil slice is written as [] so the payload never contains null.
func encodeCollection[T ir.Record](records []T) ([]byte, error) {
	if records == nil {
		records = []T{}
	}
	data, err := ir.MarshalCanonical(records)
	if err != nil {
		return nil, fmt.Errorf("encode collection: %w", err)
	}
	return data, nil
}

// decodeCollection parses a payload into records. An empty payload or JSON
// null decodes to an empty collection; anything else that is not an array of
// records is an error, which Load turns into an empty collection.
func decodeCollection[T ir.Record](payload []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []T{}, nil
	}
	var records []T
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode collection: %w", err)
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}
