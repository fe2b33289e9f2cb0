package metadata

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// EncodeJSON serializes a document for backends that store opaque bytes.
func EncodeJSON(doc Document) ([]byte, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return data, nil
}

// DecodeJSON parses bytes written by EncodeJSON. Numbers come back as
// json.Number so large sizes keep their precision.
func DecodeJSON(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	doc := Document{}
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	return doc, nil
}
