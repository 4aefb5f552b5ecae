package source

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Record is one row of a source's input, keyed by column name. It is the same
// shape the window and join engines consume once a pipeline stage extracts a
// timestamp/key/value out of it.
type Record map[string]any

// EncodeRecords serializes rows as newline-delimited JSON into buf's payload
// region, the simplest row-oriented wire format that still lets a stage decode
// a batch back into typed columns without a generated row layout.
func EncodeRecords(rows []Record) ([]byte, error) {
	var out bytes.Buffer
	enc := jsonAPI.NewEncoder(&out)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			return nil, err
		}
	}
	return out.Bytes(), nil
}

// DecodeRecords parses a newline-delimited JSON payload back into rows.
func DecodeRecords(payload []byte) ([]Record, error) {
	var rows []Record
	dec := jsonAPI.NewDecoder(bytes.NewReader(payload))
	for dec.More() {
		var r Record
		if err := dec.Decode(&r); err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
	return rows, nil
}
