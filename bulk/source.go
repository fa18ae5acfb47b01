package bulk

import (
	"encoding/json"
	"fmt"
	"io"
)

// RecordSource yields serialized records in upload order. Next returns io.EOF once the
// source is exhausted.
type RecordSource interface {
	Next() ([]byte, error)
}

type sliceSource struct {
	records [][]byte
	pos     int
}

// Records returns a RecordSource over already serialized records.
func Records(records ...[]byte) RecordSource {
	return &sliceSource{records: records}
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	r := s.records[s.pos]
	s.pos++
	return r, nil
}

// JSONRecords serializes each value with encoding/json and returns them as a RecordSource.
func JSONRecords[T any](values []T) (RecordSource, error) {
	records := make([][]byte, 0, len(values))
	for i, v := range values {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("[bulk.JSONRecords] record %d: %w", i, err)
		}
		records = append(records, b)
	}
	return Records(records...), nil
}
