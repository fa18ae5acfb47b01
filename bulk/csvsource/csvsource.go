// Package csvsource reads a CSV file with a header row as a stream of JSON records, one
// object per row with the header names as keys and the cells as string values.
package csvsource

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/jrsteele09/go-identity-client/bulk"
)

var ErrDuplicateColumn = errors.New("duplicate column")

// Source implements bulk.RecordSource over a CSV stream.
type Source struct {
	reader *csv.Reader
	header []string
	keys   [][]byte // JSON encoded header names
	line   int
}

var _ bulk.RecordSource = (*Source)(nil)

// SourceOption defines a function type to modify the Source instance.
type SourceOption func(*csv.Reader)

// WithComma sets the field delimiter. Default ','.
func WithComma(comma rune) SourceOption {
	return func(r *csv.Reader) {
		r.Comma = comma
	}
}

// New reads the header row of r. An empty input yields a Source with no records.
func New(r io.Reader, options ...SourceOption) (*Source, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true
	for _, opt := range options {
		opt(reader)
	}

	s := &Source{reader: reader}
	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[csvsource.New] reading header: %w", err)
	}

	seen := make(map[string]bool, len(header))
	for _, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if seen[name] {
			return nil, fmt.Errorf("[csvsource.New] %w: %q", ErrDuplicateColumn, name)
		}
		seen[name] = true
		key, err := json.Marshal(name)
		if err != nil {
			return nil, fmt.Errorf("[csvsource.New] %w", err)
		}
		s.header = append(s.header, name)
		s.keys = append(s.keys, key)
	}
	s.line = 1
	return s, nil
}

// Header returns the column names.
func (s *Source) Header() []string {
	return append([]string(nil), s.header...)
}

// Next returns the next row as a JSON object with keys in column order.
func (s *Source) Next() ([]byte, error) {
	if s.header == nil {
		return nil, io.EOF
	}
	row, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	s.line++
	if err != nil {
		return nil, fmt.Errorf("[Source.Next] line %d: %w", s.line, err)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cell := range row {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(s.keys[i])
		buf.WriteByte(':')
		value, err := json.Marshal(cell)
		if err != nil {
			return nil, fmt.Errorf("[Source.Next] line %d: %w", s.line, err)
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
