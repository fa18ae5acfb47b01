package csvsource_test

import (
	"encoding/csv"
	"io"
	"strings"
	"testing"

	"github.com/jrsteele09/go-identity-client/bulk/csvsource"
	"github.com/stretchr/testify/require"
)

func readAll(t *testing.T, s *csvsource.Source) []string {
	t.Helper()
	var records []string
	for {
		r, err := s.Next()
		if err == io.EOF {
			return records
		}
		require.NoError(t, err)
		records = append(records, string(r))
	}
}

func TestSource_Rows(t *testing.T) {
	input := "\ufeffrecipeId, rating ,comment\n" +
		"r1,5,\"Great, would cook again\"\n" +
		"r2,3,\"said \"\"meh\"\"\"\n"

	s, err := csvsource.New(strings.NewReader(input))
	require.NoError(t, err)
	require.Equal(t, []string{"recipeId", "rating", "comment"}, s.Header())

	records := readAll(t, s)
	require.Equal(t, []string{
		`{"recipeId":"r1","rating":"5","comment":"Great, would cook again"}`,
		`{"recipeId":"r2","rating":"3","comment":"said \"meh\""}`,
	}, records)
}

func TestSource_Empty(t *testing.T) {
	s, err := csvsource.New(strings.NewReader(""))
	require.NoError(t, err)
	require.Empty(t, s.Header())
	require.Empty(t, readAll(t, s))

	s, err = csvsource.New(strings.NewReader("a,b\n"))
	require.NoError(t, err)
	require.Empty(t, readAll(t, s))
}

func TestSource_Comma(t *testing.T) {
	s, err := csvsource.New(strings.NewReader("a;b\n1;2\n"), csvsource.WithComma(';'))
	require.NoError(t, err)
	require.Equal(t, []string{`{"a":"1","b":"2"}`}, readAll(t, s))
}

func TestSource_DuplicateColumn(t *testing.T) {
	_, err := csvsource.New(strings.NewReader("id,name,id\n"))
	require.ErrorIs(t, err, csvsource.ErrDuplicateColumn)
}

func TestSource_FieldCountMismatch(t *testing.T) {
	s, err := csvsource.New(strings.NewReader("a,b\n1,2\n3\n4,5\n"))
	require.NoError(t, err)

	first, err := s.Next()
	require.NoError(t, err)
	require.JSONEq(t, `{"a":"1","b":"2"}`, string(first))

	_, err = s.Next()
	require.ErrorIs(t, err, csv.ErrFieldCount)
	require.ErrorContains(t, err, "line 3")
}
