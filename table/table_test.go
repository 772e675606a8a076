package table

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_PreservesColumns(t *testing.T) {
	input := "id\tstring\tsource\n1\tJohn Smith\tcrm\n2\tAcme Corp\tledger\n"

	tbl, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, []string{"id", "string", "source"}, tbl.Header())
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, []string{"2", "Acme Corp", "ledger"}, tbl.Row(1))

	values, err := tbl.Column("string")
	require.NoError(t, err)
	assert.Equal(t, []string{"John Smith", "Acme Corp"}, values)
}

func TestRead_QuotedFields(t *testing.T) {
	input := "string\tnote\n\"Smith\tJohn\"\tquoted tab\nO\"Brien\tbare quote\n"

	tbl, err := Read(strings.NewReader(input))
	require.NoError(t, err)

	values, err := tbl.Column("string")
	require.NoError(t, err)
	assert.Equal(t, []string{"Smith\tJohn", "O\"Brien"}, values)
}

func TestRead_Errors(t *testing.T) {
	testCases := []struct {
		name      string
		input     string
		malformed bool
	}{
		{name: "empty input", input: ""},
		{name: "too many fields", input: "string\tid\nJohn\t1\textra\n", malformed: true},
		{name: "too few fields", input: "string\tid\nJohn\n", malformed: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tc.input))
			require.Error(t, err)
			assert.Equal(t, tc.malformed, errors.Is(err, ErrMalformedRow))
		})
	}
}

func TestColumn_Missing(t *testing.T) {
	tbl, err := New([]string{"name"}, [][]string{{"John"}})
	require.NoError(t, err)

	_, err = tbl.Column("string")
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestNew_RejectsRaggedRows(t *testing.T) {
	_, err := New([]string{"a", "b"}, [][]string{{"1", "2"}, {"3"}})
	assert.ErrorIs(t, err, ErrMalformedRow)
}

func TestSetColumn(t *testing.T) {
	tbl, err := New([]string{"string"}, [][]string{{"John"}, {"Acme"}})
	require.NoError(t, err)

	require.NoError(t, tbl.SetColumn("is_person_name", []string{"True", "False"}))
	assert.Equal(t, []string{"string", "is_person_name"}, tbl.Header())
	assert.Equal(t, []string{"Acme", "False"}, tbl.Row(1))

	// Setting an existing column overwrites it in place
	require.NoError(t, tbl.SetColumn("is_person_name", []string{"False", "True"}))
	assert.Equal(t, []string{"string", "is_person_name"}, tbl.Header())
	assert.Equal(t, []string{"John", "False"}, tbl.Row(0))

	assert.Error(t, tbl.SetColumn("probabilities", []string{"0.1"}))
}

func TestWrite_RoundTripsHeaderAndRows(t *testing.T) {
	tbl, err := New([]string{"string", "note"}, [][]string{{"John Smith", "a\tb"}, {"Acme", ""}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	assert.Equal(t, "string\tnote\nJohn Smith\t\"a\tb\"\nAcme\t\n", buf.String())

	back, err := Read(&buf)
	require.NoError(t, err)
	assert.Equal(t, tbl.Header(), back.Header())
	assert.Equal(t, tbl.Row(0), back.Row(0))
}

func TestRead_StripsByteOrderMark(t *testing.T) {
	tbl, err := Read(strings.NewReader("\ufeffstring\tid\nJohn\t1\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"string", "id"}, tbl.Header())

	names, err := tbl.Column("string")
	require.NoError(t, err)
	assert.Equal(t, []string{"John"}, names)
}

func TestWrite_QuotesOnlyWhenNeeded(t *testing.T) {
	tbl, err := New([]string{"string"}, [][]string{{" Bob"}, {"say \"hi\""}, {"two\nlines"}, {""}})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tbl.Write(&buf))
	assert.Equal(t, "string\n Bob\n\"say \"\"hi\"\"\"\n\"two\nlines\"\n\"\"\n", buf.String())

	back, err := Read(&buf)
	require.NoError(t, err)
	require.Equal(t, tbl.Len(), back.Len())
	for i := 0; i < tbl.Len(); i++ {
		assert.Equal(t, tbl.Row(i), back.Row(i))
	}
}

func TestReadWriteTSV_Files(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.tsv")
	out := filepath.Join(dir, "out.tsv")
	require.NoError(t, os.WriteFile(in, []byte("string\nJohn\n"), 0600))

	tbl, err := ReadTSV(in)
	require.NoError(t, err)
	require.NoError(t, tbl.WriteTSV(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "string\nJohn\n", string(data))

	_, err = ReadTSV(filepath.Join(dir, "missing.tsv"))
	assert.Error(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "True", FormatBool(true))
	assert.Equal(t, "False", FormatBool(false))
	assert.Equal(t, "0.5", FormatFloat32(0.5))
	assert.Equal(t, "0.1", FormatFloat32(0.1))
	assert.Equal(t, "1", FormatFloat32(1))
}
