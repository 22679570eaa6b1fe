package fetcher

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pricesCSV = `permno,date,prc,vol
12490,2020-01-31, -42.5 ,100
12490,2020-02-28,43.1,200
`

func TestReadCSV(t *testing.T) {
	header, records, err := ReadCSV(strings.NewReader(pricesCSV), CSVOptions{TrimSpace: true})
	require.NoError(t, err)

	assert.Equal(t, []string{"permno", "date", "prc", "vol"}, header)
	require.Len(t, records, 2)
	assert.Equal(t, "-42.5", records[0][2])
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty input")
}

func TestReadCSV_PipeDelimited(t *testing.T) {
	in := "gvkey|datacqtr\n001690|2020Q1\n"
	header, records, err := ReadCSV(strings.NewReader(in), CSVOptions{Delimiter: '|'})
	require.NoError(t, err)
	assert.Equal(t, []string{"gvkey", "datacqtr"}, header)
	require.Len(t, records, 1)
	assert.Equal(t, "2020Q1", records[0][1])
}

func TestStreamCSV(t *testing.T) {
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(pricesCSV), CSVOptions{TrimSpace: true})

	var rows [][]string
	for row := range rowCh {
		rows = append(rows, row)
	}
	require.NoError(t, <-errCh)

	// Header comes through the row channel; the caller peels it off.
	require.Len(t, rows, 3)
	assert.Equal(t, "permno", rows[0][0])
	assert.Equal(t, "12490", rows[1][0])
}

func TestStreamCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rowCh, errCh := StreamCSV(ctx, strings.NewReader(pricesCSV), CSVOptions{})
	for range rowCh {
	}
	err := <-errCh
	require.Error(t, err)
	assert.Contains(t, err.Error(), "context cancelled")
}

func TestStreamCSV_BadQuote(t *testing.T) {
	in := "a,b\n\"unterminated,1\n"
	rowCh, errCh := StreamCSV(context.Background(), strings.NewReader(in), CSVOptions{})
	for range rowCh {
	}
	assert.Error(t, <-errCh)
}
