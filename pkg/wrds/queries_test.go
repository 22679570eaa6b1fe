package wrds

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockClient(t *testing.T) (*Client, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return newWithPool(mock, Config{QueryTimeout: 10 * time.Second}), mock
}

func f64(v float64) *float64 { return &v }

func fundamentalsRow(gvkey, qtr string, assets, ni *float64) []any {
	row := []any{gvkey, qtr, assets, ni}
	// Remaining numeric columns through shares.
	for i := 0; i < 13; i++ {
		row = append(row, f64(1.0))
	}
	return row
}

func TestQuarterlyFundamentals(t *testing.T) {
	c, mock := newMockClient(t)

	cols := []string{
		"gvkey", "datacqtr", "assets", "ni", "seq", "ceq", "dlt", "dlc",
		"che", "dp", "capx", "xrd", "oibdp", "xint", "txt", "prc", "shares",
	}
	rows := pgxmock.NewRows(cols).
		AddRow(fundamentalsRow("001690", "2020Q1", f64(320400.0), f64(11249.0))...).
		AddRow(fundamentalsRow("001690", "2020Q2", f64(317344.0), (*float64)(nil))...)

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 12, 31, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT gvkey,\s+datacqtr`).
		WithArgs(from, to, []string{"001690"}).
		WillReturnRows(rows)

	ds, err := c.QuarterlyFundamentals(context.Background(), RangeQuery{
		From: from, To: to, IDs: []string{"001690"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, "001690", ds.Entity(0).Str())
	p, ok := ds.Time(0).Period()
	require.True(t, ok)
	assert.Equal(t, "2020Q1", p.String())

	assets, ok := ds.Value(0, "assets").Num()
	require.True(t, ok)
	assert.InDelta(t, 320400.0, assets, 1e-9)

	assert.True(t, ds.Value(1, "ni").IsMissing())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuarterlyFundamentals_FullCrossSection(t *testing.T) {
	c, mock := newMockClient(t)

	cols := []string{
		"gvkey", "datacqtr", "assets", "ni", "seq", "ceq", "dlt", "dlc",
		"che", "dp", "capx", "xrd", "oibdp", "xint", "txt", "prc", "shares",
	}
	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC)

	// Empty ID list collapses the ANY filter to NULL.
	mock.ExpectQuery(`SELECT gvkey,\s+datacqtr`).
		WithArgs(from, to, nil).
		WillReturnRows(pgxmock.NewRows(cols))

	ds, err := c.QuarterlyFundamentals(context.Background(), RangeQuery{From: from, To: to})
	require.NoError(t, err)
	assert.Equal(t, 0, ds.Len())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQuarterlyFundamentals_BadPeriod(t *testing.T) {
	c, mock := newMockClient(t)

	cols := []string{
		"gvkey", "datacqtr", "assets", "ni", "seq", "ceq", "dlt", "dlc",
		"che", "dp", "capx", "xrd", "oibdp", "xint", "txt", "prc", "shares",
	}
	rows := pgxmock.NewRows(cols).
		AddRow(fundamentalsRow("001690", "garbage", f64(1.0), f64(1.0))...)

	mock.ExpectQuery(`SELECT gvkey,\s+datacqtr`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnRows(rows)

	_, err := c.QuarterlyFundamentals(context.Background(), RangeQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001690")
}

func TestQuarterlyFundamentals_QueryError(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT gvkey,\s+datacqtr`).
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))

	_, err := c.QuarterlyFundamentals(context.Background(), RangeQuery{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrds: fundamentals query")
}

func TestMonthlyPrices(t *testing.T) {
	c, mock := newMockClient(t)

	rows := pgxmock.NewRows([]string{"permno", "date", "prc", "ret", "vol"}).
		AddRow("14593", time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC), f64(77.38), f64(0.054), f64(1250000.0)).
		AddRow("14593", time.Date(2020, 2, 28, 0, 0, 0, 0, time.UTC), f64(-68.34), (*float64)(nil), f64(990000.0))

	from := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT permno, date, prc, ret, vol`).
		WithArgs(from, to, []string{"14593"}).
		WillReturnRows(rows)

	ds, err := c.MonthlyPrices(context.Background(), RangeQuery{
		From: from, To: to, IDs: []string{"14593"},
	})
	require.NoError(t, err)
	require.Equal(t, 2, ds.Len())

	assert.Equal(t, "14593", ds.Entity(0).Str())
	p, ok := ds.Time(1).Period()
	require.True(t, ok)
	assert.Equal(t, "2020-02", p.String())

	prc, ok := ds.Value(1, "prc").Num()
	require.True(t, ok)
	assert.InDelta(t, -68.34, prc, 1e-9)
	assert.True(t, ds.Value(1, "ret").IsMissing())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkHistory(t *testing.T) {
	c, mock := newMockClient(t)

	start := time.Date(1985, 6, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(1998, 12, 31, 0, 0, 0, 0, time.UTC)
	rows := pgxmock.NewRows([]string{"gvkey", "lpermno", "linktype", "linkdt", "linkenddt"}).
		AddRow("001690", "14593", "LU", &start, &end).
		AddRow("001690", "90319", "LC", &end, (*time.Time)(nil))

	mock.ExpectQuery(`SELECT gvkey, lpermno::text, linktype`).
		WillReturnRows(rows)

	links, err := c.LinkHistory(context.Background())
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "001690", links[0].SourceID)
	assert.Equal(t, "14593", links[0].TargetID)
	assert.Equal(t, "LU", links[0].Type)
	assert.Equal(t, end, links[0].ValidTo)

	// NULL end date means the link is still open.
	assert.True(t, links[1].ValidTo.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLinkHistory_QueryError(t *testing.T) {
	c, mock := newMockClient(t)

	mock.ExpectQuery(`SELECT gvkey, lpermno::text, linktype`).
		WillReturnError(errors.New("permission denied"))

	_, err := c.LinkHistory(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrds: link history query")
}

func TestIDsParam(t *testing.T) {
	assert.Nil(t, idsParam(nil))
	assert.Nil(t, idsParam([]string{}))
	assert.Equal(t, []string{"a", "b"}, idsParam([]string{"a", "b"}))
}
