package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func monthlyPrices(t *testing.T) *Dataset {
	t.Helper()
	schema, err := NewSchema("permno", "month", []Field{
		{Name: "permno", Kind: KindString},
		{Name: "month", Kind: KindPeriod},
		{Name: "prc", Kind: KindNumber},
		{Name: "ret", Kind: KindNumber},
		{Name: "vol", Kind: KindNumber},
	})
	require.NoError(t, err)

	ds, err := FromRecords("prices", schema,
		[]string{"permno", "month", "prc", "ret", "vol"},
		[][]string{
			{"10001", "2020-01", "10", "0.10", "100"},
			{"10001", "2020-02", "11", "-0.05", "200"},
			{"10001", "2020-03", "12", "0.02", "300"},
			{"10001", "2020-04", "13", "0.01", "50"},
			{"20002", "2020-01", "5", "", "10"},
		}, nil)
	require.NoError(t, err)
	return ds
}

func TestAggregate_MonthlyToQuarterly(t *testing.T) {
	ds := monthlyPrices(t)

	out, err := Aggregate(ds, Quarterly, []AggSpec{
		{Field: "prc", Method: AggLast},
		{Field: "ret", Method: AggCompound},
		{Field: "vol", Method: AggSum},
	})
	require.NoError(t, err)
	require.Equal(t, 3, out.Len())

	// Group order follows first appearance.
	assert.Equal(t, "10001", out.Entity(0).Str())
	p, _ := out.Time(0).Period()
	assert.Equal(t, "2020Q1", p.String())

	prc, _ := out.Value(0, "prc").Num()
	assert.Equal(t, 12.0, prc)

	ret, _ := out.Value(0, "ret").Num()
	assert.InDelta(t, 1.10*0.95*1.02-1, ret, 1e-12)

	vol, _ := out.Value(0, "vol").Num()
	assert.Equal(t, 600.0, vol)

	// Q2 has a single month.
	p2, _ := out.Time(1).Period()
	assert.Equal(t, "2020Q2", p2.String())

	// Entity with all-missing returns gets a missing compound return.
	assert.Equal(t, "20002", out.Entity(2).Str())
	assert.True(t, out.Value(2, "ret").IsMissing())
}

func TestAggregate_ToAnnual(t *testing.T) {
	ds := monthlyPrices(t)
	out, err := Aggregate(ds, Annual, []AggSpec{{Field: "vol", Method: AggMean}})
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())

	vol, _ := out.Value(0, "vol").Num()
	assert.InDelta(t, 162.5, vol, 1e-12)
}

func TestAggregate_RejectsCoarserInput(t *testing.T) {
	schema, err := NewSchema("gvkey", "period", []Field{
		{Name: "gvkey", Kind: KindString},
		{Name: "period", Kind: KindPeriod},
		{Name: "v", Kind: KindNumber},
	})
	require.NoError(t, err)

	cases := []struct {
		name   string
		period string
		to     Freq
	}{
		{"annual into quarterly", "2020", Quarterly},
		{"quarterly into quarterly", "2020Q1", Quarterly},
		{"annual into annual", "2020", Annual},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ds, err := FromRecords("x", schema,
				[]string{"gvkey", "period", "v"},
				[][]string{{"001690", tc.period, "1"}}, nil)
			require.NoError(t, err)

			_, err = Aggregate(ds, tc.to, []AggSpec{{Field: "v", Method: AggSum}})
			assert.ErrorContains(t, err, "not finer than")
		})
	}
}

func TestAggregate_QuarterlyToAnnual(t *testing.T) {
	schema, err := NewSchema("gvkey", "period", []Field{
		{Name: "gvkey", Kind: KindString},
		{Name: "period", Kind: KindPeriod},
		{Name: "v", Kind: KindNumber},
	})
	require.NoError(t, err)

	ds, err := FromRecords("x", schema,
		[]string{"gvkey", "period", "v"},
		[][]string{
			{"001690", "2020Q1", "1"},
			{"001690", "2020Q2", "2"},
		}, nil)
	require.NoError(t, err)

	out, err := Aggregate(ds, Annual, []AggSpec{{Field: "v", Method: AggSum}})
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	v, _ := out.Value(0, "v").Num()
	assert.Equal(t, 3.0, v)
}

func TestAggregate_RejectsNonPeriodTimeKey(t *testing.T) {
	schema, err := NewSchema("id", "d", []Field{
		{Name: "id", Kind: KindString},
		{Name: "d", Kind: KindDate},
		{Name: "v", Kind: KindNumber},
	})
	require.NoError(t, err)

	_, err = Aggregate(New("x", schema), Quarterly, []AggSpec{{Field: "v", Method: AggSum}})
	assert.ErrorContains(t, err, "not a period field")
}

func TestAggregate_UnknownField(t *testing.T) {
	ds := monthlyPrices(t)
	_, err := Aggregate(ds, Quarterly, []AggSpec{{Field: "nope", Method: AggSum}})

	var se *SchemaError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, []string{"nope"}, se.Missing)
}
