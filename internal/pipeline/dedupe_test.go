package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panel-cli/internal/frame"
)

func dupDataset(t *testing.T) *frame.Dataset {
	t.Helper()
	schema, err := frame.NewSchema("id", "t", []frame.Field{
		{Name: "id", Kind: frame.KindString},
		{Name: "t", Kind: frame.KindPeriod},
		{Name: "x", Kind: frame.KindNumber},
	})
	require.NoError(t, err)

	ds := frame.New("panel", schema)
	q1 := frame.PeriodValue(frame.Period{Year: 2020, Sub: 1, Freq: frame.Quarterly})
	for _, row := range []frame.Row{
		{frame.String("A"), q1, frame.Number(1)},
		{frame.String("A"), q1, frame.Number(2)},
		{frame.String("B"), q1, frame.Number(3)},
	} {
		require.NoError(t, ds.Append(row))
	}
	return ds
}

func TestDropDuplicateKeys(t *testing.T) {
	ds := dupDataset(t)

	out, removed := DropDuplicateKeys(ds)
	assert.Equal(t, 1, removed)
	require.Equal(t, 2, out.Len())

	// The first row of the duplicated key wins.
	x, ok := out.Value(0, "x").Num()
	require.True(t, ok)
	assert.Equal(t, 1.0, x)

	// The input is untouched.
	assert.Equal(t, 3, ds.Len())
}

func TestDropDuplicateKeys_NoDuplicates(t *testing.T) {
	schema, err := frame.NewSchema("id", "t", []frame.Field{
		{Name: "id", Kind: frame.KindString},
		{Name: "t", Kind: frame.KindPeriod},
	})
	require.NoError(t, err)
	ds := frame.New("panel", schema)

	out, removed := DropDuplicateKeys(ds)
	assert.Zero(t, removed)
	assert.Zero(t, out.Len())
}
