package derive

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/frame"
)

// Winsorize clips the named numeric fields at the given percentiles
// (e.g. 0.01 and 0.99, the research default) and returns a new dataset.
// Percentiles use linear interpolation between order statistics. Missing
// values pass through untouched.
func Winsorize(d *frame.Dataset, fields []string, lower, upper float64) (*frame.Dataset, error) {
	if lower < 0 || upper > 1 || lower >= upper {
		return nil, eris.Errorf("winsorize: bad percentile bounds [%g, %g]", lower, upper)
	}
	if err := d.RequireFields(fields...); err != nil {
		return nil, err
	}

	type bound struct {
		idx      int
		lo, hi   float64
		hasBound bool
	}
	bounds := make([]bound, 0, len(fields))
	for _, name := range fields {
		idx, _ := d.Schema().Index(name)
		var vals []float64
		for i := 0; i < d.Len(); i++ {
			if n, ok := d.Row(i)[idx].Num(); ok && !math.IsNaN(n) && !math.IsInf(n, 0) {
				vals = append(vals, n)
			}
		}
		b := bound{idx: idx}
		if len(vals) > 0 {
			sort.Float64s(vals)
			b.lo = quantile(vals, lower)
			b.hi = quantile(vals, upper)
			b.hasBound = true
		}
		bounds = append(bounds, b)
	}

	out := frame.New(d.Name(), d.Schema())
	for i := 0; i < d.Len(); i++ {
		row := append(frame.Row{}, d.Row(i)...)
		for _, b := range bounds {
			if !b.hasBound {
				continue
			}
			if n, ok := row[b.idx].Num(); ok {
				row[b.idx] = frame.Number(math.Min(math.Max(n, b.lo), b.hi))
			}
		}
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// DropNonFinite replaces NaN and infinite values in the named numeric
// fields with missing, keeping exports compatible with downstream
// statistical tooling.
func DropNonFinite(d *frame.Dataset, fields []string) (*frame.Dataset, error) {
	if err := d.RequireFields(fields...); err != nil {
		return nil, err
	}
	idxs := make([]int, len(fields))
	for i, name := range fields {
		idxs[i], _ = d.Schema().Index(name)
	}

	out := frame.New(d.Name(), d.Schema())
	for i := 0; i < d.Len(); i++ {
		row := append(frame.Row{}, d.Row(i)...)
		for _, idx := range idxs {
			if n, ok := row[idx].Num(); ok && (math.IsNaN(n) || math.IsInf(n, 0)) {
				row[idx] = frame.Missing(frame.KindNumber)
			}
		}
		if err := out.Append(row); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// quantile returns the q-th quantile of sorted vals with linear
// interpolation.
func quantile(vals []float64, q float64) float64 {
	if len(vals) == 1 {
		return vals[0]
	}
	pos := q * float64(len(vals)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return vals[lo]
	}
	frac := pos - float64(lo)
	return vals[lo]*(1-frac) + vals[hi]*frac
}
