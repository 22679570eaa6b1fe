package frame

import (
	"github.com/rotisserie/eris"
)

// AggMethod selects how a numeric field collapses when rows are re-bucketed
// to a coarser frequency.
type AggMethod string

const (
	AggLast     AggMethod = "last"     // last non-missing in the bucket (prices, shares)
	AggFirst    AggMethod = "first"    // first non-missing in the bucket
	AggSum      AggMethod = "sum"      // sum of non-missing (volume)
	AggMean     AggMethod = "mean"     // mean of non-missing
	AggCompound AggMethod = "compound" // prod(1+r)-1 over non-missing (returns)
)

// AggSpec maps one numeric field to an aggregation method.
type AggSpec struct {
	Field  string    `yaml:"field" json:"field"`
	Method AggMethod `yaml:"method" json:"method"`
}

// Aggregate re-buckets a dataset with a period time key to a coarser
// frequency, collapsing each (entity, coarse period) group per the specs.
// Fields not named in a spec are dropped; the time key of the result carries
// the coarse period. Group order follows first appearance so output is
// deterministic for a given input order.
func Aggregate(d *Dataset, to Freq, specs []AggSpec) (*Dataset, error) {
	schema := d.Schema()
	timeIdx, _ := schema.Index(schema.TimeKey())
	if schema.Fields()[timeIdx].Kind != KindPeriod {
		return nil, eris.Errorf("aggregate: time key %q of %s is not a period field", schema.TimeKey(), d.Name())
	}

	var specNames []string
	for _, sp := range specs {
		specNames = append(specNames, sp.Field)
	}
	if err := d.RequireFields(specNames...); err != nil {
		return nil, err
	}

	entityIdx, _ := schema.Index(schema.EntityKey())
	entityKind := schema.Fields()[entityIdx].Kind

	outFields := []Field{
		{Name: schema.EntityKey(), Kind: entityKind},
		{Name: schema.TimeKey(), Kind: KindPeriod},
	}
	for _, sp := range specs {
		outFields = append(outFields, Field{Name: sp.Field, Kind: KindNumber})
	}
	outSchema, err := NewSchema(schema.EntityKey(), schema.TimeKey(), outFields)
	if err != nil {
		return nil, err
	}

	type groupKey struct {
		entity string
		period Period
	}
	type group struct {
		entity Value
		period Period
		values [][]float64 // per spec, non-missing values in row order
	}

	var order []groupKey
	groups := make(map[groupKey]*group)

	for i := 0; i < d.Len(); i++ {
		p, ok := d.Time(i).Period()
		if !ok {
			continue // rows without a period cannot be bucketed
		}
		if p.Freq >= to {
			return nil, eris.Errorf("aggregate: row %d period %s is not finer than %s", i, p, to)
		}
		var coarse Period
		switch to {
		case Quarterly:
			coarse = p.Quarter()
		case Annual:
			coarse = p.YearPeriod()
		default:
			return nil, eris.Errorf("aggregate: target frequency %s not coarser than source", to)
		}

		gk := groupKey{entity: d.Entity(i).Key(), period: coarse}
		g := groups[gk]
		if g == nil {
			g = &group{entity: d.Entity(i), period: coarse, values: make([][]float64, len(specs))}
			groups[gk] = g
			order = append(order, gk)
		}
		for si, sp := range specs {
			if n, ok := d.Value(i, sp.Field).Num(); ok {
				g.values[si] = append(g.values[si], n)
			}
		}
	}

	out := New(d.Name(), outSchema)
	for _, gk := range order {
		g := groups[gk]
		row := Row{g.entity, PeriodValue(g.period)}
		for si, sp := range specs {
			row = append(row, collapse(g.values[si], sp.Method))
		}
		out.rows = append(out.rows, row)
	}
	return out, nil
}

func collapse(vals []float64, m AggMethod) Value {
	if len(vals) == 0 {
		return Missing(KindNumber)
	}
	switch m {
	case AggLast:
		return Number(vals[len(vals)-1])
	case AggFirst:
		return Number(vals[0])
	case AggSum:
		var s float64
		for _, v := range vals {
			s += v
		}
		return Number(s)
	case AggMean:
		var s float64
		for _, v := range vals {
			s += v
		}
		return Number(s / float64(len(vals)))
	case AggCompound:
		acc := 1.0
		for _, v := range vals {
			acc *= 1 + v
		}
		return Number(acc - 1)
	default:
		return Missing(KindNumber)
	}
}
