package derive

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/panel-cli/internal/frame"
)

// sampleLimit bounds the affected-row sample per variable.
const sampleLimit = 20

// VariableOutcome reports, for one derived variable, how many rows ended up
// missing and a bounded sample of their indices so the caller can decide
// whether to drop or impute.
type VariableOutcome struct {
	Variable    string `json:"variable"`
	Citation    string `json:"citation,omitempty"`
	MissingRows int    `json:"missing_rows"`
	SampleRows  []int  `json:"sample_rows,omitempty"`
}

// ApplyReport summarizes one Apply call, in evaluation order.
type ApplyReport struct {
	Outcomes []VariableOutcome `json:"outcomes"`
}

// Options configures one Apply call.
type Options struct {
	// Workers fans row evaluation out across goroutines. Zero or one runs
	// sequentially. Output is identical for any worker count.
	Workers int
}

// Apply computes the requested variables over the dataset, returning a new
// dataset with the derived columns appended. The input dataset is not
// mutated. Dependency cycles and unknown variables fail before any row is
// evaluated; raw inputs absent from the schema are a SchemaError.
func Apply(ctx context.Context, d *frame.Dataset, reg *Registry, requested []string, opts Options) (*frame.Dataset, *ApplyReport, error) {
	ordered, rawInputs, err := reg.Plan(requested)
	if err != nil {
		return nil, nil, err
	}
	if err := d.RequireFields(rawInputs...); err != nil {
		return nil, nil, err
	}

	fields := append([]frame.Field{}, d.Schema().Fields()...)
	for _, def := range ordered {
		if _, exists := d.Schema().Index(def.Name); exists {
			return nil, nil, eris.Errorf("derive: variable %q collides with an existing column", def.Name)
		}
		fields = append(fields, frame.Field{Name: def.Name, Kind: frame.KindNumber})
	}
	schema, err := frame.NewSchema(d.Schema().EntityKey(), d.Schema().TimeKey(), fields)
	if err != nil {
		return nil, nil, eris.Wrap(err, "derive: build output schema")
	}

	rawIdx := make([]int, len(rawInputs))
	for i, name := range rawInputs {
		rawIdx[i], _ = d.Schema().Index(name)
	}

	rows := make([]frame.Row, d.Len())
	missing := make([][]bool, d.Len()) // row x definition

	evalRow := func(i int) {
		in := make(map[string]float64, len(rawInputs)+len(ordered))
		absent := make(map[string]bool)
		src := d.Row(i)

		for k, name := range rawInputs {
			if n, ok := src[rawIdx[k]].Num(); ok {
				in[name] = n
			} else {
				absent[name] = true
			}
		}

		derived := make(frame.Row, len(ordered))
		rowMissing := make([]bool, len(ordered))
		for di, def := range ordered {
			ok := true
			for _, dep := range def.Inputs {
				if absent[dep] {
					ok = false
					break
				}
			}
			var val float64
			if ok {
				val, ok = def.Compute(in)
			}
			if ok {
				in[def.Name] = val
				derived[di] = frame.Number(val)
			} else {
				absent[def.Name] = true
				derived[di] = frame.Missing(frame.KindNumber)
				rowMissing[di] = true
			}
		}

		out := make(frame.Row, 0, len(src)+len(derived))
		out = append(out, src...)
		out = append(out, derived...)
		rows[i] = out
		missing[i] = rowMissing
	}

	if opts.Workers > 1 && d.Len() > 1 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		chunk := (d.Len() + opts.Workers - 1) / opts.Workers
		for lo := 0; lo < d.Len(); lo += chunk {
			hi := min(lo+chunk, d.Len())
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := ctx.Err(); err != nil {
						return err
					}
					evalRow(i)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, nil, eris.Wrap(err, "derive: row workers")
		}
	} else {
		for i := 0; i < d.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, nil, eris.Wrap(err, "derive: cancelled")
			}
			evalRow(i)
		}
	}

	out := frame.New(d.Name(), schema)
	for _, row := range rows {
		if err := out.Append(row); err != nil {
			return nil, nil, eris.Wrap(err, "derive: append row")
		}
	}

	report := &ApplyReport{Outcomes: make([]VariableOutcome, len(ordered))}
	for di, def := range ordered {
		oc := VariableOutcome{Variable: def.Name, Citation: def.Citation}
		for i := range missing {
			if missing[i][di] {
				oc.MissingRows++
				if len(oc.SampleRows) < sampleLimit {
					oc.SampleRows = append(oc.SampleRows, i)
				}
			}
		}
		report.Outcomes[di] = oc
	}

	zap.L().Debug("derived variables applied",
		zap.String("dataset", d.Name()),
		zap.Int("variables", len(ordered)),
		zap.Int("rows", d.Len()),
	)
	return out, report, nil
}
