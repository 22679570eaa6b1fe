// Package merge joins two datasets on a resolved entity key and a time
// alignment rule, partitioning the outcome into matched, left-only,
// right-only, and dropped rows. Row conditions (no active link, ambiguous
// link, multiple match) degrade single rows and are reported, never silently
// resolved; only absent key columns abort a run.
package merge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/linker"
)

// Mode selects how the join key is resolved.
type Mode int

const (
	// ViaLink resolves the left entity key through the linking table.
	ViaLink Mode = iota
	// DirectKey joins on a key shared by both datasets, bypassing the
	// linking table entirely. This is an explicit mode, not a fallback.
	DirectKey
)

// String returns the mode identifier used in config and flags.
func (m Mode) String() string {
	if m == DirectKey {
		return "direct-key"
	}
	return "via-link"
}

// ParseMode converts a mode identifier into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "via-link", "":
		return ViaLink, nil
	case "direct-key":
		return DirectKey, nil
	default:
		return 0, eris.Errorf("unknown merge mode: %q (valid: via-link, direct-key)", s)
	}
}

// Condition tags a dropped row with the reason it left the matched
// partition.
type Condition string

const (
	CondNoActiveLink  Condition = "no_active_link"
	CondAmbiguousLink Condition = "ambiguous_link"
	CondMultipleMatch Condition = "multiple_match"
)

// Dropped records one left row excluded from the matched partition.
type Dropped struct {
	LeftIndex int       `json:"left_index"`
	Entity    string    `json:"entity"`
	Time      string    `json:"time"`
	Condition Condition `json:"condition"`
	Detail    string    `json:"detail"`
}

// Result holds the merged dataset plus the three unmatched partitions.
// It is immutable once returned: downstream stages read, never mutate.
type Result struct {
	Matched   *frame.Dataset
	LeftOnly  []int // left row indices with zero aligned right matches
	RightOnly []int // right row indices never consumed by a match
	Dropped   []Dropped
}

// Options configures one merge invocation. Explicit per-call configuration
// keeps concurrent merges with different settings independent.
type Options struct {
	Mode  Mode
	Align AlignRule

	// Links is required in ViaLink mode.
	Links *linker.Table

	// ResolvedKeyField names the output column carrying the resolved
	// target identifier in ViaLink mode. Defaults to "linked_id".
	ResolvedKeyField string

	// Workers fans row resolution out across goroutines. Zero or one runs
	// sequentially. Output order is independent of worker count.
	Workers int
}

// rowOutcome is the per-left-row resolution result, computed independently
// per row and assembled in input order afterwards.
type rowOutcome struct {
	matchedRight int // right row index, -1 if none
	resolvedKey  string
	leftOnly     bool
	dropped      *Dropped
}

// Merge joins left to right under the options. Required key columns are
// checked before any row is processed; per-row link and match conditions
// never abort the run.
func Merge(ctx context.Context, left, right *frame.Dataset, opts Options) (*Result, error) {
	log := zap.L().With(
		zap.String("component", "merge"),
		zap.String("left", left.Name()),
		zap.String("right", right.Name()),
		zap.String("mode", opts.Mode.String()),
	)

	if err := left.RequireFields(left.Schema().EntityKey(), left.Schema().TimeKey()); err != nil {
		return nil, err
	}
	if err := right.RequireFields(right.Schema().EntityKey(), right.Schema().TimeKey()); err != nil {
		return nil, err
	}
	if opts.Mode == ViaLink && opts.Links == nil {
		return nil, eris.New("merge: via-link mode requires a linking table")
	}
	if opts.ResolvedKeyField == "" {
		opts.ResolvedKeyField = "linked_id"
	}

	outSchema, rightCopy, err := mergedSchema(left, right, opts)
	if err != nil {
		return nil, err
	}

	// Index right rows by entity key.
	rightByKey := make(map[string][]int, right.Len())
	for j := 0; j < right.Len(); j++ {
		k := right.Entity(j).Key()
		rightByKey[k] = append(rightByKey[k], j)
	}

	outcomes := make([]rowOutcome, left.Len())
	resolve := func(i int) {
		outcomes[i] = resolveRow(left, right, rightByKey, opts, i)
	}

	if opts.Workers > 1 && left.Len() > 1 {
		g, _ := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		chunk := (left.Len() + opts.Workers - 1) / opts.Workers
		for lo := 0; lo < left.Len(); lo += chunk {
			hi := min(lo+chunk, left.Len())
			g.Go(func() error {
				for i := lo; i < hi; i++ {
					if err := ctx.Err(); err != nil {
						return err
					}
					resolve(i)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, eris.Wrap(err, "merge: row workers")
		}
	} else {
		for i := 0; i < left.Len(); i++ {
			if err := ctx.Err(); err != nil {
				return nil, eris.Wrap(err, "merge: cancelled")
			}
			resolve(i)
		}
	}

	// Assemble partitions in original row order: deterministic regardless
	// of worker count.
	res := &Result{Matched: frame.New(left.Name()+"_"+right.Name(), outSchema)}
	rightMatched := make([]bool, right.Len())

	for i, oc := range outcomes {
		switch {
		case oc.dropped != nil:
			res.Dropped = append(res.Dropped, *oc.dropped)
		case oc.leftOnly:
			res.LeftOnly = append(res.LeftOnly, i)
		default:
			rightMatched[oc.matchedRight] = true
			row := buildMergedRow(left.Row(i), right.Row(oc.matchedRight), rightCopy, opts, oc.resolvedKey)
			if err := res.Matched.Append(row); err != nil {
				return nil, eris.Wrap(err, "merge: append matched row")
			}
		}
	}
	for j := 0; j < right.Len(); j++ {
		if !rightMatched[j] {
			res.RightOnly = append(res.RightOnly, j)
		}
	}

	log.Info("merge complete",
		zap.Int("matched", res.Matched.Len()),
		zap.Int("left_only", len(res.LeftOnly)),
		zap.Int("right_only", len(res.RightOnly)),
		zap.Int("dropped", len(res.Dropped)),
	)
	return res, nil
}

// LeftJoin returns the merged panel with left-only rows retained, their
// right-sourced columns missing. Output rows follow the left dataset's
// order; dropped rows stay excluded. left must be the dataset the Result
// was produced from.
func (r *Result) LeftJoin(left *frame.Dataset) (*frame.Dataset, error) {
	if len(r.LeftOnly) == 0 {
		return r.Matched, nil
	}

	schema := r.Matched.Schema()
	nLeft := len(left.Schema().Fields())
	if len(schema.Fields()) < nLeft {
		return nil, eris.Errorf("merge: %s is not the left side of %s", left.Name(), r.Matched.Name())
	}
	padding := schema.Fields()[nLeft:]

	leftOnly := make(map[int]bool, len(r.LeftOnly))
	for _, i := range r.LeftOnly {
		leftOnly[i] = true
	}
	dropped := make(map[int]bool, len(r.Dropped))
	for _, d := range r.Dropped {
		dropped[d.LeftIndex] = true
	}

	out := frame.New(r.Matched.Name(), schema)
	next := 0
	for i := 0; i < left.Len(); i++ {
		switch {
		case dropped[i]:
		case leftOnly[i]:
			row := append(frame.Row{}, left.Row(i)...)
			for _, f := range padding {
				row = append(row, frame.Missing(f.Kind))
			}
			if err := out.Append(row); err != nil {
				return nil, eris.Wrap(err, "merge: append left-only row")
			}
		default:
			if err := out.Append(r.Matched.Row(next)); err != nil {
				return nil, eris.Wrap(err, "merge: append matched row")
			}
			next++
		}
	}
	return out, nil
}

// resolveRow computes the outcome for a single left row. Pure with respect
// to shared state: safe to run concurrently over disjoint indices.
func resolveRow(left, right *frame.Dataset, rightByKey map[string][]int, opts Options, i int) rowOutcome {
	entity := left.Entity(i)
	timeVal := left.Time(i)

	key := entity.Key()
	if opts.Mode == ViaLink {
		asOf, ok := asOfDate(timeVal)
		if !ok {
			return rowOutcome{dropped: &Dropped{
				LeftIndex: i, Entity: entity.Display(), Time: timeVal.Display(),
				Condition: CondNoActiveLink, Detail: "time key has no usable as-of date",
			}}
		}
		resolved, err := opts.Links.Resolve(key, asOf)
		if err != nil {
			cond := CondNoActiveLink
			var amb *linker.AmbiguousLinkError
			if errors.As(err, &amb) {
				cond = CondAmbiguousLink
			}
			return rowOutcome{dropped: &Dropped{
				LeftIndex: i, Entity: entity.Display(), Time: timeVal.Display(),
				Condition: cond, Detail: err.Error(),
			}}
		}
		key = resolved
	}

	var matches []int
	for _, j := range rightByKey[key] {
		if aligned(timeVal, right.Time(j), opts.Align) {
			matches = append(matches, j)
		}
	}

	switch len(matches) {
	case 0:
		return rowOutcome{leftOnly: true, matchedRight: -1}
	case 1:
		return rowOutcome{matchedRight: matches[0], resolvedKey: key}
	default:
		// Multiple aligned right rows: report, never sum or average.
		return rowOutcome{dropped: &Dropped{
			LeftIndex: i, Entity: entity.Display(), Time: timeVal.Display(),
			Condition: CondMultipleMatch,
			Detail:    fmt.Sprintf("%d right rows match key %s", len(matches), key),
		}}
	}
}

// mergedSchema builds the output schema: all left fields, the resolved key
// column (via-link mode), then right fields minus its keys. Right field
// names clashing with left fields get a dataset-name suffix, the research
// convention for provenance of merged columns.
func mergedSchema(left, right *frame.Dataset, opts Options) (*frame.Schema, []rightField, error) {
	fields := append([]frame.Field{}, left.Schema().Fields()...)
	taken := make(map[string]bool, len(fields))
	for _, f := range fields {
		taken[f.Name] = true
	}

	if opts.Mode == ViaLink {
		if taken[opts.ResolvedKeyField] {
			return nil, nil, eris.Errorf("merge: resolved key field %q collides with a left column", opts.ResolvedKeyField)
		}
		fields = append(fields, frame.Field{Name: opts.ResolvedKeyField, Kind: frame.KindString})
		taken[opts.ResolvedKeyField] = true
	}

	var copies []rightField
	for idx, f := range right.Schema().Fields() {
		if f.Name == right.Schema().EntityKey() || f.Name == right.Schema().TimeKey() {
			continue
		}
		name := f.Name
		if taken[name] {
			name = name + "_" + right.Name()
		}
		if taken[name] {
			return nil, nil, eris.Errorf("merge: column %q collides even after suffixing", name)
		}
		taken[name] = true
		fields = append(fields, frame.Field{Name: name, Kind: f.Kind})
		copies = append(copies, rightField{srcIndex: idx})
	}

	schema, err := frame.NewSchema(left.Schema().EntityKey(), left.Schema().TimeKey(), fields)
	if err != nil {
		return nil, nil, eris.Wrap(err, "merge: build output schema")
	}
	return schema, copies, nil
}

// rightField maps an output column back to its right-dataset source index.
type rightField struct {
	srcIndex int
}

func buildMergedRow(leftRow, rightRow frame.Row, rightCopy []rightField, opts Options, resolvedKey string) frame.Row {
	row := append(frame.Row{}, leftRow...)
	if opts.Mode == ViaLink {
		row = append(row, frame.String(resolvedKey))
	}
	for _, rf := range rightCopy {
		row = append(row, rightRow[rf.srcIndex])
	}
	return row
}
