// Package panel validates the structure of an entity/time panel dataset:
// balance classification, duplicate key detection, and per-field coverage.
// Validation is read-only and produces an immutable diagnostics report.
package panel

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/frame"
)

// Balance classifies the panel shape.
type Balance string

const (
	Balanced     Balance = "balanced"      // every entity observed at every period
	Unbalanced   Balance = "unbalanced"    // at least one entity misses a period
	SinglePeriod Balance = "single-period" // one distinct period overall
)

// DuplicateKey identifies one (entity, time) group holding more than one row.
type DuplicateKey struct {
	Entity string `json:"entity"`
	Time   string `json:"time"`
	Count  int    `json:"count"`
}

// FieldCoverage reports the non-missing ratio for one field, optionally per
// time bucket so coverage drift over time is visible.
type FieldCoverage struct {
	Field    string             `json:"field"`
	Coverage float64            `json:"coverage"`
	ByBucket map[string]float64 `json:"by_bucket,omitempty"`
}

// Report is the diagnostics value object. It is created once per Validate
// call and never mutated; the pipeline itself takes no action on it.
type Report struct {
	Dataset         string          `json:"dataset"`
	TotalRows       int             `json:"total_rows"`
	Entities        int             `json:"entities"`
	Periods         int             `json:"periods"`
	Balance         Balance         `json:"balance"`
	BalanceRatio    float64         `json:"balance_ratio"` // rows / (entities * periods)
	DuplicateGroups int             `json:"duplicate_groups"`
	DuplicateSample []DuplicateKey  `json:"duplicate_sample,omitempty"`
	Coverage        []FieldCoverage `json:"coverage"`
}

// Options configures one validation.
type Options struct {
	// ByBucket adds per-time-bucket coverage for every field.
	ByBucket bool
	// SampleLimit bounds the duplicate key sample. Defaults to 20.
	SampleLimit int
}

// Validate computes the diagnostics report for a dataset. The classification
// is invariant under row reordering: grouping is by key value, and the
// duplicate sample is ordered by (entity, time), not input position.
func Validate(d *frame.Dataset, opts Options) *Report {
	if opts.SampleLimit <= 0 {
		opts.SampleLimit = 20
	}

	rep := &Report{Dataset: d.Name(), TotalRows: d.Len()}

	type key struct{ entity, time string }
	groupCount := make(map[key]int)
	periodsByEntity := make(map[string]map[string]bool)
	allPeriods := make(map[string]bool)

	for i := 0; i < d.Len(); i++ {
		e := d.Entity(i).Key()
		tm := d.Time(i).Key()
		groupCount[key{e, tm}]++
		if periodsByEntity[e] == nil {
			periodsByEntity[e] = make(map[string]bool)
		}
		periodsByEntity[e][tm] = true
		allPeriods[tm] = true
	}

	rep.Entities = len(periodsByEntity)
	rep.Periods = len(allPeriods)

	// Balance classification.
	switch {
	case rep.Periods <= 1:
		rep.Balance = SinglePeriod
	default:
		rep.Balance = Balanced
		for _, ps := range periodsByEntity {
			if len(ps) != rep.Periods {
				rep.Balance = Unbalanced
				break
			}
		}
	}
	if expected := rep.Entities * rep.Periods; expected > 0 {
		rep.BalanceRatio = float64(rep.TotalRows) / float64(expected)
	}

	// Duplicates: every group with more than one row, sample bounded and
	// deterministically ordered.
	var dups []DuplicateKey
	for k, n := range groupCount {
		if n > 1 {
			dups = append(dups, DuplicateKey{Entity: k.entity, Time: k.time, Count: n})
		}
	}
	sort.Slice(dups, func(i, j int) bool {
		if dups[i].Entity != dups[j].Entity {
			return dups[i].Entity < dups[j].Entity
		}
		return dups[i].Time < dups[j].Time
	})
	rep.DuplicateGroups = len(dups)
	if len(dups) > opts.SampleLimit {
		dups = dups[:opts.SampleLimit]
	}
	rep.DuplicateSample = dups

	rep.Coverage = coverage(d, opts.ByBucket)

	zap.L().Debug("panel validated",
		zap.String("dataset", d.Name()),
		zap.String("balance", string(rep.Balance)),
		zap.Int("rows", rep.TotalRows),
		zap.Int("duplicate_groups", rep.DuplicateGroups),
	)
	return rep
}

// coverage computes the non-missing ratio per declared field, in schema
// order. With buckets enabled, each field also gets a per-time-bucket
// breakdown keyed by the time value's canonical form.
func coverage(d *frame.Dataset, byBucket bool) []FieldCoverage {
	fields := d.Schema().Fields()
	out := make([]FieldCoverage, len(fields))

	nonMissing := make([]int, len(fields))
	type bucketCount struct{ present, total int }
	var buckets []map[string]*bucketCount
	if byBucket {
		buckets = make([]map[string]*bucketCount, len(fields))
		for i := range buckets {
			buckets[i] = make(map[string]*bucketCount)
		}
	}

	for i := 0; i < d.Len(); i++ {
		row := d.Row(i)
		tm := d.Time(i).Key()
		for fi := range fields {
			present := !row[fi].IsMissing()
			if present {
				nonMissing[fi]++
			}
			if byBucket {
				bc := buckets[fi][tm]
				if bc == nil {
					bc = &bucketCount{}
					buckets[fi][tm] = bc
				}
				bc.total++
				if present {
					bc.present++
				}
			}
		}
	}

	for fi, f := range fields {
		fc := FieldCoverage{Field: f.Name}
		if d.Len() > 0 {
			fc.Coverage = float64(nonMissing[fi]) / float64(d.Len())
		}
		if byBucket {
			fc.ByBucket = make(map[string]float64, len(buckets[fi]))
			for tm, bc := range buckets[fi] {
				fc.ByBucket[tm] = float64(bc.present) / float64(bc.total)
			}
		}
		out[fi] = fc
	}
	return out
}
