// Package pipeline orchestrates an end-to-end panel build: ingest the two
// datasets, resolve identifiers through the linking table, merge, validate,
// derive variables, clean, and export. Each invocation is recorded in the
// run store stage by stage.
package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/panel-cli/internal/config"
	"github.com/sells-group/panel-cli/internal/derive"
	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/ingest"
	"github.com/sells-group/panel-cli/internal/linker"
	"github.com/sells-group/panel-cli/internal/merge"
	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/report"
	"github.com/sells-group/panel-cli/internal/store"
)

// Pipeline runs panel build jobs.
type Pipeline struct {
	cfg *config.Config
	st  store.Store
}

// New creates a Pipeline.
func New(cfg *config.Config, st store.Store) *Pipeline {
	return &Pipeline{cfg: cfg, st: st}
}

// workers is the row-parallel fan-out width. Unset means one worker per
// available CPU.
func (p *Pipeline) workers() int {
	if p.cfg.Pipeline.Workers > 0 {
		return p.cfg.Pipeline.Workers
	}
	return runtime.GOMAXPROCS(0)
}

// Result is the outcome of one job.
type Result struct {
	RunID  string
	Panel  *frame.Dataset
	Merge  *merge.Result
	Report *report.Run
	OutDir string
}

// Run executes the job end to end. The first failing stage aborts the run;
// the failure is recorded on both the stage and the run before returning.
func (p *Pipeline) Run(ctx context.Context, job *Job) (*Result, error) {
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("left", job.Left.Name),
		zap.String("right", job.Right.Name),
	)
	log.Info("pipeline: starting run")

	run, err := p.st.CreateRun(ctx, store.RunSpec{
		Left:      job.Left.Name,
		Right:     job.Right.Name,
		Mode:      job.Merge.Mode,
		Align:     job.Merge.Align,
		Variables: job.Derive.Variables,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}
	if err := p.st.UpdateRunStatus(ctx, run.ID, store.RunStatusRunning); err != nil {
		log.Warn("pipeline: failed to mark run running", zap.Error(err))
	}

	result := &Result{RunID: run.ID, OutDir: p.cfg.Pipeline.OutDir}
	if err := p.execute(ctx, run.ID, job, result, log); err != nil {
		if failErr := p.st.FailRun(ctx, run.ID, err.Error()); failErr != nil {
			log.Warn("pipeline: failed to record run failure", zap.Error(failErr))
		}
		return result, err
	}

	reportJSON, err := result.Report.JSON()
	if err != nil {
		return result, eris.Wrap(err, "pipeline: encode report")
	}
	if err := p.st.CompleteRun(ctx, run.ID, reportJSON); err != nil {
		log.Warn("pipeline: failed to record run completion", zap.Error(err))
	}

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("panel_rows", result.Panel.Len()),
	)
	return result, nil
}

// stage records one pipeline stage around fn. The detail string returned by
// fn is persisted on the completed stage.
func (p *Pipeline) stage(ctx context.Context, runID, name string, log *zap.Logger, fn func() (string, error)) error {
	st, err := p.st.CreateStage(ctx, runID, name)
	if err != nil {
		log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(err))
	}

	start := time.Now()
	detail, fnErr := fn()
	elapsed := time.Since(start)

	status := store.StageStatusComplete
	if fnErr != nil {
		status = store.StageStatusFailed
		detail = fnErr.Error()
		log.Error("pipeline: stage failed",
			zap.String("stage", name),
			zap.Duration("elapsed", elapsed),
			zap.Error(fnErr),
		)
	} else {
		log.Info("pipeline: stage complete",
			zap.String("stage", name),
			zap.Duration("elapsed", elapsed),
			zap.String("detail", detail),
		)
	}

	if st != nil {
		if compErr := p.st.CompleteStage(ctx, st.ID, status, detail); compErr != nil {
			log.Warn("pipeline: failed to complete stage", zap.String("stage", name), zap.Error(compErr))
		}
	}
	return fnErr
}

func (p *Pipeline) execute(ctx context.Context, runID string, job *Job, result *Result, log *zap.Logger) error {
	var left, right *frame.Dataset
	var links *linker.Table

	// Both datasets and the crosswalk load independently.
	err := p.stage(ctx, runID, "ingest", log, func() (string, error) {
		g, _ := errgroup.WithContext(ctx)
		g.Go(func() error {
			var loadErr error
			left, loadErr = LoadSide(job.Left)
			return loadErr
		})
		g.Go(func() error {
			var loadErr error
			right, loadErr = LoadSide(job.Right)
			return loadErr
		})
		if job.Links != nil {
			g.Go(func() error {
				var loadErr error
				links, loadErr = LoadLinks(job.Links, p.cfg.Link.Priority)
				return loadErr
			})
		}
		if err := g.Wait(); err != nil {
			return "", err
		}
		detail := fmt.Sprintf("left=%d right=%d", left.Len(), right.Len())
		if links != nil {
			detail += fmt.Sprintf(" links=%d", links.Len())
		}
		return detail, nil
	})
	if err != nil {
		return err
	}

	var merged *merge.Result
	var panelDS *frame.Dataset
	err = p.stage(ctx, runID, "merge", log, func() (string, error) {
		mode, err := merge.ParseMode(job.Merge.Mode)
		if err != nil {
			return "", err
		}
		align, err := merge.ParseAlignRule(job.Merge.Align)
		if err != nil {
			return "", err
		}
		merged, err = merge.Merge(ctx, left, right, merge.Options{
			Mode:             mode,
			Align:            align,
			Links:            links,
			ResolvedKeyField: job.Merge.ResolvedKeyField,
			Workers:          p.workers(),
		})
		if err != nil {
			return "", err
		}
		// Left-only rows stay in the panel with their right-sourced
		// columns missing; only dropped rows leave it.
		panelDS, err = merged.LeftJoin(left)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("matched=%d left_only=%d right_only=%d dropped=%d",
			merged.Matched.Len(), len(merged.LeftOnly), len(merged.RightOnly), len(merged.Dropped)), nil
	})
	if err != nil {
		return err
	}
	result.Merge = merged
	if job.DropDuplicates {
		err = p.stage(ctx, runID, "dedupe", log, func() (string, error) {
			deduped, removed := DropDuplicateKeys(panelDS)
			panelDS = deduped
			return fmt.Sprintf("removed=%d", removed), nil
		})
		if err != nil {
			return err
		}
	}

	var diag *panel.Report
	err = p.stage(ctx, runID, "validate", log, func() (string, error) {
		sampleLimit := job.Validate.SampleLimit
		if sampleLimit == 0 {
			sampleLimit = p.cfg.Validation.SampleLimit
		}
		diag = panel.Validate(panelDS, panel.Options{
			ByBucket:    job.Validate.ByBucket || p.cfg.Validation.ByBucket,
			SampleLimit: sampleLimit,
		})
		return fmt.Sprintf("balance=%s duplicates=%d", diag.Balance, diag.DuplicateGroups), nil
	})
	if err != nil {
		return err
	}

	var applied *derive.ApplyReport
	if len(job.Derive.Variables) > 0 {
		err = p.stage(ctx, runID, "derive", log, func() (string, error) {
			reg, err := buildRegistry(job.Derive.SpecPath)
			if err != nil {
				return "", err
			}
			derived, rep, err := derive.Apply(ctx, panelDS, reg, job.Derive.Variables, derive.Options{
				Workers: p.workers(),
			})
			if err != nil {
				return "", err
			}
			panelDS = derived
			applied = rep
			return fmt.Sprintf("variables=%d", len(rep.Outcomes)), nil
		})
		if err != nil {
			return err
		}

		if job.Clean.Winsorize || job.Clean.DropNonFinite {
			err = p.stage(ctx, runID, "clean", log, func() (string, error) {
				cleaned, detail, err := cleanPanel(panelDS, job.Clean, job.Derive.Variables, p.cfg)
				if err != nil {
					return "", err
				}
				panelDS = cleaned
				return detail, nil
			})
			if err != nil {
				return err
			}
		}
	}

	result.Panel = panelDS
	result.Report = &report.Run{
		Dataset:     panelDS.Name(),
		Merge:       report.Summarize(merged),
		Diagnostics: diag,
		Derived:     applied,
	}

	return p.stage(ctx, runID, "export", log, func() (string, error) {
		files, err := Export(result, left, right, p.cfg.Pipeline.OutDir)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("files=%d dir=%s", files, p.cfg.Pipeline.OutDir), nil
	})
}

// LoadLinks loads the crosswalk declared by the job, falling back to the
// configured link-type priority when the job names none.
func LoadLinks(spec *LinkSpec, fallbackPriority []string) (*linker.Table, error) {
	opts := linker.Options{
		Priority:     spec.Priority,
		EndExclusive: spec.EndExclusive,
	}
	if len(opts.Priority) == 0 {
		opts.Priority = fallbackPriority
	}
	return ingest.LoadLinksFile(spec.Path, opts)
}

// LoadSide ingests one dataset and applies its pre-merge aggregation if the
// job declares one.
func LoadSide(spec DatasetSpec) (*frame.Dataset, error) {
	schema, err := spec.Schema()
	if err != nil {
		return nil, err
	}
	ds, err := ingest.LoadDataset(spec.Name, schema, spec.Rules, spec.Source)
	if err != nil {
		return nil, err
	}
	if spec.Aggregate == nil {
		return ds, nil
	}

	to, err := frame.ParseFreq(spec.Aggregate.To)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: aggregate %s", spec.Name)
	}
	agg, err := frame.Aggregate(ds, to, spec.Aggregate.Fields)
	if err != nil {
		return nil, err
	}
	zap.L().Info("dataset aggregated",
		zap.String("dataset", spec.Name),
		zap.String("to", to.String()),
		zap.Int("rows_in", ds.Len()),
		zap.Int("rows_out", agg.Len()),
	)
	return agg, nil
}

// buildRegistry merges custom ratio definitions into the built-in library.
func buildRegistry(specPath string) (*derive.Registry, error) {
	reg, err := derive.BuiltinRegistry()
	if err != nil {
		return nil, err
	}
	if specPath == "" {
		return reg, nil
	}
	defs, err := derive.LoadSpecsFile(specPath)
	if err != nil {
		return nil, err
	}
	for _, def := range defs {
		if err := reg.Add(def); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// cleanPanel applies the requested post-derive cleaning steps. Cleaning
// targets the derived variables unless the job names fields explicitly.
func cleanPanel(d *frame.Dataset, spec CleanSpec, derived []string, cfg *config.Config) (*frame.Dataset, string, error) {
	fields := spec.Fields
	if len(fields) == 0 {
		fields = derived
	}

	detail := ""
	if spec.Winsorize {
		lower, upper := spec.WinsorizeLower, spec.WinsorizeUpper
		if lower == 0 && upper == 0 {
			lower, upper = cfg.Derive.WinsorizeLower, cfg.Derive.WinsorizeUpper
		}
		w, err := derive.Winsorize(d, fields, lower, upper)
		if err != nil {
			return nil, "", err
		}
		d = w
		detail += fmt.Sprintf("winsorized=[%.2f,%.2f] ", lower, upper)
	}
	if spec.DropNonFinite {
		cleaned, err := derive.DropNonFinite(d, fields)
		if err != nil {
			return nil, "", err
		}
		d = cleaned
		detail += "non_finite_dropped"
	}
	return d, detail, nil
}
