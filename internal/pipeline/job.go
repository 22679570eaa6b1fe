package pipeline

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/ingest"
)

// FieldSpec declares one column of an input dataset.
type FieldSpec struct {
	Name string `yaml:"name" json:"name"`
	Kind string `yaml:"kind" json:"kind"` // string, number, date, period
}

// AggregateSpec re-buckets a dataset to a coarser frequency before merging.
type AggregateSpec struct {
	To     string          `yaml:"to" json:"to"` // quarterly, annual
	Fields []frame.AggSpec `yaml:"fields" json:"fields"`
}

// DatasetSpec declares one input dataset: where it lives, its schema, and
// the per-field ingestion rules.
type DatasetSpec struct {
	Name      string         `yaml:"name" json:"name"`
	Source    ingest.Source  `yaml:"source" json:"source"`
	EntityKey string         `yaml:"entity_key" json:"entity_key"`
	TimeKey   string         `yaml:"time_key" json:"time_key"`
	Fields    []FieldSpec    `yaml:"fields" json:"fields"`
	Rules     []frame.Rule   `yaml:"rules" json:"rules"`
	Aggregate *AggregateSpec `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
}

// LinkSpec locates the identifier crosswalk file.
type LinkSpec struct {
	Path         string   `yaml:"path" json:"path"`
	Priority     []string `yaml:"priority" json:"priority"`
	EndExclusive bool     `yaml:"end_exclusive" json:"end_exclusive"`
}

// MergeSpec selects the join mode and time alignment.
type MergeSpec struct {
	Mode             string `yaml:"mode" json:"mode"`  // via-link, direct-key
	Align            string `yaml:"align" json:"align"` // exact, contains
	ResolvedKeyField string `yaml:"resolved_key_field" json:"resolved_key_field"`
}

// DeriveSpec names the variables to compute and an optional custom ratio
// definition file merged with the built-ins.
type DeriveSpec struct {
	Variables []string `yaml:"variables" json:"variables"`
	SpecPath  string   `yaml:"spec_path" json:"spec_path"`
}

// CleanSpec configures post-derive cleaning. Both steps are off unless
// requested; cleaning is an explicit caller decision.
type CleanSpec struct {
	Winsorize      bool     `yaml:"winsorize" json:"winsorize"`
	WinsorizeLower float64  `yaml:"winsorize_lower" json:"winsorize_lower"`
	WinsorizeUpper float64  `yaml:"winsorize_upper" json:"winsorize_upper"`
	DropNonFinite  bool     `yaml:"drop_non_finite" json:"drop_non_finite"`
	Fields         []string `yaml:"fields" json:"fields"` // empty = all derived variables
}

// Job is one end-to-end pipeline invocation, loaded from a YAML file.
type Job struct {
	Left  DatasetSpec `yaml:"left" json:"left"`
	Right DatasetSpec `yaml:"right" json:"right"`
	Links *LinkSpec   `yaml:"links,omitempty" json:"links,omitempty"`
	Merge MergeSpec   `yaml:"merge" json:"merge"`
	// DropDuplicates keeps the first row of each duplicated (entity, time)
	// key on the merged panel and logs the count. Never applied silently.
	DropDuplicates bool        `yaml:"drop_duplicates" json:"drop_duplicates"`
	Validate       ValidateSpec `yaml:"validate" json:"validate"`
	Derive         DeriveSpec  `yaml:"derive" json:"derive"`
	Clean          CleanSpec   `yaml:"clean" json:"clean"`
}

// ValidateSpec configures the panel diagnostics stage.
type ValidateSpec struct {
	ByBucket    bool `yaml:"by_bucket" json:"by_bucket"`
	SampleLimit int  `yaml:"sample_limit" json:"sample_limit"`
}

// LoadJob reads a job file and checks it for structural problems before any
// data is touched.
func LoadJob(path string) (*Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read job %s", path)
	}

	var job Job
	if err := yaml.Unmarshal(data, &job); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse job")
	}
	if err := job.Check(); err != nil {
		return nil, err
	}
	return &job, nil
}

// LoadDatasetSpec reads a standalone dataset declaration, used by the
// single-dataset commands (validate, derive).
func LoadDatasetSpec(path string) (*DatasetSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "pipeline: read dataset spec %s", path)
	}

	var spec DatasetSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, eris.Wrap(err, "pipeline: parse dataset spec")
	}
	if spec.Name == "" {
		return nil, eris.New("pipeline: dataset spec has no name")
	}
	if spec.Source.Path == "" {
		return nil, eris.Errorf("pipeline: dataset %q has no source path", spec.Name)
	}
	if _, err := spec.Schema(); err != nil {
		return nil, eris.Wrapf(err, "pipeline: dataset %q", spec.Name)
	}
	return &spec, nil
}

// Check validates the job declaration. Schema construction catches missing
// keys and duplicate fields; mode and alignment names are checked by their
// parsers at run time.
func (j *Job) Check() error {
	for _, spec := range []struct {
		side string
		ds   DatasetSpec
	}{{"left", j.Left}, {"right", j.Right}} {
		if spec.ds.Name == "" {
			return eris.Errorf("pipeline: %s dataset has no name", spec.side)
		}
		if spec.ds.Source.Path == "" {
			return eris.Errorf("pipeline: %s dataset %q has no source path", spec.side, spec.ds.Name)
		}
		if _, err := spec.ds.Schema(); err != nil {
			return eris.Wrapf(err, "pipeline: %s dataset %q", spec.side, spec.ds.Name)
		}
	}
	if j.Merge.Mode != "direct-key" && j.Links == nil {
		return eris.New("pipeline: via-link merge requires a links section")
	}
	if j.Links != nil && j.Links.Path == "" {
		return eris.New("pipeline: links section has no path")
	}
	return nil
}

// Schema builds the frame schema declared by the dataset spec.
func (d *DatasetSpec) Schema() (*frame.Schema, error) {
	fields := make([]frame.Field, 0, len(d.Fields))
	for _, f := range d.Fields {
		kind, err := frame.ParseKind(f.Kind)
		if err != nil {
			return nil, eris.Wrapf(err, "field %q", f.Name)
		}
		fields = append(fields, frame.Field{Name: f.Name, Kind: kind})
	}
	return frame.NewSchema(d.EntityKey, d.TimeKey, fields)
}
