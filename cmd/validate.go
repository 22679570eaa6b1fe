package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sells-group/panel-cli/internal/panel"
	"github.com/sells-group/panel-cli/internal/pipeline"
	"github.com/sells-group/panel-cli/internal/report"
)

var (
	validateSpecPath string
	validateByBucket bool
	validateJSONOut  bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Run panel diagnostics over one dataset",
	Long:  "Ingests the dataset declared by the spec file and reports balance, duplicate keys, and per-field coverage. The dataset is never modified.",
	RunE: func(cmd *cobra.Command, args []string) error {
		spec, err := pipeline.LoadDatasetSpec(validateSpecPath)
		if err != nil {
			return err
		}

		ds, err := pipeline.LoadSide(*spec)
		if err != nil {
			return err
		}

		diag := panel.Validate(ds, panel.Options{
			ByBucket:    validateByBucket || cfg.Validation.ByBucket,
			SampleLimit: cfg.Validation.SampleLimit,
		})

		if validateJSONOut {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(diag)
		}

		run := &report.Run{Dataset: ds.Name(), Diagnostics: diag}
		fmt.Fprint(os.Stdout, run.Text())
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateSpecPath, "spec", "", "dataset spec YAML file (required)")
	validateCmd.Flags().BoolVar(&validateByBucket, "by-bucket", false, "report coverage per time bucket")
	validateCmd.Flags().BoolVar(&validateJSONOut, "json", false, "emit the raw diagnostics JSON")
	_ = validateCmd.MarkFlagRequired("spec")
	rootCmd.AddCommand(validateCmd)
}
