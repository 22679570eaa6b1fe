package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/derive"
	"github.com/sells-group/panel-cli/internal/pipeline"
	"github.com/sells-group/panel-cli/internal/report"
)

var (
	deriveSpecPath   string
	deriveVars       []string
	deriveRatiosPath string
	deriveOutPath    string
	deriveWinsorize  bool
)

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Compute derived variables over an existing panel",
	Long:  "Ingests the panel declared by the spec file, appends the requested derived variables, and writes the result. Rows with missing inputs get missing outputs and are reported, never dropped.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		spec, err := pipeline.LoadDatasetSpec(deriveSpecPath)
		if err != nil {
			return err
		}
		ds, err := pipeline.LoadSide(*spec)
		if err != nil {
			return err
		}

		reg, err := derive.BuiltinRegistry()
		if err != nil {
			return err
		}
		if deriveRatiosPath != "" {
			defs, err := derive.LoadSpecsFile(deriveRatiosPath)
			if err != nil {
				return err
			}
			for _, def := range defs {
				if err := reg.Add(def); err != nil {
					return err
				}
			}
		}

		vars := deriveVars
		if len(vars) == 0 {
			vars = cfg.Derive.Variables
		}
		if len(vars) == 0 {
			return eris.New("no variables requested (--vars or derive.variables config)")
		}

		derived, rep, err := derive.Apply(ctx, ds, reg, vars, derive.Options{
			Workers: cfg.Pipeline.Workers,
		})
		if err != nil {
			return eris.Wrap(err, "derive")
		}

		if deriveWinsorize {
			derived, err = derive.Winsorize(derived, vars, cfg.Derive.WinsorizeLower, cfg.Derive.WinsorizeUpper)
			if err != nil {
				return err
			}
		}

		out := deriveOutPath
		if out == "" {
			out = filepath.Join(cfg.Pipeline.OutDir, "derived.csv")
		}
		if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
			return eris.Wrapf(err, "create output dir for %s", out)
		}
		if err := pipeline.WriteDatasetCSV(out, derived, nil); err != nil {
			return err
		}

		zap.L().Info("variables derived",
			zap.Strings("variables", vars),
			zap.Int("rows", derived.Len()),
			zap.String("out", out),
		)

		run := &report.Run{Dataset: derived.Name(), Derived: rep}
		fmt.Fprint(os.Stdout, run.Text())
		return nil
	},
}

func init() {
	deriveCmd.Flags().StringVar(&deriveSpecPath, "spec", "", "dataset spec YAML file (required)")
	deriveCmd.Flags().StringSliceVar(&deriveVars, "vars", nil, "variables to derive (default from config)")
	deriveCmd.Flags().StringVar(&deriveRatiosPath, "ratios", "", "custom ratio definition YAML merged with the built-ins")
	deriveCmd.Flags().StringVar(&deriveOutPath, "out", "", "output CSV path (default <out_dir>/derived.csv)")
	deriveCmd.Flags().BoolVar(&deriveWinsorize, "winsorize", false, "winsorize the derived variables at the configured percentiles")
	_ = deriveCmd.MarkFlagRequired("spec")
	rootCmd.AddCommand(deriveCmd)
}
