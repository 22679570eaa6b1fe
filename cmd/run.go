package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/pipeline"
)

var runJobPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a panel build job end to end",
	Long:  "Ingests the job's datasets, merges them, validates the panel, computes derived variables, and exports the panel plus diagnostics. The run is recorded in the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("run"); err != nil {
			return err
		}

		job, err := pipeline.LoadJob(runJobPath)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := pipeline.New(cfg, st).Run(ctx, job)
		if err != nil {
			return eris.Wrap(err, "pipeline run")
		}

		zap.L().Info("panel built",
			zap.String("run_id", result.RunID),
			zap.Int("rows", result.Panel.Len()),
			zap.String("out_dir", result.OutDir),
		)

		fmt.Fprint(os.Stdout, result.Report.Text())
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runJobPath, "job", "", "job YAML file (required)")
	_ = runCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(runCmd)
}
