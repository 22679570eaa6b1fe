package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/linker"
	"github.com/sells-group/panel-cli/internal/merge"
	"github.com/sells-group/panel-cli/internal/pipeline"
	"github.com/sells-group/panel-cli/internal/report"
)

var (
	mergeJobPath string
	mergeOutDir  string
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge the job's two datasets and emit the partitions",
	Long:  "Runs ingestion and the merge only. Writes the matched panel, the unmatched partitions, and the dropped-row log; nothing is recorded in the store.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		job, err := pipeline.LoadJob(mergeJobPath)
		if err != nil {
			return err
		}

		left, err := pipeline.LoadSide(job.Left)
		if err != nil {
			return err
		}
		right, err := pipeline.LoadSide(job.Right)
		if err != nil {
			return err
		}

		var links *linker.Table
		if job.Links != nil {
			links, err = pipeline.LoadLinks(job.Links, cfg.Link.Priority)
			if err != nil {
				return err
			}
		}

		mode, err := merge.ParseMode(job.Merge.Mode)
		if err != nil {
			return err
		}
		align, err := merge.ParseAlignRule(job.Merge.Align)
		if err != nil {
			return err
		}

		res, err := merge.Merge(ctx, left, right, merge.Options{
			Mode:             mode,
			Align:            align,
			Links:            links,
			ResolvedKeyField: job.Merge.ResolvedKeyField,
			Workers:          cfg.Pipeline.Workers,
		})
		if err != nil {
			return eris.Wrap(err, "merge")
		}

		outDir := mergeOutDir
		if outDir == "" {
			outDir = cfg.Pipeline.OutDir
		}
		if err := writePartitions(res, left, right, outDir); err != nil {
			return err
		}

		zap.L().Info("merge complete",
			zap.Int("matched", res.Matched.Len()),
			zap.Int("dropped", len(res.Dropped)),
			zap.String("out_dir", outDir),
		)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report.Summarize(res))
	},
}

func writePartitions(res *merge.Result, left, right *frame.Dataset, outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return eris.Wrapf(err, "create output dir %s", outDir)
	}
	if err := pipeline.WriteDatasetCSV(filepath.Join(outDir, "matched.csv"), res.Matched, nil); err != nil {
		return err
	}
	if len(res.LeftOnly) > 0 {
		if err := pipeline.WriteDatasetCSV(filepath.Join(outDir, "left_only.csv"), left, res.LeftOnly); err != nil {
			return err
		}
	}
	if len(res.RightOnly) > 0 {
		if err := pipeline.WriteDatasetCSV(filepath.Join(outDir, "right_only.csv"), right, res.RightOnly); err != nil {
			return err
		}
	}
	if len(res.Dropped) > 0 {
		if err := pipeline.WriteDroppedCSV(filepath.Join(outDir, "dropped.csv"), res.Dropped); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	mergeCmd.Flags().StringVar(&mergeJobPath, "job", "", "job YAML file (required)")
	mergeCmd.Flags().StringVar(&mergeOutDir, "out", "", "output directory (default from config)")
	_ = mergeCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(mergeCmd)
}
