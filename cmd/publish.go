package main

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/db"
)

var (
	publishCSVPath string
	publishSchema  string
	publishTable   string
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish an exported panel CSV to a warehouse table",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("pull"); err != nil {
			return err
		}

		pool, err := pgxpool.New(ctx, cfg.Warehouse.DatabaseURL)
		if err != nil {
			return eris.Wrap(err, "publish: connect warehouse")
		}
		defer pool.Close()

		start := time.Now()
		n, err := publishPanel(ctx, pool, publishSchema, publishTable, publishCSVPath)
		if err != nil {
			return err
		}
		zap.L().Info("panel published",
			zap.String("schema", publishSchema),
			zap.String("table", publishTable),
			zap.Int64("rows", n),
			zap.Duration("elapsed", time.Since(start)),
		)
		fmt.Fprintf(os.Stdout, "published %d rows to %s.%s\n", n, publishSchema, publishTable)
		return nil
	},
}

// publishPanel streams a panel CSV into a schema-qualified table using the
// COPY protocol. The header row names the target columns. Empty cells load
// as NULL and numeric cells as float64; everything else loads as text.
func publishPanel(ctx context.Context, pool db.Pool, schema, table, path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, eris.Wrapf(err, "publish: open %s", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return 0, eris.Wrapf(err, "publish: read header of %s", path)
	}

	var rows [][]any
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, eris.Wrapf(err, "publish: read %s", path)
		}
		row := make([]any, len(rec))
		for i, cell := range rec {
			row[i] = panelCell(cell)
		}
		rows = append(rows, row)
	}

	return db.CopyInto(ctx, pool, schema, table, header, rows)
}

func panelCell(cell string) any {
	if cell == "" {
		return nil
	}
	// Zero-padded identifiers like gvkey "001690" must stay text.
	if len(cell) > 1 && cell[0] == '0' && cell[1] != '.' {
		return cell
	}
	if v, err := strconv.ParseFloat(cell, 64); err == nil {
		return v
	}
	return cell
}

func init() {
	publishCmd.Flags().StringVar(&publishCSVPath, "csv", "", "panel CSV to publish (required)")
	publishCmd.Flags().StringVar(&publishSchema, "schema", "research", "target warehouse schema")
	publishCmd.Flags().StringVar(&publishTable, "table", "", "target table (required)")
	_ = publishCmd.MarkFlagRequired("csv")
	_ = publishCmd.MarkFlagRequired("table")
	rootCmd.AddCommand(publishCmd)
}
