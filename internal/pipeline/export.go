package pipeline

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/merge"
)

// Export writes the run artifacts to outDir: the panel CSV, the unmatched
// partitions, the dropped-row log, and the diagnostics report in JSON and
// text. Returns the number of files written. Empty partitions write no file.
func Export(res *Result, left, right *frame.Dataset, outDir string) (int, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return 0, eris.Wrapf(err, "pipeline: create output dir %s", outDir)
	}

	files := 0
	write := func(name string, fn func(path string) error) error {
		path := filepath.Join(outDir, name)
		if err := fn(path); err != nil {
			return err
		}
		files++
		return nil
	}

	if err := write("panel.csv", func(path string) error {
		return WriteDatasetCSV(path, res.Panel, nil)
	}); err != nil {
		return files, err
	}

	if len(res.Merge.LeftOnly) > 0 {
		if err := write("left_only.csv", func(path string) error {
			return WriteDatasetCSV(path, left, res.Merge.LeftOnly)
		}); err != nil {
			return files, err
		}
	}
	if len(res.Merge.RightOnly) > 0 {
		if err := write("right_only.csv", func(path string) error {
			return WriteDatasetCSV(path, right, res.Merge.RightOnly)
		}); err != nil {
			return files, err
		}
	}
	if len(res.Merge.Dropped) > 0 {
		if err := write("dropped.csv", func(path string) error {
			return WriteDroppedCSV(path, res.Merge.Dropped)
		}); err != nil {
			return files, err
		}
	}

	reportJSON, err := res.Report.JSON()
	if err != nil {
		return files, err
	}
	if err := write("report.json", func(path string) error {
		return writeFile(path, reportJSON)
	}); err != nil {
		return files, err
	}
	if err := write("report.txt", func(path string) error {
		return writeFile(path, []byte(res.Report.Text()))
	}); err != nil {
		return files, err
	}
	return files, nil
}

// WriteDatasetCSV writes the dataset, or only the given row indices when
// rows is non-nil, with a header from the schema.
func WriteDatasetCSV(path string, d *frame.Dataset, rows []int) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	fields := d.Schema().Fields()
	header := make([]string, len(fields))
	for i, fl := range fields {
		header[i] = fl.Name
	}
	if err := w.Write(header); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}

	record := make([]string, len(fields))
	writeRow := func(i int) error {
		row := d.Row(i)
		for j, v := range row {
			record[j] = v.Display()
		}
		return w.Write(record)
	}

	if rows == nil {
		for i := 0; i < d.Len(); i++ {
			if err := writeRow(i); err != nil {
				return eris.Wrapf(err, "pipeline: write %s", path)
			}
		}
	} else {
		for _, i := range rows {
			if err := writeRow(i); err != nil {
				return eris.Wrapf(err, "pipeline: write %s", path)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "pipeline: flush %s", path)
	}
	return f.Close()
}

// WriteDroppedCSV logs the rows excluded from the matched partition with
// the condition that excluded them.
func WriteDroppedCSV(path string, dropped []merge.Dropped) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "pipeline: create %s", path)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"left_index", "entity", "time", "condition", "detail"}); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	for _, d := range dropped {
		rec := []string{strconv.Itoa(d.LeftIndex), d.Entity, d.Time, string(d.Condition), d.Detail}
		if err := w.Write(rec); err != nil {
			return eris.Wrapf(err, "pipeline: write %s", path)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return eris.Wrapf(err, "pipeline: flush %s", path)
	}
	return f.Close()
}

func writeFile(path string, data []byte) error {
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "pipeline: write %s", path)
	}
	return nil
}
