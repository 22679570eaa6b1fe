// Package ingest turns raw dataset files (CSV, XLSX, zipped CSV) into typed
// datasets under a declared schema, and decodes identifier crosswalk files
// into linking tables.
package ingest

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/fetcher"
	"github.com/sells-group/panel-cli/internal/frame"
)

// Source describes one input file.
type Source struct {
	Path      string `yaml:"path" json:"path" mapstructure:"path"`
	Format    string `yaml:"format" json:"format,omitempty" mapstructure:"format"` // csv, xlsx; empty = by extension
	Sheet     string `yaml:"sheet" json:"sheet,omitempty" mapstructure:"sheet"`   // xlsx only
	SkipRows  int    `yaml:"skip_rows" json:"skip_rows,omitempty" mapstructure:"skip_rows"`
	Delimiter string `yaml:"delimiter" json:"delimiter,omitempty" mapstructure:"delimiter"`
}

// LoadDataset reads the source file and ingests it under the schema. Zipped
// sources are extracted to a temp directory first; vendors ship one CSV per
// archive.
func LoadDataset(name string, schema *frame.Schema, rules []frame.Rule, src Source) (*frame.Dataset, error) {
	path := src.Path

	if strings.EqualFold(filepath.Ext(path), ".zip") {
		tmp, err := os.MkdirTemp("", "panel-ingest-*")
		if err != nil {
			return nil, eris.Wrap(err, "ingest: temp dir")
		}
		defer os.RemoveAll(tmp)

		extracted, err := fetcher.ExtractZIPSingle(path, tmp)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: extract %s", path)
		}
		path = extracted
	}

	header, records, err := readRows(path, src)
	if err != nil {
		return nil, err
	}

	ds, err := frame.FromRecords(name, schema, header, records, rules)
	if err != nil {
		return nil, err
	}

	zap.L().Info("dataset ingested",
		zap.String("dataset", name),
		zap.String("path", src.Path),
		zap.Int("rows", ds.Len()),
	)
	return ds, nil
}

func readRows(path string, src Source) ([]string, [][]string, error) {
	format := src.Format
	if format == "" {
		format = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}

	switch format {
	case "csv", "txt":
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, eris.Wrapf(err, "ingest: open %s", path)
		}
		defer f.Close()

		opts := fetcher.CSVOptions{TrimSpace: true}
		if src.Delimiter != "" {
			opts.Delimiter = rune(src.Delimiter[0])
		}
		return fetcher.ReadCSV(f, opts)

	case "xlsx":
		return fetcher.ReadXLSX(path, fetcher.XLSXOptions{
			SheetName: src.Sheet,
			SkipRows:  src.SkipRows,
		})

	default:
		return nil, nil, eris.Errorf("ingest: unsupported format %q for %s", format, path)
	}
}
