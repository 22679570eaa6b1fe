package ingest

import (
	"encoding/csv"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/linker"
)

// linkRecord is the crosswalk CSV layout used by the WRDS link history
// export. An 'E' (or empty) end date means the link is still active.
type linkRecord struct {
	SourceID  string `csv:"gvkey"`
	TargetID  string `csv:"lpermno"`
	LinkType  string `csv:"linktype"`
	LinkDt    string `csv:"linkdt"`
	LinkEndDt string `csv:"linkenddt"`
}

var linkDateLayouts = []string{"2006-01-02", "20060102", "2006/01/02"}

func parseLinkDate(raw string) (time.Time, error) {
	for _, layout := range linkDateLayouts {
		if ts, err := time.Parse(layout, raw); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, eris.Errorf("unrecognized link date %q", raw)
}

// LoadLinks decodes a crosswalk CSV into an indexed linking table.
func LoadLinks(r io.Reader, opts linker.Options) (*linker.Table, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true

	dec, err := csvutil.NewDecoder(csvReader)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: link header")
	}

	var links []linker.Link
	for {
		var rec linkRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return nil, eris.Wrap(err, "ingest: decode link row")
		}

		l := linker.Link{
			SourceID: strings.TrimSpace(rec.SourceID),
			TargetID: strings.TrimSpace(rec.TargetID),
			Type:     strings.TrimSpace(rec.LinkType),
		}
		if l.SourceID == "" || l.TargetID == "" {
			return nil, eris.Errorf("ingest: link row %d has empty identifier", len(links)+1)
		}

		if raw := strings.TrimSpace(rec.LinkDt); raw != "" {
			l.ValidFrom, err = parseLinkDate(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: link row %d start", len(links)+1)
			}
		}
		if raw := strings.TrimSpace(rec.LinkEndDt); raw != "" && !strings.EqualFold(raw, "E") {
			l.ValidTo, err = parseLinkDate(raw)
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: link row %d end", len(links)+1)
			}
		}

		links = append(links, l)
	}

	table := linker.NewTable(links, opts)
	zap.L().Info("link table loaded", zap.Int("links", table.Len()))
	return table, nil
}

// LoadLinksFile opens and decodes a crosswalk CSV by path.
func LoadLinksFile(path string, opts linker.Options) (*linker.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()
	return LoadLinks(f, opts)
}
