package wrds

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/linker"
)

// fundamentalsSQL pulls the quarterly fundamentals columns the variable
// builder's canonical inputs map to. Column aliases translate the vendor's
// mnemonics once, at the boundary.
const fundamentalsSQL = `
SELECT gvkey,
       datacqtr,
       atq    AS assets,
       niq    AS ni,
       seqq   AS seq,
       ceqq   AS ceq,
       dlttq  AS dlt,
       dlcq   AS dlc,
       cheq   AS che,
       dpq    AS dp,
       capxy  AS capx,
       xrdq   AS xrd,
       oibdpq AS oibdp,
       xintq  AS xint,
       txtq   AS txt,
       prccq  AS prc,
       cshoq  AS shares
FROM comp.fundq
WHERE datadate >= $1 AND datadate <= $2
  AND ($3::text[] IS NULL OR gvkey = ANY($3))
ORDER BY gvkey, datacqtr`

var fundamentalsFields = []frame.Field{
	{Name: "gvkey", Kind: frame.KindString},
	{Name: "datacqtr", Kind: frame.KindPeriod},
	{Name: "assets", Kind: frame.KindNumber},
	{Name: "ni", Kind: frame.KindNumber},
	{Name: "seq", Kind: frame.KindNumber},
	{Name: "ceq", Kind: frame.KindNumber},
	{Name: "dlt", Kind: frame.KindNumber},
	{Name: "dlc", Kind: frame.KindNumber},
	{Name: "che", Kind: frame.KindNumber},
	{Name: "dp", Kind: frame.KindNumber},
	{Name: "capx", Kind: frame.KindNumber},
	{Name: "xrd", Kind: frame.KindNumber},
	{Name: "oibdp", Kind: frame.KindNumber},
	{Name: "xint", Kind: frame.KindNumber},
	{Name: "txt", Kind: frame.KindNumber},
	{Name: "prc", Kind: frame.KindNumber},
	{Name: "shares", Kind: frame.KindNumber},
}

// QuarterlyFundamentals pulls quarterly fundamentals into a typed dataset
// keyed by (gvkey, datacqtr).
func (c *Client) QuarterlyFundamentals(ctx context.Context, q RangeQuery) (*frame.Dataset, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, fundamentalsSQL, q.From, q.To, idsParam(q.IDs))
	if err != nil {
		return nil, eris.Wrap(err, "wrds: fundamentals query")
	}
	defer rows.Close()

	schema, err := frame.NewSchema("gvkey", "datacqtr", fundamentalsFields)
	if err != nil {
		return nil, err
	}
	ds := frame.New("fundamentals", schema)

	for rows.Next() {
		var gvkey, qtr string
		nums := make([]*float64, len(fundamentalsFields)-2)
		dest := []any{&gvkey, &qtr}
		for i := range nums {
			dest = append(dest, &nums[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "wrds: scan fundamentals row")
		}

		period, err := frame.ParsePeriod(qtr)
		if err != nil {
			return nil, eris.Wrapf(err, "wrds: fundamentals gvkey %s", gvkey)
		}

		row := make(frame.Row, 0, len(fundamentalsFields))
		row = append(row, frame.String(gvkey), frame.PeriodValue(period))
		for _, n := range nums {
			row = append(row, numValue(n))
		}
		if err := ds.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "wrds: fundamentals iterate")
	}

	zap.L().Info("fundamentals pulled", zap.Int("rows", ds.Len()))
	return ds, nil
}

const pricesSQL = `
SELECT permno, date, prc, ret, vol
FROM crsp.msf
WHERE date >= $1 AND date <= $2
  AND ($3::text[] IS NULL OR permno::text = ANY($3))
ORDER BY permno, date`

// MonthlyPrices pulls the monthly security file into a typed dataset keyed
// by (permno, month). Raw prices keep the vendor's bid/ask-midpoint sign
// convention; cleaning belongs to the variable builder.
func (c *Client) MonthlyPrices(ctx context.Context, q RangeQuery) (*frame.Dataset, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, pricesSQL, q.From, q.To, idsParam(q.IDs))
	if err != nil {
		return nil, eris.Wrap(err, "wrds: prices query")
	}
	defer rows.Close()

	schema, err := frame.NewSchema("permno", "month", []frame.Field{
		{Name: "permno", Kind: frame.KindString},
		{Name: "month", Kind: frame.KindPeriod},
		{Name: "prc", Kind: frame.KindNumber},
		{Name: "ret", Kind: frame.KindNumber},
		{Name: "vol", Kind: frame.KindNumber},
	})
	if err != nil {
		return nil, err
	}
	ds := frame.New("prices", schema)

	for rows.Next() {
		var permno string
		var date time.Time
		var prc, ret, vol *float64
		if err := rows.Scan(&permno, &date, &prc, &ret, &vol); err != nil {
			return nil, eris.Wrap(err, "wrds: scan prices row")
		}

		row := frame.Row{
			frame.String(permno),
			frame.PeriodValue(frame.PeriodOf(date, frame.Monthly)),
			numValue(prc),
			numValue(ret),
			numValue(vol),
		}
		if err := ds.Append(row); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "wrds: prices iterate")
	}

	zap.L().Info("prices pulled", zap.Int("rows", ds.Len()))
	return ds, nil
}

const linkHistorySQL = `
SELECT gvkey, lpermno::text, linktype, linkdt, linkenddt
FROM crsp.ccmxpf_lnkhist
WHERE linktype IN ('LU', 'LC', 'LS')
ORDER BY gvkey, linkdt`

// LinkHistory pulls the identifier crosswalk. A NULL end date means the
// link is still active.
func (c *Client) LinkHistory(ctx context.Context) ([]linker.Link, error) {
	ctx, cancel := c.queryCtx(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, linkHistorySQL)
	if err != nil {
		return nil, eris.Wrap(err, "wrds: link history query")
	}
	defer rows.Close()

	var links []linker.Link
	for rows.Next() {
		var l linker.Link
		var from, to *time.Time
		if err := rows.Scan(&l.SourceID, &l.TargetID, &l.Type, &from, &to); err != nil {
			return nil, eris.Wrap(err, "wrds: scan link row")
		}
		if from != nil {
			l.ValidFrom = *from
		}
		if to != nil {
			l.ValidTo = *to
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "wrds: link history iterate")
	}

	zap.L().Info("link history pulled", zap.Int("links", len(links)))
	return links, nil
}

// idsParam maps an empty ID list to NULL so the SQL filter collapses away.
func idsParam(ids []string) any {
	if len(ids) == 0 {
		return nil
	}
	return ids
}

func numValue(n *float64) frame.Value {
	if n == nil {
		return frame.Missing(frame.KindNumber)
	}
	return frame.Number(*n)
}
