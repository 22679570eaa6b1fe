// Package report renders pipeline diagnostics for humans and for structured
// consumers. The pipeline itself never acts on a report; rendering is the
// caller's concern.
package report

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/panel-cli/internal/derive"
	"github.com/sells-group/panel-cli/internal/merge"
	"github.com/sells-group/panel-cli/internal/panel"
)

// Run bundles everything one pipeline invocation produced for reporting.
// Sections are optional: a validate-only run carries just Diagnostics.
type Run struct {
	Dataset     string              `json:"dataset"`
	Merge       *MergeSummary       `json:"merge,omitempty"`
	Diagnostics *panel.Report       `json:"diagnostics,omitempty"`
	Derived     *derive.ApplyReport `json:"derived,omitempty"`
}

// MergeSummary condenses a merge result's partitions into counts plus the
// per-condition breakdown of dropped rows.
type MergeSummary struct {
	Matched   int             `json:"matched"`
	LeftOnly  int             `json:"left_only"`
	RightOnly int             `json:"right_only"`
	Dropped   []merge.Dropped `json:"dropped,omitempty"`
}

// Summarize builds a MergeSummary from a merge result.
func Summarize(res *merge.Result) *MergeSummary {
	return &MergeSummary{
		Matched:   res.Matched.Len(),
		LeftOnly:  len(res.LeftOnly),
		RightOnly: len(res.RightOnly),
		Dropped:   res.Dropped,
	}
}

// JSON renders the run report as indented JSON.
func (r *Run) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Text renders a human-readable report. Counts are grouped per locale
// conventions since panels routinely run to millions of rows.
func (r *Run) Text() string {
	p := message.NewPrinter(language.English)
	var b strings.Builder

	fmt.Fprintf(&b, "# Panel Report: %s\n\n", r.Dataset)

	if m := r.Merge; m != nil {
		b.WriteString("## Merge\n")
		p.Fprintf(&b, "- Matched: %d\n", m.Matched)
		p.Fprintf(&b, "- Left-only: %d\n", m.LeftOnly)
		p.Fprintf(&b, "- Right-only: %d\n", m.RightOnly)
		p.Fprintf(&b, "- Dropped: %d\n", len(m.Dropped))

		byCond := map[merge.Condition]int{}
		for _, d := range m.Dropped {
			byCond[d.Condition]++
		}
		conds := make([]string, 0, len(byCond))
		for c := range byCond {
			conds = append(conds, string(c))
		}
		sort.Strings(conds)
		for _, c := range conds {
			p.Fprintf(&b, "  - %s: %d\n", c, byCond[merge.Condition(c)])
		}
		b.WriteString("\n")
	}

	if d := r.Diagnostics; d != nil {
		b.WriteString("## Panel Structure\n")
		p.Fprintf(&b, "- Rows: %d\n", d.TotalRows)
		p.Fprintf(&b, "- Entities: %d | Periods: %d\n", d.Entities, d.Periods)
		fmt.Fprintf(&b, "- Balance: %s (ratio %.2f)\n", d.Balance, d.BalanceRatio)
		p.Fprintf(&b, "- Duplicate groups: %d\n", d.DuplicateGroups)
		for _, dup := range d.DuplicateSample {
			p.Fprintf(&b, "  - (%s, %s): %d rows\n", dup.Entity, dup.Time, dup.Count)
		}
		b.WriteString("\n## Coverage\n")
		for _, fc := range d.Coverage {
			fmt.Fprintf(&b, "- %s: %.1f%%\n", fc.Field, fc.Coverage*100)
			if len(fc.ByBucket) > 0 {
				buckets := make([]string, 0, len(fc.ByBucket))
				for tm := range fc.ByBucket {
					buckets = append(buckets, tm)
				}
				sort.Strings(buckets)
				for _, tm := range buckets {
					fmt.Fprintf(&b, "  - %s: %.1f%%\n", tm, fc.ByBucket[tm]*100)
				}
			}
		}
		b.WriteString("\n")
	}

	if dv := r.Derived; dv != nil && len(dv.Outcomes) > 0 {
		b.WriteString("## Derived Variables\n")
		for _, oc := range dv.Outcomes {
			p.Fprintf(&b, "- %s: %d rows missing", oc.Variable, oc.MissingRows)
			if oc.Citation != "" {
				fmt.Fprintf(&b, " (%s)", oc.Citation)
			}
			b.WriteString("\n")
		}
	}

	return b.String()
}
