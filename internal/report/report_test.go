package report

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/panel-cli/internal/derive"
	"github.com/sells-group/panel-cli/internal/frame"
	"github.com/sells-group/panel-cli/internal/merge"
	"github.com/sells-group/panel-cli/internal/panel"
)

func sampleRun() *Run {
	return &Run{
		Dataset: "fundamentals",
		Merge: &MergeSummary{
			Matched:   1200000,
			LeftOnly:  34,
			RightOnly: 7,
			Dropped: []merge.Dropped{
				{LeftIndex: 3, Entity: "X", Time: "2020Q1", Condition: merge.CondNoActiveLink},
				{LeftIndex: 9, Entity: "Y", Time: "2020Q2", Condition: merge.CondNoActiveLink},
				{LeftIndex: 12, Entity: "Z", Time: "2020Q1", Condition: merge.CondMultipleMatch},
			},
		},
		Diagnostics: &panel.Report{
			Dataset:         "fundamentals",
			TotalRows:       1200000,
			Entities:        3000,
			Periods:         400,
			Balance:         panel.Balanced,
			BalanceRatio:    1.0,
			DuplicateGroups: 1,
			DuplicateSample: []panel.DuplicateKey{{Entity: "X", Time: "2020Q1", Count: 2}},
			Coverage: []panel.FieldCoverage{
				{Field: "assets", Coverage: 0.98},
				{Field: "ni", Coverage: 0.75, ByBucket: map[string]float64{"2020Q1": 0.5, "2020Q2": 1.0}},
			},
		},
		Derived: &derive.ApplyReport{
			Outcomes: []derive.VariableOutcome{
				{Variable: "leverage", Citation: "Rajan & Zingales (1995)", MissingRows: 12},
			},
		},
	}
}

func TestText_Sections(t *testing.T) {
	got := sampleRun().Text()

	assert.Contains(t, got, "# Panel Report: fundamentals")
	assert.Contains(t, got, "## Merge")
	assert.Contains(t, got, "- Matched: 1,200,000")
	assert.Contains(t, got, "- Dropped: 3")
}

func TestText_DroppedBreakdown(t *testing.T) {
	got := sampleRun().Text()

	assert.Contains(t, got, "- no_active_link: 2")
	assert.Contains(t, got, "- multiple_match: 1")
	assert.NotContains(t, got, "ambiguous_link")
}

func TestText_PanelAndCoverage(t *testing.T) {
	got := sampleRun().Text()

	assert.Contains(t, got, "- Balance: balanced (ratio 1.00)")
	assert.Contains(t, got, "- (X, 2020Q1): 2 rows")
	assert.Contains(t, got, "- assets: 98.0%")
	assert.Contains(t, got, "  - 2020Q1: 50.0%")
	assert.Contains(t, got, "  - 2020Q2: 100.0%")
}

func TestText_Derived(t *testing.T) {
	got := sampleRun().Text()

	assert.Contains(t, got, "- leverage: 12 rows missing (Rajan & Zingales (1995))")
}

func TestText_ValidateOnly(t *testing.T) {
	r := &Run{Dataset: "prices", Diagnostics: &panel.Report{Dataset: "prices", Balance: panel.SinglePeriod}}
	got := r.Text()

	assert.Contains(t, got, "## Panel Structure")
	assert.NotContains(t, got, "## Merge")
	assert.NotContains(t, got, "## Derived Variables")
}

func TestSummarize(t *testing.T) {
	res := &merge.Result{
		LeftOnly:  []int{1, 4},
		RightOnly: []int{2},
		Dropped:   []merge.Dropped{{LeftIndex: 0, Condition: merge.CondAmbiguousLink}},
	}
	// Summarize is only called on a completed merge, so build a minimal
	// matched dataset here.
	schema, err := frame.NewSchema("id", "qtr", []frame.Field{
		{Name: "id", Kind: frame.KindString},
		{Name: "qtr", Kind: frame.KindPeriod},
	})
	require.NoError(t, err)
	res.Matched = frame.New("merged", schema)

	s := Summarize(res)
	assert.Equal(t, 0, s.Matched)
	assert.Equal(t, 2, s.LeftOnly)
	assert.Equal(t, 1, s.RightOnly)
	assert.Len(t, s.Dropped, 1)
}

func TestJSON_RoundTrip(t *testing.T) {
	raw, err := sampleRun().JSON()
	require.NoError(t, err)

	var decoded Run
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "fundamentals", decoded.Dataset)
	require.NotNil(t, decoded.Merge)
	assert.Equal(t, 1200000, decoded.Merge.Matched)
	require.NotNil(t, decoded.Diagnostics)
	assert.Equal(t, panel.Balanced, decoded.Diagnostics.Balance)
}
