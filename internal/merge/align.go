package merge

import (
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/panel-cli/internal/frame"
)

// AlignRule decides when a left record's time value matches a right
// record's time value.
type AlignRule int

const (
	// AlignExact requires identical time values (same period or same date).
	AlignExact AlignRule = iota
	// AlignContains matches a finer left period falling inside a coarser
	// right period: month in quarter, quarter in year, month in year.
	AlignContains
)

// String returns the rule identifier used in config and flags.
func (r AlignRule) String() string {
	if r == AlignContains {
		return "contains"
	}
	return "exact"
}

// ParseAlignRule converts a rule identifier into an AlignRule.
func ParseAlignRule(s string) (AlignRule, error) {
	switch s {
	case "exact", "":
		return AlignExact, nil
	case "contains":
		return AlignContains, nil
	default:
		return 0, eris.Errorf("unknown alignment rule: %q (valid: exact, contains)", s)
	}
}

// aligned reports whether the left time value matches the right time value
// under the rule.
func aligned(left, right frame.Value, rule AlignRule) bool {
	if left.IsMissing() || right.IsMissing() {
		return false
	}
	switch rule {
	case AlignContains:
		lp, lok := left.Period()
		rp, rok := right.Period()
		if !lok || !rok {
			return false
		}
		return lp.ContainedIn(rp)
	default:
		return left.Key() == right.Key()
	}
}

// asOfDate converts a time-key value into the calendar date used for link
// validity checks. Periods resolve to their last day, matching the research
// convention of validating links against the observation's period end.
func asOfDate(v frame.Value) (time.Time, bool) {
	if t, ok := v.Time(); ok {
		return t, true
	}
	p, ok := v.Period()
	if !ok {
		return time.Time{}, false
	}
	var lastMonth time.Month
	switch p.Freq {
	case frame.Monthly:
		lastMonth = time.Month(p.Sub)
	case frame.Quarterly:
		lastMonth = time.Month(p.Sub * 3)
	default:
		lastMonth = time.December
	}
	firstOfNext := time.Date(p.Year, lastMonth, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1), true
}
