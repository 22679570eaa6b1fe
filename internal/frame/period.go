package frame

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Freq is the calendar frequency of a period.
type Freq int

const (
	Monthly Freq = iota + 1
	Quarterly
	Annual
)

// String returns the human-readable frequency name.
func (f Freq) String() string {
	switch f {
	case Monthly:
		return "monthly"
	case Quarterly:
		return "quarterly"
	case Annual:
		return "annual"
	default:
		return "unknown"
	}
}

// ParseFreq converts "monthly", "quarterly", or "annual" into a Freq.
func ParseFreq(s string) (Freq, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "monthly", "month", "m":
		return Monthly, nil
	case "quarterly", "quarter", "q":
		return Quarterly, nil
	case "annual", "year", "y", "a":
		return Annual, nil
	default:
		return 0, eris.Errorf("unknown frequency: %q (valid: monthly, quarterly, annual)", s)
	}
}

// Period is one calendar observation period. Sub is the month (1-12) for
// monthly periods, the quarter (1-4) for quarterly periods, and 0 for annual.
type Period struct {
	Year int
	Sub  int
	Freq Freq
}

// ParsePeriod parses the period encodings used by research data vendors:
// "2020Q1" (quarterly, the Compustat datacqtr shape), "2020-03" and "2020M3"
// (monthly), and "2020" (annual).
func ParsePeriod(s string) (Period, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return Period{}, eris.New("empty period")
	}

	if i := strings.IndexByte(s, 'Q'); i > 0 {
		year, err1 := strconv.Atoi(s[:i])
		q, err2 := strconv.Atoi(s[i+1:])
		if err1 != nil || err2 != nil || q < 1 || q > 4 {
			return Period{}, eris.Errorf("parse period %q: bad quarterly form", s)
		}
		return Period{Year: year, Sub: q, Freq: Quarterly}, nil
	}

	for _, sep := range []string{"-", "M"} {
		if i := strings.Index(s, sep); i > 0 {
			year, err1 := strconv.Atoi(s[:i])
			m, err2 := strconv.Atoi(s[i+len(sep):])
			if err1 != nil || err2 != nil || m < 1 || m > 12 {
				return Period{}, eris.Errorf("parse period %q: bad monthly form", s)
			}
			return Period{Year: year, Sub: m, Freq: Monthly}, nil
		}
	}

	year, err := strconv.Atoi(s)
	if err != nil || year < 1000 || year > 9999 {
		return Period{}, eris.Errorf("parse period %q: bad annual form", s)
	}
	return Period{Year: year, Freq: Annual}, nil
}

// PeriodOf buckets a calendar date into a period at the given frequency.
func PeriodOf(t time.Time, f Freq) Period {
	switch f {
	case Monthly:
		return Period{Year: t.Year(), Sub: int(t.Month()), Freq: Monthly}
	case Quarterly:
		return Period{Year: t.Year(), Sub: (int(t.Month())-1)/3 + 1, Freq: Quarterly}
	default:
		return Period{Year: t.Year(), Freq: Annual}
	}
}

// String renders the period: "2020Q1", "2020-03", "2020".
func (p Period) String() string {
	switch p.Freq {
	case Monthly:
		return fmt.Sprintf("%04d-%02d", p.Year, p.Sub)
	case Quarterly:
		return fmt.Sprintf("%04dQ%d", p.Year, p.Sub)
	default:
		return fmt.Sprintf("%04d", p.Year)
	}
}

// Quarter returns the quarterly period containing p. Quarterly and annual
// periods are returned unchanged (annual has no unique quarter).
func (p Period) Quarter() Period {
	if p.Freq != Monthly {
		return p
	}
	return Period{Year: p.Year, Sub: (p.Sub-1)/3 + 1, Freq: Quarterly}
}

// YearPeriod returns the annual period containing p.
func (p Period) YearPeriod() Period {
	return Period{Year: p.Year, Freq: Annual}
}

// ContainedIn reports whether p falls inside the coarser period c. A period
// is contained in itself. A finer period is never a container for a coarser
// one.
func (p Period) ContainedIn(c Period) bool {
	if p == c {
		return true
	}
	if p.Freq >= c.Freq {
		return false
	}
	switch c.Freq {
	case Quarterly:
		return p.Quarter() == c
	case Annual:
		return p.Year == c.Year
	default:
		return false
	}
}

// Before orders periods of the same frequency chronologically. Mixed
// frequencies compare by year only.
func (p Period) Before(q Period) bool {
	if p.Year != q.Year {
		return p.Year < q.Year
	}
	if p.Freq != q.Freq {
		return p.Freq > q.Freq
	}
	return p.Sub < q.Sub
}
