package frame

import "strings"

// defaultMissingMarkers are the raw tokens research vendors use for absent
// values. Census suppression flags and SAS missing dots both show up in
// otherwise numeric columns.
var defaultMissingMarkers = []string{"", ".", "NA", "N/A", "NaN", "NULL", "*", "**", "#"}

// Rule is a declarative per-field ingestion transform. Source-specific
// quirks (sign conventions, reporting-unit scaling, identifier case) are
// declared here once instead of scattered through stage code.
type Rule struct {
	Field          string   `yaml:"field" json:"field"`
	Trim           bool     `yaml:"trim" json:"trim"`
	Uppercase      bool     `yaml:"uppercase" json:"uppercase"`
	SignFlip       bool     `yaml:"sign_flip" json:"sign_flip"`
	Scale          float64  `yaml:"scale" json:"scale"`
	MissingMarkers []string `yaml:"missing_markers" json:"missing_markers"`
}

// normalizeRaw applies string-level transforms and missing-marker matching
// before typed parsing. An empty result parses to missing.
func normalizeRaw(raw string, rule Rule, hasRule bool) string {
	trimmed := strings.TrimSpace(raw)

	markers := defaultMissingMarkers
	if hasRule && len(rule.MissingMarkers) > 0 {
		markers = rule.MissingMarkers
	}
	for _, m := range markers {
		if strings.EqualFold(trimmed, m) {
			return ""
		}
	}

	out := raw
	if !hasRule || rule.Trim {
		out = trimmed
	}
	if hasRule && rule.Uppercase {
		out = strings.ToUpper(out)
	}
	return out
}

// applyValue applies numeric transforms after parsing.
func (r Rule) applyValue(v Value) Value {
	n, ok := v.Num()
	if !ok {
		return v
	}
	if r.SignFlip {
		n = -n
	}
	if r.Scale != 0 && r.Scale != 1 {
		n *= r.Scale
	}
	return Number(n)
}
