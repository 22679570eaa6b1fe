// Package linker resolves identifiers across datasets through a crosswalk
// table with temporal validity windows and ranked link types. Resolution is
// a pure lookup: no active link and ambiguous links are typed failures,
// never silent guesses.
package linker

import (
	"fmt"
	"sort"
	"time"
)

// Link is one crosswalk row: source identifier → target identifier, active
// over [ValidFrom, ValidTo]. A zero ValidFrom means active since forever; a
// zero ValidTo means still active (the WRDS link history encodes this as an
// 'E' end date).
type Link struct {
	SourceID  string
	TargetID  string
	ValidFrom time.Time
	ValidTo   time.Time
	Type      string
}

// Options configures lookup semantics for one table.
type Options struct {
	// Priority ranks link types best-first (e.g. primary before secondary).
	// Types not listed rank below all listed types, tied with each other.
	Priority []string

	// EndExclusive treats ValidTo as the first day the link is no longer
	// active. Vendors differ on this convention, so it is explicit.
	EndExclusive bool
}

// Table is an immutable, indexed linking table.
type Table struct {
	bySource map[string][]Link
	rank     map[string]int
	opts     Options
}

// NewTable indexes the links for lookup.
func NewTable(links []Link, opts Options) *Table {
	rank := make(map[string]int, len(opts.Priority))
	for i, t := range opts.Priority {
		rank[t] = i
	}
	bySource := make(map[string][]Link)
	for _, l := range links {
		bySource[l.SourceID] = append(bySource[l.SourceID], l)
	}
	return &Table{bySource: bySource, rank: rank, opts: opts}
}

// Len returns the number of links in the table.
func (t *Table) Len() int {
	n := 0
	for _, ls := range t.bySource {
		n += len(ls)
	}
	return n
}

// NoActiveLinkError reports that no link covers the as-of date.
type NoActiveLinkError struct {
	SourceID string
	AsOf     time.Time
}

func (e *NoActiveLinkError) Error() string {
	return fmt.Sprintf("no active link for %s as of %s", e.SourceID, e.AsOf.Format("2006-01-02"))
}

// AmbiguousLinkError reports that more than one link of the same top rank
// covers the as-of date with conflicting targets. The candidates are carried
// so callers can surface the conflict instead of hiding it.
type AmbiguousLinkError struct {
	SourceID   string
	AsOf       time.Time
	Candidates []Link
}

func (e *AmbiguousLinkError) Error() string {
	targets := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		targets = append(targets, c.TargetID)
	}
	return fmt.Sprintf("ambiguous link for %s as of %s: %d equal-rank candidates (%v)",
		e.SourceID, e.AsOf.Format("2006-01-02"), len(e.Candidates), targets)
}

// active reports whether l covers asOf under the table's end convention.
// The start bound is always inclusive.
func (t *Table) active(l Link, asOf time.Time) bool {
	if !l.ValidFrom.IsZero() && asOf.Before(l.ValidFrom) {
		return false
	}
	if l.ValidTo.IsZero() {
		return true
	}
	if t.opts.EndExclusive {
		return asOf.Before(l.ValidTo)
	}
	return !asOf.After(l.ValidTo)
}

// typeRank returns the priority index of a link type; unlisted types rank
// below every listed type.
func (t *Table) typeRank(linkType string) int {
	if r, ok := t.rank[linkType]; ok {
		return r
	}
	return len(t.opts.Priority)
}

// Resolve returns the target identifier active for sourceID on asOf.
// Candidates are filtered to active windows, then narrowed to the best link
// type rank. A single surviving target wins; equal-rank survivors with
// different targets are an AmbiguousLinkError. Duplicate rows pointing at
// the same target are harmless.
func (t *Table) Resolve(sourceID string, asOf time.Time) (string, error) {
	var best []Link
	bestRank := -1
	for _, l := range t.bySource[sourceID] {
		if !t.active(l, asOf) {
			continue
		}
		r := t.typeRank(l.Type)
		switch {
		case bestRank == -1 || r < bestRank:
			bestRank = r
			best = best[:0]
			best = append(best, l)
		case r == bestRank:
			best = append(best, l)
		}
	}

	if len(best) == 0 {
		return "", &NoActiveLinkError{SourceID: sourceID, AsOf: asOf}
	}

	target := best[0].TargetID
	for _, l := range best[1:] {
		if l.TargetID != target {
			return "", &AmbiguousLinkError{SourceID: sourceID, AsOf: asOf, Candidates: best}
		}
	}
	return target, nil
}

// Overlap describes two same-rank links for one source whose validity
// windows intersect while pointing at different targets. Every overlap is a
// latent AmbiguousLink for any as-of date inside the intersection.
type Overlap struct {
	SourceID string
	A, B     Link
}

// Overlaps audits the whole table and returns every same-rank conflicting
// overlap, ordered by source identifier. Useful as a pre-flight check on a
// freshly pulled crosswalk.
func (t *Table) Overlaps() []Overlap {
	var out []Overlap
	sources := make([]string, 0, len(t.bySource))
	for s := range t.bySource {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	for _, s := range sources {
		links := t.bySource[s]
		for i := 0; i < len(links); i++ {
			for j := i + 1; j < len(links); j++ {
				a, b := links[i], links[j]
				if a.TargetID == b.TargetID || t.typeRank(a.Type) != t.typeRank(b.Type) {
					continue
				}
				if t.windowsIntersect(a, b) {
					out = append(out, Overlap{SourceID: s, A: a, B: b})
				}
			}
		}
	}
	return out
}

func (t *Table) windowsIntersect(a, b Link) bool {
	aFrom, aTo := a.ValidFrom, a.ValidTo
	bFrom, bTo := b.ValidFrom, b.ValidTo

	startsBeforeEnd := func(start, end time.Time) bool {
		if end.IsZero() {
			return true
		}
		if t.opts.EndExclusive {
			return start.Before(end)
		}
		return !start.After(end)
	}
	return startsBeforeEnd(aFrom, bTo) && startsBeforeEnd(bFrom, aTo)
}
