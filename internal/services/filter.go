package services

import (
	"sort"
	"strings"
	"time"

	"grana/internal/core"
)

// Criteria narrows a transaction set. Zero values mean "no constraint": a
// zero time leaves that side of the date window open, empty category/kind
// match everything (the "all" sentinel of the filter UI), and an empty
// search skips the description test. End is inclusive through end of day.
type Criteria struct {
	Start    time.Time
	End      time.Time
	Category string
	Kind     core.Kind
	Search   string
}

// IsZero reports whether no constraint is set.
func (c Criteria) IsZero() bool {
	return c.Start.IsZero() && c.End.IsZero() && c.Category == "" && c.Kind == "" && c.Search == ""
}

// Filter returns the transactions passing every specified criterion,
// preserving input order. The result is always a fresh slice.
func Filter(ts []core.Transaction, c Criteria) []core.Transaction {
	end := c.End
	if !end.IsZero() {
		end = endOfDay(end)
	}

	search := strings.ToLower(strings.TrimSpace(c.Search))

	out := make([]core.Transaction, 0, len(ts))
	for _, t := range ts {
		if !c.Start.IsZero() && t.Timestamp.Before(c.Start) {
			continue
		}
		if !end.IsZero() && t.Timestamp.After(end) {
			continue
		}
		if c.Category != "" && t.Category != c.Category {
			continue
		}
		if c.Kind != "" && t.Kind != c.Kind {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(t.Description), search) {
			continue
		}
		out = append(out, t)
	}
	return out
}

// FilterOptions are the dropdown values derivable from a transaction set:
// the distinct months (newest first) and categories (alphabetical) present.
type FilterOptions struct {
	Months     []string
	Categories []string
}

// Options derives the filter dropdown values from the full transaction set.
func Options(ts []core.Transaction) FilterOptions {
	monthSet := make(map[string]struct{})
	catSet := make(map[string]struct{})
	for _, t := range ts {
		monthSet[core.YearMonthOf(t.Timestamp).String()] = struct{}{}
		if t.Category != "" {
			catSet[t.Category] = struct{}{}
		}
	}

	opts := FilterOptions{
		Months:     make([]string, 0, len(monthSet)),
		Categories: make([]string, 0, len(catSet)),
	}
	for m := range monthSet {
		opts.Months = append(opts.Months, m)
	}
	for c := range catSet {
		opts.Categories = append(opts.Categories, c)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(opts.Months)))
	sort.Strings(opts.Categories)
	return opts
}

func endOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 23, 59, 59, int(time.Second-time.Nanosecond), t.Location())
}
