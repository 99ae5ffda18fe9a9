// Package grid implements cutter grid sequence numbering and cutter
// map cell status derivation for PDC bit designs.
package grid

import (
	"fmt"
	"sort"
)

// Ordering schemes for grid cell sequence numbers.
const (
	SchemeContinuous   = "continuous"
	SchemeResetPerType = "reset_per_type"
	SchemeEngagement   = "engagement"
)

// Schemes lists the valid ordering scheme names.
var Schemes = []string{SchemeContinuous, SchemeResetPerType, SchemeEngagement}

// Cell is one pocket position on a bit design grid.
type Cell struct {
	Blade      int
	Pocket     int
	IsPrimary  bool
	CutterType string
	Seq        int
}

type posKey struct {
	blade   int
	pocket  int
	primary bool
}

// Validate checks cells against the design header: positions must be
// within bounds and (blade, pocket, is_primary) unique.
func Validate(cells []Cell, bladeCount, maxPockets int) error {
	seen := make(map[posKey]bool, len(cells))
	for _, c := range cells {
		if c.Blade < 1 || c.Blade > bladeCount {
			return fmt.Errorf("blade %d out of range 1..%d", c.Blade, bladeCount)
		}
		if c.Pocket < 1 || c.Pocket > maxPockets {
			return fmt.Errorf("pocket %d out of range 1..%d", c.Pocket, maxPockets)
		}
		k := posKey{c.Blade, c.Pocket, c.IsPrimary}
		if seen[k] {
			row := "primary"
			if !c.IsPrimary {
				row = "secondary"
			}
			return fmt.Errorf("duplicate %s cell at blade %d pocket %d", row, c.Blade, c.Pocket)
		}
		seen[k] = true
	}
	return nil
}

// walkLess orders cells for numbering. Continuous and reset_per_type
// walk blade-major; engagement walks pocket-major so that cells are
// visited in the order the formation engages them (cone to gauge).
// Primary rows always come before secondary rows at the same position.
func walkLess(scheme string, a, b Cell) bool {
	switch scheme {
	case SchemeEngagement:
		if a.Pocket != b.Pocket {
			return a.Pocket < b.Pocket
		}
		if a.Blade != b.Blade {
			return a.Blade < b.Blade
		}
	default:
		if a.Blade != b.Blade {
			return a.Blade < b.Blade
		}
		if a.Pocket != b.Pocket {
			return a.Pocket < b.Pocket
		}
	}
	return a.IsPrimary && !b.IsPrimary
}

// Number assigns sequence numbers to a copy of cells per the scheme
// and returns them in walk order. Under reset_per_type, cells with no
// required cutter type keep Seq 0.
func Number(cells []Cell, scheme string) ([]Cell, error) {
	switch scheme {
	case SchemeContinuous, SchemeResetPerType, SchemeEngagement:
	default:
		return nil, fmt.Errorf("unknown ordering scheme %q", scheme)
	}

	out := make([]Cell, len(cells))
	copy(out, cells)
	sort.SliceStable(out, func(i, j int) bool { return walkLess(scheme, out[i], out[j]) })

	if scheme == SchemeResetPerType {
		counters := make(map[string]int)
		for i := range out {
			if out[i].CutterType == "" {
				out[i].Seq = 0
				continue
			}
			counters[out[i].CutterType]++
			out[i].Seq = counters[out[i].CutterType]
		}
		return out, nil
	}

	for i := range out {
		out[i].Seq = i + 1
	}
	return out, nil
}

// Map cell statuses derived from required vs actual cutter.
const (
	StatusEmpty      = "empty"
	StatusMissing    = "missing"
	StatusExtra      = "extra"
	StatusMatch      = "match"
	StatusSubstitute = "substitute"
)

// CellStatus derives a map cell status. It is a pure function of the
// required and actual cutter types.
func CellStatus(required, actual string) string {
	switch {
	case required == "" && actual == "":
		return StatusEmpty
	case actual == "":
		return StatusMissing
	case required == "":
		return StatusExtra
	case required == actual:
		return StatusMatch
	default:
		return StatusSubstitute
	}
}

// Summary counts map cells by status.
type Summary struct {
	Match      int
	Substitute int
	Missing    int
	Extra      int
	Empty      int
}

// Add tallies one status into the summary.
func (s *Summary) Add(status string) {
	switch status {
	case StatusMatch:
		s.Match++
	case StatusSubstitute:
		s.Substitute++
	case StatusMissing:
		s.Missing++
	case StatusExtra:
		s.Extra++
	case StatusEmpty:
		s.Empty++
	}
}

// Completion is the fraction of required pockets that have a cutter
// installed. Maps with no required pockets report 1.
func (s Summary) Completion() float64 {
	denom := s.Match + s.Substitute + s.Missing
	if denom == 0 {
		return 1
	}
	return float64(s.Match+s.Substitute) / float64(denom)
}
