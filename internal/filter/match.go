package filter

import (
	"time"

	"github.com/onnwee/wastemap/internal/geo"
)

// Record is an entity that in-memory stores can evaluate Criteria against.
// Each accessor returns ok=false when the key does not apply to the record's
// type, mirroring a target that leaves the key out of its Columns.
type Record interface {
	FilterTime() (time.Time, bool)
	FilterValue(k Key) (string, bool)
	FilterLocation() (geo.Location, bool)
}

// Matches evaluates c against r with the same semantics Build gives the SQL
// store: every applicable present key must hold.
func (c Criteria) Matches(r Record) bool {
	if c.Start != nil || c.End != nil {
		if t, ok := r.FilterTime(); ok {
			if c.Start != nil && t.Before(*c.Start) {
				return false
			}
			if c.End != nil {
				if c.EndExclusive && !t.Before(*c.End) {
					return false
				}
				if !c.EndExclusive && t.After(*c.End) {
					return false
				}
			}
		}
	}

	if c.Bounds != nil {
		if loc, ok := r.FilterLocation(); ok && !c.Bounds.Contains(loc) {
			return false
		}
	}

	for k, want := range c.equals {
		if got, ok := r.FilterValue(k); ok && got != want {
			return false
		}
	}
	return true
}
