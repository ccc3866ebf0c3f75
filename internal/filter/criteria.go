package filter

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/onnwee/wastemap/internal/apperr"
	"github.com/onnwee/wastemap/internal/geo"
)

const dateLayout = "2006-01-02"

// Criteria is the typed form of Values. Only Parse constructs it.
type Criteria struct {
	// Start is the inclusive lower bound on the target's time column.
	Start *time.Time
	// End is the upper bound on the target's time column. It is exclusive
	// when EndExclusive is set, which happens for date-only input.
	End          *time.Time
	EndExclusive bool
	// Bounds restricts locations to a lat/lng rectangle.
	Bounds *geo.Box

	equals map[Key]string
}

// Equal returns the exact-match value for k, if present.
func (c Criteria) Equal(k Key) (string, bool) {
	s, ok := c.equals[k]
	return s, ok
}

// Has reports whether k contributes a condition.
func (c Criteria) Has(k Key) bool {
	switch k {
	case KeyStartDate:
		return c.Start != nil
	case KeyEndDate:
		return c.End != nil
	case KeyBounds:
		return c.Bounds != nil
	}
	_, ok := c.equals[k]
	return ok
}

// Empty reports whether no filter is present.
func (c Criteria) Empty() bool {
	return c.Start == nil && c.End == nil && c.Bounds == nil && len(c.equals) == 0
}

// Restrict returns the criteria for the keys cols maps. Targets that span
// two tables use it to split criteria between an entity and its joined rows.
func (c Criteria) Restrict(cols Columns) Criteria {
	var out Criteria
	if _, ok := cols[KeyStartDate]; ok {
		out.Start = c.Start
	}
	if _, ok := cols[KeyEndDate]; ok {
		out.End = c.End
		out.EndExclusive = c.EndExclusive
	}
	if _, ok := cols[KeyBounds]; ok {
		out.Bounds = c.Bounds
	}
	for k, v := range c.equals {
		if _, ok := cols[k]; ok {
			out.setEqual(k, v)
		}
	}
	return out
}

// idKeys hold entity identifiers and must be UUIDs.
var idKeys = map[Key]bool{
	KeyWasteType:       true,
	KeyCollectionPoint: true,
	KeyActor:           true,
}

// Parse coerces raw values to Criteria. It checks type and shape only:
// dates must parse, ids must be UUIDs, bounds must be four numbers. Keys
// outside the vocabulary are ignored.
//
// Dates are either RFC 3339 timestamps or YYYY-MM-DD, the latter interpreted
// as midnight in loc. A date-only end_date covers the whole day, so it is
// turned into an exclusive bound at the following midnight.
func Parse(v Values, loc *time.Location) (Criteria, error) {
	if loc == nil {
		loc = time.UTC
	}

	var c Criteria
	for _, k := range Vocabulary {
		raw := v.Get(k)
		if raw == "" {
			continue
		}

		switch {
		case k == KeyStartDate:
			t, _, err := parseTime(raw, loc)
			if err != nil {
				return Criteria{}, malformed(k, raw, err)
			}
			c.Start = &t

		case k == KeyEndDate:
			t, dateOnly, err := parseTime(raw, loc)
			if err != nil {
				return Criteria{}, malformed(k, raw, err)
			}
			if dateOnly {
				t = t.AddDate(0, 0, 1)
				c.EndExclusive = true
			}
			c.End = &t

		case k == KeyBounds:
			box, err := parseBounds(raw)
			if err != nil {
				return Criteria{}, malformed(k, raw, err)
			}
			c.Bounds = &box

		case idKeys[k]:
			id, err := uuid.Parse(raw)
			if err != nil {
				return Criteria{}, malformed(k, raw, err)
			}
			c.setEqual(k, id.String())

		default:
			c.setEqual(k, raw)
		}
	}
	return c, nil
}

func (c *Criteria) setEqual(k Key, s string) {
	if c.equals == nil {
		c.equals = make(map[Key]string)
	}
	c.equals[k] = s
}

func malformed(k Key, raw string, err error) error {
	return fmt.Errorf("%w: %s=%q: %v", apperr.ErrMalformedFilter, k, raw, err)
}

func parseTime(s string, loc *time.Location) (t time.Time, dateOnly bool, err error) {
	if t, err = time.ParseInLocation(dateLayout, s, loc); err == nil {
		return t, true, nil
	}
	if t, err = time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	return time.Time{}, false, fmt.Errorf("expected YYYY-MM-DD or RFC 3339 timestamp")
}

// parseBounds reads "minLat,minLng,maxLat,maxLng".
func parseBounds(s string) (geo.Box, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return geo.Box{}, fmt.Errorf("expected 4 comma-separated numbers, got %d", len(parts))
	}

	var n [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return geo.Box{}, fmt.Errorf("value %d is not a number", i+1)
		}
		n[i] = f
	}

	return geo.Box{MinLat: n[0], MinLng: n[1], MaxLat: n[2], MaxLng: n[3]}, nil
}
