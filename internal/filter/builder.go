package filter

import (
	"strconv"
	"strings"
)

// Columns maps filter keys to the SQL column expression they constrain on a
// particular target. Keys a target does not map are ignored for that target.
// Expressions are trusted text and must not contain '?'.
type Columns map[Key]string

// Only returns a copy of c restricted to keys.
func (c Columns) Only(keys ...Key) Columns {
	out := make(Columns, len(keys))
	for _, k := range keys {
		if col, ok := c[k]; ok {
			out[k] = col
		}
	}
	return out
}

// Without returns a copy of c with keys removed.
func (c Columns) Without(keys ...Key) Columns {
	out := make(Columns, len(c))
	for k, col := range c {
		out[k] = col
	}
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// Predicate is one parameterized condition. Fragment uses '?' placeholders,
// one per element of Args.
type Predicate struct {
	Key      Key
	Fragment string
	Args     []any
}

// Build emits one predicate per key that is both present in c and mapped in
// cols, in vocabulary order. Absent keys emit nothing.
func Build(c Criteria, cols Columns) []Predicate {
	var preds []Predicate
	for _, k := range Vocabulary {
		col, ok := cols[k]
		if !ok || !c.Has(k) {
			continue
		}

		switch k {
		case KeyStartDate:
			preds = append(preds, Predicate{Key: k, Fragment: col + " >= ?", Args: []any{*c.Start}})

		case KeyEndDate:
			op := " <= ?"
			if c.EndExclusive {
				op = " < ?"
			}
			preds = append(preds, Predicate{Key: k, Fragment: col + op, Args: []any{*c.End}})

		case KeyBounds:
			b := c.Bounds
			preds = append(preds, Predicate{
				Key:      k,
				Fragment: col + " && ST_MakeEnvelope(?, ?, ?, ?, 4326)",
				Args:     []any{b.MinLng, b.MinLat, b.MaxLng, b.MaxLat},
			})

		default:
			v, _ := c.Equal(k)
			preds = append(preds, Predicate{Key: k, Fragment: col + " = ?", Args: []any{v}})
		}
	}
	return preds
}

// Render joins base conditions and predicates with AND, rewriting each '?' to
// a positional $n starting at firstArg. It returns "" when there is nothing to
// join, so callers only add a WHERE keyword when the result is non-empty.
func Render(base []string, preds []Predicate, firstArg int) (string, []any) {
	if firstArg < 1 {
		firstArg = 1
	}

	parts := make([]string, 0, len(base)+len(preds))
	parts = append(parts, base...)

	var args []any
	n := firstArg
	for _, p := range preds {
		var sb strings.Builder
		for _, r := range p.Fragment {
			if r == '?' {
				sb.WriteByte('$')
				sb.WriteString(strconv.Itoa(n))
				n++
				continue
			}
			sb.WriteRune(r)
		}
		parts = append(parts, sb.String())
		args = append(args, p.Args...)
	}

	return strings.Join(parts, " AND "), args
}

// Where is Render with a leading "WHERE " when the body is non-empty.
func Where(base []string, preds []Predicate, firstArg int) (string, []any) {
	body, args := Render(base, preds, firstArg)
	if body == "" {
		return "", args
	}
	return "WHERE " + body, args
}
