// Package apperr defines the error kinds surfaced by the query, proximity and
// reporting packages. Packages wrap these sentinels with fmt.Errorf("%w") and
// callers classify with errors.Is.
package apperr

import "errors"

var (
	// ErrInvalidQuery indicates malformed or out-of-range geospatial input.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrMalformedFilter indicates a filter value that cannot be coerced to its expected shape.
	ErrMalformedFilter = errors.New("malformed filter")

	// ErrInvalidSchema indicates an export requested with an empty column schema.
	ErrInvalidSchema = errors.New("invalid column schema")

	// ErrReferentialViolation indicates the store rejected a reference to a missing entity.
	ErrReferentialViolation = errors.New("referenced entity does not exist")

	// ErrStoreUnavailable indicates a transport or connection failure talking to the store.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates a create or update payload that fails validation.
	ErrInvalidInput = errors.New("invalid input")
)

// Kind returns the sentinel err wraps, or nil when err is not one of the kinds above.
func Kind(err error) error {
	for _, kind := range []error{
		ErrInvalidQuery,
		ErrMalformedFilter,
		ErrInvalidSchema,
		ErrReferentialViolation,
		ErrStoreUnavailable,
		ErrNotFound,
		ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
