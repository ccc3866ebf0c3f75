package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"

	"github.com/onnwee/wastemap/internal/apperr"
)

// Postgres error codes that change classification.
const (
	codeForeignKeyViolation = "23503"
	classConnection         = "08"
	codeAdminShutdown       = "57P01"
	codeCrashShutdown       = "57P02"
	codeCannotConnectNow    = "57P03"
)

// Classify wraps a driver error with the apperr kind it represents while
// keeping the original in the chain. Context cancellation and deadline errors
// pass through unchanged, as do errors of no particular kind.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if apperr.Kind(err) != nil {
		return err
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch {
		case pqErr.Code == codeForeignKeyViolation:
			return fmt.Errorf("%w: %w", apperr.ErrReferentialViolation, err)
		case pqErr.Code.Class() == classConnection,
			pqErr.Code == codeAdminShutdown,
			pqErr.Code == codeCrashShutdown,
			pqErr.Code == codeCannotConnectNow:
			return fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %w", apperr.ErrStoreUnavailable, err)
	}

	return err
}
