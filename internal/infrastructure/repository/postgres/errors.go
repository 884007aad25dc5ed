package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/property-vault/internal/core/domain"
)

// wrapStoreError tags connectivity failures as ErrStoreUnavailable so callers
// can retry them; anything else keeps its plain operation context.
func wrapStoreError(operation string, err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return domain.WrapError(domain.ErrStoreUnavailable, operation, err)
	}
	return fmt.Errorf("%s: %w", operation, err)
}

func isUnavailable(err error) bool {
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	if pgconn.Timeout(err) || pgconn.SafeToRetry(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// Class 08 is connection exception, 57P is operator intervention.
		return strings.HasPrefix(pgErr.Code, "08") || strings.HasPrefix(pgErr.Code, "57P")
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
