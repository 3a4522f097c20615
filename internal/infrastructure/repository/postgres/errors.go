package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/kirillkom/job-application-tracker/internal/core/domain"
)

const (
	sqlStateUniqueViolation = "23505"
	sqlStateAdminShutdown   = "57P01"
	sqlStateTooManyConns    = "53300"
)

// classifyStoreError maps driver errors onto domain kinds. Lost connections
// are fatal for the run; unique violations become ErrConstraintViolation.
func classifyStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateUniqueViolation:
			return domain.WrapError(domain.ErrConstraintViolation, op, err)
		case strings.HasPrefix(pgErr.Code, "08"),
			pgErr.Code == sqlStateAdminShutdown,
			pgErr.Code == sqlStateTooManyConns:
			return domain.WrapError(domain.ErrFatalStore, op, err)
		}
		return fmt.Errorf("%s: %w", op, err)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return domain.WrapError(domain.ErrFatalStore, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return domain.WrapError(domain.ErrFatalStore, op, err)
	}
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return domain.WrapError(domain.ErrFatalStore, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolationOn(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == sqlStateUniqueViolation && pgErr.ConstraintName == constraint
}
