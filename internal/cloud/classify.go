package cloud

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/veselinppetkov/orders-app-sub000/internal/cdperr"
)

// SQLSTATE classes that no amount of retrying will fix.
const (
	sqlstateInsufficientPrivilege = "42501"
	sqlstateUndefinedTable        = "42P01"
	sqlstateUniqueViolation       = "23505"
)

// Classify maps a backend error onto the CDP taxonomy. Permission, missing
// table, unique violations and malformed requests are terminal; everything
// else is treated as transient and retried.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, cdperr.ErrTerminalRemote) || errors.Is(err, cdperr.ErrTransientRemote) ||
		errors.Is(err, cdperr.ErrNotFound) || errors.Is(err, cdperr.ErrDuplicate) {
		return err
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", cdperr.ErrNotFound, err.Error())
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: unique-conflict: %s", cdperr.ErrTerminalRemote, err.Error())
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlstateInsufficientPrivilege:
			return fmt.Errorf("%w: permission-denied: %s", cdperr.ErrTerminalRemote, pgErr.Message)
		case pgErr.Code == sqlstateUndefinedTable:
			return fmt.Errorf("%w: table-missing: %s", cdperr.ErrTerminalRemote, pgErr.Message)
		case pgErr.Code == sqlstateUniqueViolation:
			return fmt.Errorf("%w: unique-conflict: %s", cdperr.ErrTerminalRemote, pgErr.Message)
		case strings.HasPrefix(pgErr.Code, "22"), strings.HasPrefix(pgErr.Code, "23"):
			// Data exceptions and other integrity violations: bad request.
			return fmt.Errorf("%w: bad-request: %s", cdperr.ErrTerminalRemote, pgErr.Message)
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "permission") || strings.Contains(msg, "authentication") {
		return fmt.Errorf("%w: %s", cdperr.ErrTerminalRemote, err.Error())
	}

	return fmt.Errorf("%w: %s", cdperr.ErrTransientRemote, err.Error())
}
