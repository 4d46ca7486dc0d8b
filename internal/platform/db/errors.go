package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/odyssey-erp/stockledger/internal/shared"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeLockNotAvailable    = "55P03"
	codeDeadlockDetected    = "40P01"
	codeRaiseException      = "P0001"
)

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

// IsUniqueViolation reports a unique constraint failure.
func IsUniqueViolation(err error) bool {
	return pgCode(err) == codeUniqueViolation
}

// IsForeignKeyViolation reports a foreign key failure.
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == codeForeignKeyViolation
}

// IsLockTimeout reports an exhausted lock_timeout or a detected deadlock.
func IsLockTimeout(err error) bool {
	switch pgCode(err) {
	case codeLockNotAvailable, codeDeadlockDetected:
		return true
	}
	return false
}

// IsRaisedException reports an error raised by a trigger or function.
func IsRaisedException(err error) bool {
	return pgCode(err) == codeRaiseException
}

// Classify wraps driver errors that have a domain meaning with the matching
// shared sentinel. An expired context deadline counts as a lock timeout.
// Other errors are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, shared.ErrLockTimeout) {
		return err
	}
	if IsLockTimeout(err) || errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", shared.ErrLockTimeout, err)
	}
	return err
}
