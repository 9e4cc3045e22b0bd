package sqlite

import (
	"errors"
	"fmt"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/jdholdren/feedhub/internal/feedhub"
)

// wrapErr translates driver failures into the domain's sentinels where the caller can act on them.
func wrapErr(op string, err error) error {
	sqliteErr := &sqlite.Error{}
	if !errors.As(err, &sqliteErr) {
		return fmt.Errorf("error %s: %w", op, err)
	}

	switch code := sqliteErr.Code(); {
	case code == sqlite3.SQLITE_CONSTRAINT_UNIQUE, code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("error %s: %w", op, feedhub.ErrConflict)
	case code == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return fmt.Errorf("error %s, referenced row is missing: %w", op, feedhub.ErrNotFound)
	case code&0xff == sqlite3.SQLITE_BUSY, code&0xff == sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("error %s: %w: %s", op, feedhub.ErrBusy, err)
	}

	return fmt.Errorf("error %s: %w", op, err)
}
