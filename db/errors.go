package db

import (
	"strings"

	"github.com/teranos/shopper/errors"
)

// ErrDatabaseClosed is returned when usage rows are written after the run closed the database,
// e.g. a straggling request finishing after SIGINT.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err is ErrDatabaseClosed or the driver's own closed-database error.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}

	errMsg := err.Error()
	return strings.Contains(errMsg, "database is closed") ||
		strings.Contains(errMsg, "sql: database is closed")
}
