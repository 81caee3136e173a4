package db

import (
	"strings"

	"github.com/teranos/nightshift/errors"
)

// ErrDatabaseClosed marks a write attempted after the history database was
// closed, typically by a scheduler callback racing process shutdown.
var ErrDatabaseClosed = errors.New("database is closed")

// IsDatabaseClosed reports whether err comes from a closed database, either
// as ErrDatabaseClosed or as the database/sql error, which cannot be wrapped
// at its source.
func IsDatabaseClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDatabaseClosed) {
		return true
	}
	return strings.Contains(err.Error(), "database is closed")
}
