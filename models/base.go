package models

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

const mysqlErrDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique-constraint violation.
// Natural-key upserts race against the webhook path; callers use this to
// retry the lookup instead of failing the sync.
func IsDuplicateEntry(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlErrDuplicateEntry
	}
	return false
}
