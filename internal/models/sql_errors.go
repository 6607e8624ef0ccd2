// Copyright (c) 2025, the listenarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"errors"

	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlitelib.SQLITE_CONSTRAINT_UNIQUE
	}

	return false
}

func isCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}

	var sqlErr *sqlite.Error
	if errors.As(err, &sqlErr) {
		return sqlErr.Code() == sqlitelib.SQLITE_CONSTRAINT_CHECK
	}

	return false
}
