package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// IsSerializationErr reports whether a transaction was aborted by the store
// because of a write conflict. Such transactions are safe to retry.
func IsSerializationErr(err error) bool {
	if err == nil {
		return false
	}

	msg := err.Error()

	// PostgreSQL (error code 40001)
	if strings.Contains(msg, "could not serialize access") {
		return true
	}

	// PostgreSQL / MySQL deadlock victims
	if strings.Contains(msg, "deadlock detected") || strings.Contains(msg, "Deadlock found") {
		return true
	}

	// SQLite under concurrent writers
	if strings.Contains(msg, "database is locked") {
		return true
	}

	return false
}
