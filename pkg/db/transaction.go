package db

import (
	"context"

	"gorm.io/gorm"
)

// maxTxAttempts bounds internal retries of conflict-aborted transactions.
const maxTxAttempts = 3

// RunInTransaction executes fn inside a database transaction, retrying a
// bounded number of times when the store aborts it with a serialization
// conflict. fn must be idempotent: every attempt re-reads the rows it
// depends on, so a retry never acts on stale state.
func RunInTransaction(ctx context.Context, db *gorm.DB, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil || !IsSerializationErr(err) {
			return err
		}
	}
	return err
}
