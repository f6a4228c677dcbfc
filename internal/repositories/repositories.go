package repositories

import (
	"database/sql"
	"fmt"
)

// NextSequence atomically increments and returns the next value of the per-table counter stored in
// "<table>_sequence".
//
// Mappings use the value as their persisted id; sync runs use it for human-readable ordering.
func NextSequence(db *sql.DB, table string) (int64, error) {
	var next int64
	query := fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)
	if err := db.QueryRow(query).Scan(&next); err != nil {
		return 0, fmt.Errorf("failed to increment %s sequence: %w", table, err)
	}
	return next, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
