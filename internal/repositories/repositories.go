package repositories

import (
	"database/sql"
	"fmt"
)

// queryer is satisfied by both [sql.DB] and [sql.Tx].
type queryer interface {
	QueryRow(query string, args ...any) *sql.Row
}

// sequenceTables lists the tables with a "<table>_sequence" counter row.
var sequenceTables = map[string]bool{"runs": true}

// NextSequence bumps the counter for table and returns the new value.
//
// Pass the caller's transaction so a rolled-back insert does not consume a number.
func NextSequence(q queryer, table string) (int, error) {
	if !sequenceTables[table] {
		return 0, fmt.Errorf("no sequence for table %q", table)
	}

	var seq int
	err := q.QueryRow(fmt.Sprintf("UPDATE %s_sequence SET value = value + 1 WHERE id = 1 RETURNING value", table)).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to increment sequence: %w", err)
	}
	return seq, nil
}
