package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"

	"github.com/dreamware/kvserve/internal/dbpool"
)

// identPattern restricts table names to plain identifiers. The table
// name is the one query fragment that cannot be a bind parameter, so it
// is validated once at construction instead of escaped per call.
var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Table executes the three key-value operations against one MySQL
// table with an integer primary key column `k` and a blob column
// `value`. It is stateless between calls: every method runs one
// parameterized statement on the session it is handed and returns
// before the session goes back to the pool.
//
// Keys travel as integer bind parameters and values as blob bind
// parameters, so value bytes — including quotes, NULs, and anything
// else the query language would care about — never appear in query
// text.
type Table struct {
	selectStmt string
	upsertStmt string
	deleteStmt string
}

// NewTable builds the adapter for the named table.
func NewTable(name string) (*Table, error) {
	if !identPattern.MatchString(name) {
		return nil, fmt.Errorf("invalid table name %q", name)
	}
	return &Table{
		selectStmt: fmt.Sprintf("SELECT `value` FROM `%s` WHERE `k` = ?", name),
		upsertStmt: fmt.Sprintf("INSERT INTO `%s` (`k`, `value`) VALUES (?, ?) ON DUPLICATE KEY UPDATE `value` = VALUES(`value`)", name),
		deleteStmt: fmt.Sprintf("DELETE FROM `%s` WHERE `k` = ?", name),
	}, nil
}

// SelectValue reads the value for key on the borrowed session.
// Returns ErrNotFound when the row is absent.
func (t *Table) SelectValue(ctx context.Context, sess dbpool.Session, key int64) ([]byte, error) {
	var value []byte
	err := sess.QueryRowContext(ctx, t.selectStmt, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select key %d: %w", key, err)
	}
	if value == nil {
		// An empty blob scans as nil; callers treat the value as an
		// opaque byte string, so hand back an empty one.
		value = []byte{}
	}
	return value, nil
}

// Upsert writes key→value on the borrowed session, overwriting any
// existing row.
func (t *Table) Upsert(ctx context.Context, sess dbpool.Session, key int64, value []byte) error {
	if _, err := sess.ExecContext(ctx, t.upsertStmt, key, value); err != nil {
		return fmt.Errorf("upsert key %d: %w", key, err)
	}
	return nil
}

// Delete removes the row for key on the borrowed session and returns
// the number of rows deleted.
func (t *Table) Delete(ctx context.Context, sess dbpool.Session, key int64) (int64, error) {
	res, err := sess.ExecContext(ctx, t.deleteStmt, key)
	if err != nil {
		return 0, fmt.Errorf("delete key %d: %w", key, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete key %d: rows affected: %w", key, err)
	}
	return affected, nil
}
