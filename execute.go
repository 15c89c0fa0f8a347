package dbbench

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pressly/dbbench/internal/sqlbatch"
	"go.uber.org/multierr"
)

// Execute runs a semicolon-delimited batch of statements and returns the rows of the last one,
// rendered as a JSON array of rows (for example `[[2]]`). Statements without a result set render
// as `[]`. If database is not empty it is selected first.
//
// A failing statement does not produce an error: its error text becomes the result and the rest
// of the batch is skipped. The returned error is reserved for infrastructure problems, such as a
// failed reconnect or a deleted instance.
func (i *Instance) Execute(ctx context.Context, batch, database string) (string, error) {
	result, err := i.Query(ctx, batch, database)
	var stmtErr *StatementError
	if errors.As(err, &stmtErr) {
		i.logger.Debug("statement failed",
			slog.Int("index", stmtErr.Index),
			slog.String("statement", stmtErr.Statement),
			slog.Any("error", stmtErr.Err),
		)
		return stmtErr.Error(), nil
	}
	return result, err
}

// Query is like Execute, but returns a failing statement as a *[StatementError].
func (i *Instance) Query(ctx context.Context, batch, database string) (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.deleted.Load() || i.db == nil {
		return "", ErrDeleted
	}
	conn, err := i.reconnect(ctx)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			i.logger.Debug("close session", slog.Any("error", err))
		}
	}()

	if database != "" {
		stmt := "USE " + quoteIdentifier(database)
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return "", &StatementError{Statement: stmt, Index: -1, Err: err}
		}
	}
	var result string
	for idx, stmt := range sqlbatch.Split(batch) {
		out, err := runStatement(ctx, conn, stmt)
		if err != nil {
			return "", &StatementError{Statement: stmt, Index: idx, Err: err}
		}
		result = out
	}
	return result, nil
}

// reconnect opens a fresh session. The pool keeps no idle sessions, so this never reuses a
// connection left over from an earlier call.
func (i *Instance) reconnect(ctx context.Context) (*sql.Conn, error) {
	conn, err := i.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("reconnect to %s: %w", i.ContainerName(), err)
	}
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("reconnect to %s: %w", i.ContainerName(), err)
	}
	return conn, nil
}

// runStatement runs stmt in its own transaction and commits it.
func runStatement(ctx context.Context, conn *sql.Conn, stmt string) (string, error) {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return "", err
	}
	rows, err := tx.QueryContext(ctx, stmt)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}
	out, err := renderRows(rows)
	if err != nil {
		_ = tx.Rollback()
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", err
	}
	return out, nil
}

func renderRows(rows *sql.Rows) (_ string, retErr error) {
	defer func() {
		retErr = multierr.Append(retErr, rows.Close())
	}()
	columns, err := rows.Columns()
	if err != nil {
		return "", err
	}
	table := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for j := range values {
			dest[j] = &values[j]
		}
		if err := rows.Scan(dest...); err != nil {
			return "", err
		}
		for j, v := range values {
			if b, ok := v.([]byte); ok {
				values[j] = string(b)
			}
		}
		table = append(table, values)
	}
	if err := rows.Err(); err != nil {
		return "", err
	}
	out, err := json.Marshal(table)
	if err != nil {
		return "", fmt.Errorf("render rows: %w", err)
	}
	return string(out), nil
}

func quoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
