package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/Masterminds/squirrel"
	"github.com/hbomb79/Stash/pkg/logger"
	"github.com/jmoiron/sqlx"
)

type (
	// Policy decides what happens to a transaction which leaves its
	// scope normally (without an error).
	Policy int

	// State is the lifecycle state of a transaction scope. A scope
	// begins Open, and ends in exactly one of the terminal states.
	State int

	// StatementSink is notified of each statement before it is sent to
	// the driver. Params is nil for bulk statements.
	StatementSink func(query string, params []any)

	// Beginner opens transaction scopes. It is satisfied by *Manager.
	Beginner interface {
		Begin(ctx context.Context, policy Policy) (*Conn, error)
	}

	// Queryable is the subset of Conn used by stores, allowing them
	// to be handed any open transaction scope.
	Queryable interface {
		Execute(query string, params []any) (sql.Result, error)
		Query(query string, params []any) ([]Row, error)
		QueryOne(query string, params []any) (Row, bool, error)
		Insert(table string, fields map[string]any) (sql.Result, error)
	}

	// Conn is a single transaction scope over the database. All statement
	// helpers operate inside the transaction, and the scope MUST be closed
	// using Close on every exit path (typically via defer).
	//
	// A Conn is safe for use from multiple goroutines, however statements
	// are serialized by an internal lock.
	Conn struct {
		mu     sync.Mutex
		tx     *sqlx.Tx
		ctx    context.Context
		policy Policy
		state  State
		sink   StatementSink
	}
)

const (
	// Manual requires an explicit Commit; leaving the scope without
	// committing discards the transaction.
	Manual Policy = iota
	// AutoCommit commits when the scope is left without an error.
	AutoCommit
)

const (
	Open State = iota
	Committed
	RolledBack
)

var (
	ErrTxDone           = errors.New("transaction has already been committed or rolled back")
	ErrInconsistentRows = errors.New("all rows of a bulk insert must provide the same columns")
	ErrNoRows           = errors.New("bulk insert requires at least one row")
)

func (p Policy) String() string {
	switch p {
	case Manual:
		return "MANUAL"
	case AutoCommit:
		return "AUTO_COMMIT"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", int(p))
	}
}

func (s State) String() string {
	switch s {
	case Open:
		return "OPEN"
	case Committed:
		return "COMMITTED"
	case RolledBack:
		return "ROLLED_BACK"
	default:
		return fmt.Sprintf("UNKNOWN[%d]", int(s))
	}
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) Policy() Policy { return c.policy }

// Execute runs a single statement with the parameters provided.
func (c *Conn) Execute(query string, params []any) (sql.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(query, params, true); err != nil {
		return nil, err
	}

	return c.tx.ExecContext(c.ctx, c.tx.Rebind(query), params...)
}

// ExecuteMany prepares the statement once and executes it for every set of
// parameters provided, returning the total number of rows affected. The
// parameters are not reported to the statement sink.
func (c *Conn) ExecuteMany(query string, paramRows [][]any) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(query, nil, false); err != nil {
		return 0, err
	}
	for _, params := range paramRows {
		if err := checkParams(params); err != nil {
			return 0, err
		}
	}

	stmt, err := c.tx.PreparexContext(c.ctx, c.tx.Rebind(query))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	var affected int64
	for _, params := range paramRows {
		res, err := stmt.ExecContext(c.ctx, params...)
		if err != nil {
			return affected, err
		}

		if n, err := res.RowsAffected(); err == nil {
			affected += n
		}
	}

	return affected, nil
}

// Query runs the query provided and returns all resulting rows.
func (c *Conn) Query(query string, params []any) ([]Row, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.prepare(query, params, true); err != nil {
		return nil, err
	}

	rows, err := c.tx.QueryxContext(c.ctx, c.tx.Rebind(query), params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]Row, 0)
	for rows.Next() {
		row := make(map[string]any)
		if err := rows.MapScan(row); err != nil {
			return nil, err
		}

		results = append(results, newRow(row))
	}

	return results, rows.Err()
}

// QueryOne is identical to Query, however only the first row is returned. If the
// query yields no rows, the boolean result is false.
func (c *Conn) QueryOne(query string, params []any) (Row, bool, error) {
	rows, err := c.Query(query, params)
	if err != nil {
		return nil, false, err
	}

	if len(rows) == 0 {
		return nil, false, nil
	}

	return rows[0], true, nil
}

// Insert serializes the fields provided in to a parameterized INSERT statement for
// the table given. Columns are always emitted in lexicographic order.
func (c *Conn) Insert(table string, fields map[string]any) (sql.Result, error) {
	query, args, err := squirrel.Insert(table).SetMap(fields).ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to construct insert for %s: %w", table, err)
	}

	return c.Execute(query, args)
}

// InsertMany inserts each of the rows provided using a single prepared statement. Every
// row must provide exactly the same set of columns. Like Insert, the columns are ordered
// lexicographically.
func (c *Conn) InsertMany(table string, rows []map[string]any) (int64, error) {
	if len(rows) == 0 {
		return 0, ErrNoRows
	}

	columns := sortedColumns(rows[0])
	paramRows := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("row %d: %w", i, ErrInconsistentRows)
		}

		params := make([]any, len(columns))
		for k, col := range columns {
			v, ok := row[col]
			if !ok {
				return 0, fmt.Errorf("row %d missing column %s: %w", i, col, ErrInconsistentRows)
			}
			params[k] = v
		}
		paramRows[i] = params
	}

	query, _, err := squirrel.Insert(table).Columns(columns...).Values(paramRows[0]...).ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to construct bulk insert for %s: %w", table, err)
	}

	return c.ExecuteMany(query, paramRows)
}

// Commit persists the transaction. When the scope uses the AutoCommit
// policy, the commit is deferred until the scope is closed unless force is set.
func (c *Conn) Commit(force bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.policy == AutoCommit && !force {
		dbLogger.Emit(logger.VERBOSE, "Auto commit enabled and commit not forced; deferring commit to scope exit\n")
		return nil
	}

	return c.commit()
}

// Rollback discards the transaction.
func (c *Conn) Rollback() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.rollback()
}

// Close ends the transaction scope. The cause provided is the error (if any) the
// scope is exiting with:
//   - if cause is non-nil, the transaction is rolled back regardless of policy,
//   - else if the policy is AutoCommit, the transaction is committed,
//   - else, the transaction is rolled back.
//
// Closing a scope which has already reached a terminal state is a no-op.
func (c *Conn) Close(cause error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Open {
		return nil
	}

	switch {
	case cause != nil:
		dbLogger.Emit(logger.DEBUG, "Error detected (%v), rolling back transaction\n", cause)
		return c.rollback()
	case c.policy == AutoCommit:
		dbLogger.Emit(logger.VERBOSE, "Leaving transaction with auto commit enabled, committing\n")
		return c.commit()
	default:
		dbLogger.Emit(logger.VERBOSE, "Leaving transaction without commit, rolling back\n")
		return c.rollback()
	}
}

func (c *Conn) commit() error {
	if c.state != Open {
		return ErrTxDone
	}

	dbLogger.Emit(logger.VERBOSE, "Committing transaction\n")
	if err := c.tx.Commit(); err != nil {
		// A failed commit leaves nothing persisted
		c.state = RolledBack
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	c.state = Committed
	return nil
}

func (c *Conn) rollback() error {
	if c.state != Open {
		return ErrTxDone
	}

	c.state = RolledBack
	if err := c.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}

	return nil
}

// prepare validates that the scope is still open and that the params
// are acceptable to the driver, and then reports the statement to the sink.
func (c *Conn) prepare(query string, params []any, reportParams bool) error {
	if c.state != Open {
		return ErrTxDone
	}

	if err := checkParams(params); err != nil {
		return err
	}

	if c.sink != nil {
		if reportParams {
			c.sink(query, params)
		} else {
			c.sink(query, nil)
		}
	}

	return nil
}

func logStatement(query string, params []any) {
	if len(params) > 0 {
		dbLogger.Emit(logger.DEBUG, "%s %v\n", query, params)
		return
	}

	dbLogger.Emit(logger.DEBUG, "%s\n", query)
}
