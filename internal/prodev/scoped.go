package prodev

import (
	"context"
	"database/sql"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// OlderThreshold is the age (exclusive) used by FetchConcurrently's second query.
const OlderThreshold = 40

// WithConnection runs fn inside a transaction. It commits when fn returns nil
// and rolls back on error or panic; panics are re-raised after the rollback.
func WithConnection(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// ExecuteQuery runs query and returns every row as a slice of column values.
// Text columns come back as strings.
func ExecuteQuery(ctx context.Context, db *sql.DB, query string, args ...any) ([][]any, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// FetchConcurrently loads all users and the users older than OlderThreshold in parallel.
func FetchConcurrently(ctx context.Context, db *sql.DB) (all, older []User, err error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		all, err = queryUsers(gctx, db, selectUsers)
		return err
	})
	g.Go(func() error {
		var err error
		older, err = queryUsers(gctx, db,
			`SELECT user_id, name, email, age FROM user_data WHERE age > ? ORDER BY email, user_id`, OlderThreshold)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return all, older, nil
}

func queryUsers(ctx context.Context, db *sql.DB, query string, args ...any) ([]User, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()
	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
