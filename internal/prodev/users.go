// Package prodev streams and pages through the user_data table without
// loading it into memory.
package prodev

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"messagehub/internal/storage"
)

const selectUsers = `SELECT user_id, name, email, age FROM user_data ORDER BY email, user_id`

// AgeThreshold is the minimum age (exclusive) kept by BatchProcessing.
const AgeThreshold = 25

// User is one row of user_data.
type User struct {
	UserID string  `json:"user_id"`
	Name   string  `json:"name"`
	Email  string  `json:"email"`
	Age    float64 `json:"age"`
}

// ErrInvalidSize is returned for non-positive batch or page sizes.
var ErrInvalidSize = errors.New("size must be positive")

// CreateTable creates user_data when it does not exist.
func CreateTable(ctx context.Context, db *sql.DB, driver string) error {
	var stmts []string
	if storage.IsSQLite(driver) {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS user_data (
				user_id TEXT PRIMARY KEY,
				name TEXT NOT NULL,
				email TEXT NOT NULL,
				age DECIMAL NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_data_email ON user_data(email)`,
		}
	} else {
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS user_data (
				user_id CHAR(36) NOT NULL,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL,
				age DECIMAL NOT NULL,
				PRIMARY KEY (user_id),
				INDEX idx_user_data_email (email)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create user_data: %w", err)
		}
	}
	return nil
}

// InsertFromCSV loads name,email,age rows, skipping emails already present.
// It returns the number of rows inserted.
func InsertFromCSV(ctx context.Context, db *sql.DB, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read csv header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, want := range []string{"name", "email", "age"} {
		if _, ok := cols[want]; !ok {
			return 0, fmt.Errorf("csv header missing %q column", want)
		}
	}

	inserted := 0
	err = WithConnection(ctx, db, func(tx *sql.Tx) error {
		for line := 2; ; line++ {
			rec, err := reader.Read()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read csv line %d: %w", line, err)
			}
			name := strings.TrimSpace(rec[cols["name"]])
			email := strings.TrimSpace(rec[cols["email"]])
			age, err := strconv.ParseFloat(strings.TrimSpace(rec[cols["age"]]), 64)
			if err != nil {
				return fmt.Errorf("csv line %d: invalid age %q", line, rec[cols["age"]])
			}

			var exists bool
			if err := tx.QueryRowContext(ctx,
				`SELECT EXISTS(SELECT 1 FROM user_data WHERE email = ?)`, email,
			).Scan(&exists); err != nil {
				return fmt.Errorf("check email: %w", err)
			}
			if exists {
				continue
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO user_data (user_id, name, email, age) VALUES (?, ?, ?, ?)`,
				uuid.NewString(), name, email, age,
			); err != nil {
				return fmt.Errorf("insert user: %w", err)
			}
			inserted++
		}
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

// StreamUsers yields rows one at a time. The cursor is closed as soon as the
// consumer stops ranging.
func StreamUsers(ctx context.Context, db *sql.DB) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		rows, err := db.QueryContext(ctx, selectUsers)
		if err != nil {
			yield(User{}, fmt.Errorf("query users: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				yield(User{}, err)
				return
			}
			if !yield(u, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(User{}, err)
		}
	}
}

// StreamUsersInBatches yields slices of at most size rows.
func StreamUsersInBatches(ctx context.Context, db *sql.DB, size int) iter.Seq2[[]User, error] {
	return func(yield func([]User, error) bool) {
		if size <= 0 {
			yield(nil, ErrInvalidSize)
			return
		}
		batch := make([]User, 0, size)
		for u, err := range StreamUsers(ctx, db) {
			if err != nil {
				yield(nil, err)
				return
			}
			batch = append(batch, u)
			if len(batch) == size {
				if !yield(batch, nil) {
					return
				}
				batch = make([]User, 0, size)
			}
		}
		if len(batch) > 0 {
			yield(batch, nil)
		}
	}
}

// BatchProcessing yields users older than AgeThreshold, reading size rows at a time.
func BatchProcessing(ctx context.Context, db *sql.DB, size int) iter.Seq2[User, error] {
	return func(yield func(User, error) bool) {
		for batch, err := range StreamUsersInBatches(ctx, db, size) {
			if err != nil {
				yield(User{}, err)
				return
			}
			for _, u := range batch {
				if u.Age > AgeThreshold && !yield(u, nil) {
					return
				}
			}
		}
	}
}

// PaginateUsers returns one page of pageSize rows starting at offset.
func PaginateUsers(ctx context.Context, db *sql.DB, pageSize, offset int) ([]User, error) {
	if pageSize <= 0 || offset < 0 {
		return nil, ErrInvalidSize
	}
	return queryUsers(ctx, db, selectUsers+` LIMIT ? OFFSET ?`, pageSize, offset)
}

// LazyPaginate fetches the next page only when the consumer asks for it and
// stops at the first empty page.
func LazyPaginate(ctx context.Context, db *sql.DB, pageSize int) iter.Seq2[[]User, error] {
	return func(yield func([]User, error) bool) {
		for offset := 0; ; offset += pageSize {
			page, err := PaginateUsers(ctx, db, pageSize, offset)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 || !yield(page, nil) {
				return
			}
		}
	}
}

// StreamUserAges yields the age column one row at a time.
func StreamUserAges(ctx context.Context, db *sql.DB) iter.Seq2[float64, error] {
	return func(yield func(float64, error) bool) {
		rows, err := db.QueryContext(ctx, `SELECT age FROM user_data`)
		if err != nil {
			yield(0, fmt.Errorf("query ages: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var age float64
			if err := rows.Scan(&age); err != nil {
				yield(0, fmt.Errorf("scan age: %w", err))
				return
			}
			if !yield(age, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(0, err)
		}
	}
}

// AverageAge computes the mean age over the stream. n is zero for an empty table.
func AverageAge(ctx context.Context, db *sql.DB) (avg float64, n int, err error) {
	var total float64
	for age, err := range StreamUserAges(ctx, db) {
		if err != nil {
			return 0, 0, err
		}
		total += age
		n++
	}
	if n == 0 {
		return 0, 0, nil
	}
	return total / float64(n), n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (User, error) {
	var u User
	if err := row.Scan(&u.UserID, &u.Name, &u.Email, &u.Age); err != nil {
		return User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}
