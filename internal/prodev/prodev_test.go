package prodev

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"strings"
	"testing"

	"messagehub/internal/config"
	"messagehub/internal/storage"
)

const seedCSV = `name,email,age
Alice Johnson,alice@example.com,24
Bob Smith,bob@example.com,41
Carol White,carol@example.com,26
Dan Brown,dan@example.com,67
Eve Black,eve@example.com,25
`

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := CreateTable(context.Background(), db, "sqlite3"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func seededDB(t *testing.T) *sql.DB {
	t.Helper()
	db := openTestDB(t)
	n, err := InsertFromCSV(context.Background(), db, strings.NewReader(seedCSV))
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5 rows inserted, got %d", n)
	}
	return db
}

func emails(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.Email
	}
	return out
}

func TestInsertFromCSVSkipsExistingEmails(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	n, err := InsertFromCSV(ctx, db, strings.NewReader("email,name,age\nbob@example.com,Bobby,50\nfay@example.com,Fay,33\n"))
	if err != nil {
		t.Fatalf("InsertFromCSV: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 new row, got %d", n)
	}
	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_data`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 6 {
		t.Fatalf("expected 6 rows, got %d", count)
	}

	if _, err := InsertFromCSV(ctx, db, strings.NewReader("name,age\nx,1\n")); err == nil {
		t.Fatalf("expected error for missing email column")
	}
	if _, err := InsertFromCSV(ctx, db, strings.NewReader("name,email,age\nGil,gil@example.com,old\n")); err == nil {
		t.Fatalf("expected error for bad age")
	}
	if err := db.QueryRow(`SELECT COUNT(*) FROM user_data WHERE email = 'gil@example.com'`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 0 {
		t.Fatalf("failed import should roll back, found %d rows", count)
	}
}

func TestStreamUsers(t *testing.T) {
	db := seededDB(t)
	var got []User
	for u, err := range StreamUsers(context.Background(), db) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		if u.UserID == "" {
			t.Fatalf("expected generated user id")
		}
		got = append(got, u)
	}
	want := []string{"alice@example.com", "bob@example.com", "carol@example.com", "dan@example.com", "eve@example.com"}
	if strings.Join(emails(got), ",") != strings.Join(want, ",") {
		t.Fatalf("streamed %v, want %v", emails(got), want)
	}

	// stopping early releases the cursor so the single connection is usable again
	taken := 0
	for _, err := range StreamUsers(context.Background(), db) {
		if err != nil {
			t.Fatalf("stream: %v", err)
		}
		taken++
		if taken == 2 {
			break
		}
	}
	if _, err := PaginateUsers(context.Background(), db, 1, 0); err != nil {
		t.Fatalf("query after early break: %v", err)
	}
}

func TestStreamUsersInBatches(t *testing.T) {
	db := seededDB(t)
	var sizes []int
	for batch, err := range StreamUsersInBatches(context.Background(), db, 2) {
		if err != nil {
			t.Fatalf("batches: %v", err)
		}
		sizes = append(sizes, len(batch))
	}
	if len(sizes) != 3 || sizes[0] != 2 || sizes[1] != 2 || sizes[2] != 1 {
		t.Fatalf("unexpected batch sizes %v", sizes)
	}

	for _, err := range StreamUsersInBatches(context.Background(), db, 0) {
		if !errors.Is(err, ErrInvalidSize) {
			t.Fatalf("expected ErrInvalidSize, got %v", err)
		}
	}
}

func TestBatchProcessingFiltersByAge(t *testing.T) {
	db := seededDB(t)
	var got []User
	for u, err := range BatchProcessing(context.Background(), db, 2) {
		if err != nil {
			t.Fatalf("batch processing: %v", err)
		}
		got = append(got, u)
	}
	want := "bob@example.com,carol@example.com,dan@example.com"
	if strings.Join(emails(got), ",") != want {
		t.Fatalf("got %v, want %s", emails(got), want)
	}
}

func TestPaginateAndLazyPaginate(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()

	page, err := PaginateUsers(ctx, db, 2, 2)
	if err != nil {
		t.Fatalf("PaginateUsers: %v", err)
	}
	if strings.Join(emails(page), ",") != "carol@example.com,dan@example.com" {
		t.Fatalf("unexpected page %v", emails(page))
	}
	if _, err := PaginateUsers(ctx, db, 0, 0); !errors.Is(err, ErrInvalidSize) {
		t.Fatalf("expected ErrInvalidSize, got %v", err)
	}
	// bound parameters, not string formatting
	if page, err := PaginateUsers(ctx, db, 2, 100); err != nil || len(page) != 0 {
		t.Fatalf("expected empty page past the end, got %v, %v", page, err)
	}

	var pages [][]User
	for p, err := range LazyPaginate(ctx, db, 2) {
		if err != nil {
			t.Fatalf("LazyPaginate: %v", err)
		}
		pages = append(pages, p)
	}
	if len(pages) != 3 || len(pages[2]) != 1 || pages[2][0].Email != "eve@example.com" {
		t.Fatalf("unexpected pages %v", pages)
	}

	fetched := 0
	for range LazyPaginate(ctx, db, 2) {
		fetched++
		break
	}
	if fetched != 1 {
		t.Fatalf("expected to stop after the first page")
	}
}

func TestAverageAge(t *testing.T) {
	db := openTestDB(t)
	avg, n, err := AverageAge(context.Background(), db)
	if err != nil || n != 0 || avg != 0 {
		t.Fatalf("empty table: avg=%v n=%d err=%v", avg, n, err)
	}

	db = seededDB(t)
	avg, n, err = AverageAge(context.Background(), db)
	if err != nil {
		t.Fatalf("AverageAge: %v", err)
	}
	if n != 5 || math.Abs(avg-36.6) > 1e-9 {
		t.Fatalf("avg=%v n=%d, want 36.6 over 5", avg, n)
	}
}

func TestWithConnection(t *testing.T) {
	db := seededDB(t)
	ctx := context.Background()
	count := func() int {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM user_data`).Scan(&n); err != nil {
			t.Fatalf("count: %v", err)
		}
		return n
	}

	err := WithConnection(ctx, db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM user_data WHERE email = ?`, "alice@example.com")
		return err
	})
	if err != nil || count() != 4 {
		t.Fatalf("commit path: err=%v count=%d", err, count())
	}

	boom := errors.New("boom")
	err = WithConnection(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM user_data`); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) || count() != 4 {
		t.Fatalf("rollback path: err=%v count=%d", err, count())
	}

	func() {
		defer func() {
			if recover() == nil {
				t.Fatalf("expected panic to propagate")
			}
		}()
		_ = WithConnection(ctx, db, func(tx *sql.Tx) error {
			if _, err := tx.ExecContext(ctx, `DELETE FROM user_data`); err != nil {
				return err
			}
			panic("kaboom")
		})
	}()
	if count() != 4 {
		t.Fatalf("panic path should roll back, count=%d", count())
	}
}

func TestExecuteQuery(t *testing.T) {
	db := seededDB(t)
	rows, err := ExecuteQuery(context.Background(), db,
		`SELECT name, email FROM user_data WHERE age > ? ORDER BY email`, 25)
	if err != nil {
		t.Fatalf("ExecuteQuery: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0][0] != "Bob Smith" || rows[0][1] != "bob@example.com" {
		t.Fatalf("unexpected first row %v", rows[0])
	}
	if _, err := ExecuteQuery(context.Background(), db, `SELECT * FROM missing_table`); err == nil {
		t.Fatalf("expected error for missing table")
	}
}

func TestFetchConcurrently(t *testing.T) {
	db := seededDB(t)
	all, older, err := FetchConcurrently(context.Background(), db)
	if err != nil {
		t.Fatalf("FetchConcurrently: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("expected 5 users, got %d", len(all))
	}
	if strings.Join(emails(older), ",") != "bob@example.com,dan@example.com" {
		t.Fatalf("unexpected older users %v", emails(older))
	}
}
