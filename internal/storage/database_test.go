package storage

import (
	"database/sql"
	"testing"
	"time"

	"messagehub/internal/config"
)

func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {DSN: ":memory:"},
		},
	}
	db, err := Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := openMemory(t)
	for i := 0; i < 2; i++ {
		if err := Migrate(db, "sqlite3"); err != nil {
			t.Fatalf("migrate run %d: %v", i, err)
		}
	}
	for _, table := range []string{"users", "conversations", "conversation_participants", "messages", "message_history", "notifications", "token_blacklist"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		if err != nil {
			t.Fatalf("table %s missing: %v", table, err)
		}
	}
}

func TestForeignKeysCascade(t *testing.T) {
	db := openMemory(t)
	if err := Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	now := time.Now().UTC()
	mustExec(t, db, `INSERT INTO users (user_id, email, username, password_hash, created_at) VALUES ('u1', 'a@example.com', 'a', 'x', ?)`, now)
	mustExec(t, db, `INSERT INTO conversations (conversation_id, created_at) VALUES ('c1', ?)`, now)
	mustExec(t, db, `INSERT INTO conversation_participants (conversation_id, user_id, joined_at) VALUES ('c1', 'u1', ?)`, now)
	mustExec(t, db, `INSERT INTO messages (message_id, sender_id, conversation_id, message_body, sent_at) VALUES ('m1', 'u1', 'c1', 'hi', ?)`, now)

	mustExec(t, db, `DELETE FROM users WHERE user_id = 'u1'`)

	var count int
	if err := db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&count); err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected messages cascaded, got %d", count)
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	cfg := &config.Config{Databases: map[string]config.DatabaseConfig{"oracle": {}}}
	if _, err := Open("oracle", cfg); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := Open("sqlite3", &config.Config{}); err == nil {
		t.Fatalf("expected error for missing config")
	}
}

func mustExec(t *testing.T, db *sql.DB, query string, args ...any) {
	t.Helper()
	if _, err := db.Exec(query, args...); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}
