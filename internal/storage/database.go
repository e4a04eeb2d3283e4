package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"messagehub/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the database configured for dbType.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		dsn := dbCfg.DSN
		if !strings.Contains(dsn, "_foreign_keys") {
			sep := "?"
			if strings.Contains(dsn, "?") {
				sep = "&"
			}
			dsn += sep + "_foreign_keys=1"
		}
		db, err = sql.Open("sqlite3", dsn)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		// a single connection keeps :memory: databases shared and serialises writers
		db.SetMaxOpenConns(1)
	case "mysql":
		params := dbCfg.Params
		if params == "" {
			params = "parseTime=true&charset=utf8mb4&loc=UTC"
		}
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// IsSQLite reports whether driver names the sqlite dialect.
func IsSQLite(driver string) bool {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		return true
	}
	return false
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id TEXT PRIMARY KEY,
				email TEXT NOT NULL UNIQUE,
				username TEXT NOT NULL,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				phone_number TEXT,
				role TEXT NOT NULL DEFAULT 'guest',
				password_hash TEXT NOT NULL,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS conversations (
				conversation_id TEXT PRIMARY KEY,
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS conversation_participants (
				conversation_id TEXT NOT NULL,
				user_id TEXT NOT NULL,
				joined_at DATETIME NOT NULL,
				PRIMARY KEY (conversation_id, user_id),
				FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
				FOREIGN KEY(user_id) REFERENCES users(user_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_participants_user ON conversation_participants(user_id)`,
			`CREATE TABLE IF NOT EXISTS messages (
				message_id TEXT PRIMARY KEY,
				sender_id TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				parent_message_id TEXT,
				message_body TEXT NOT NULL,
				sent_at DATETIME NOT NULL,
				edited INTEGER NOT NULL DEFAULT 0,
				edited_at DATETIME,
				FOREIGN KEY(sender_id) REFERENCES users(user_id) ON DELETE CASCADE,
				FOREIGN KEY(conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
				FOREIGN KEY(parent_message_id) REFERENCES messages(message_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, sent_at)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_id)`,
			`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_message_id)`,
			`CREATE TABLE IF NOT EXISTS message_history (
				history_id INTEGER PRIMARY KEY AUTOINCREMENT,
				message_id TEXT NOT NULL,
				old_content TEXT NOT NULL,
				edited_by TEXT,
				edited_at DATETIME NOT NULL,
				FOREIGN KEY(message_id) REFERENCES messages(message_id) ON DELETE CASCADE,
				FOREIGN KEY(edited_by) REFERENCES users(user_id) ON DELETE SET NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_history_message ON message_history(message_id)`,
			`CREATE TABLE IF NOT EXISTS notifications (
				notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id TEXT NOT NULL,
				message_id TEXT NOT NULL,
				is_read INTEGER NOT NULL DEFAULT 0,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES users(user_id) ON DELETE CASCADE,
				FOREIGN KEY(message_id) REFERENCES messages(message_id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, is_read)`,
			`CREATE TABLE IF NOT EXISTS token_blacklist (
				jti TEXT PRIMARY KEY,
				user_id TEXT NOT NULL,
				expires_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_token_blacklist_expiry ON token_blacklist(expires_at)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS users (
				user_id CHAR(36) NOT NULL,
				email VARCHAR(255) NOT NULL,
				username VARCHAR(150) NOT NULL,
				first_name VARCHAR(150) NOT NULL DEFAULT '',
				last_name VARCHAR(150) NOT NULL DEFAULT '',
				phone_number VARCHAR(255) NULL,
				role VARCHAR(20) NOT NULL DEFAULT 'guest',
				password_hash VARCHAR(255) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (user_id),
				UNIQUE KEY uniq_users_email (email)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversations (
				conversation_id CHAR(36) NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (conversation_id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS conversation_participants (
				conversation_id CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				joined_at DATETIME(6) NOT NULL,
				PRIMARY KEY (conversation_id, user_id),
				INDEX idx_participants_user (user_id),
				CONSTRAINT fk_participants_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
				CONSTRAINT fk_participants_user FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS messages (
				message_id CHAR(36) NOT NULL,
				sender_id CHAR(36) NOT NULL,
				conversation_id CHAR(36) NOT NULL,
				parent_message_id CHAR(36) NULL,
				message_body MEDIUMTEXT NOT NULL,
				sent_at DATETIME(6) NOT NULL,
				edited TINYINT(1) NOT NULL DEFAULT 0,
				edited_at DATETIME(6) NULL,
				PRIMARY KEY (message_id),
				INDEX idx_messages_conversation (conversation_id, sent_at),
				INDEX idx_messages_sender (sender_id),
				INDEX idx_messages_parent (parent_message_id),
				CONSTRAINT fk_messages_sender FOREIGN KEY (sender_id) REFERENCES users(user_id) ON DELETE CASCADE,
				CONSTRAINT fk_messages_conversation FOREIGN KEY (conversation_id) REFERENCES conversations(conversation_id) ON DELETE CASCADE,
				CONSTRAINT fk_messages_parent FOREIGN KEY (parent_message_id) REFERENCES messages(message_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS message_history (
				history_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				message_id CHAR(36) NOT NULL,
				old_content MEDIUMTEXT NOT NULL,
				edited_by CHAR(36) NULL,
				edited_at DATETIME(6) NOT NULL,
				PRIMARY KEY (history_id),
				INDEX idx_history_message (message_id),
				CONSTRAINT fk_history_message FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE,
				CONSTRAINT fk_history_editor FOREIGN KEY (edited_by) REFERENCES users(user_id) ON DELETE SET NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS notifications (
				notification_id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id CHAR(36) NOT NULL,
				message_id CHAR(36) NOT NULL,
				is_read TINYINT(1) NOT NULL DEFAULT 0,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (notification_id),
				INDEX idx_notifications_user (user_id, is_read),
				CONSTRAINT fk_notifications_user FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE,
				CONSTRAINT fk_notifications_message FOREIGN KEY (message_id) REFERENCES messages(message_id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS token_blacklist (
				jti CHAR(36) NOT NULL,
				user_id CHAR(36) NOT NULL,
				expires_at DATETIME(6) NOT NULL,
				PRIMARY KEY (jti),
				INDEX idx_token_blacklist_expiry (expires_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
