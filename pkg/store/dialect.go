package store

import (
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"
)

type dialect struct {
	driver     string
	migrations []string
	maxConns   int
}

var sqliteDialect = dialect{
	driver: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS ai_suggestions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	reading_id TEXT NOT NULL,
	rod_id TEXT NOT NULL,
	plant_type TEXT NOT NULL,
	model TEXT NOT NULL,
	suggestion TEXT NOT NULL,
	created_at INTEGER NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_reading ON ai_suggestions(reading_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_rod ON ai_suggestions(rod_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_suggestions_created ON ai_suggestions(created_at)`,
	},
	// A single connection serializes writers and keeps ":memory:" databases shared.
	maxConns: 1,
}

var mysqlDialect = dialect{
	driver: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS ai_suggestions (
	id BIGINT AUTO_INCREMENT PRIMARY KEY,
	reading_id VARCHAR(191) NOT NULL,
	rod_id VARCHAR(191) NOT NULL,
	plant_type VARCHAR(191) NOT NULL,
	model VARCHAR(191) NOT NULL,
	suggestion JSON NOT NULL,
	created_at BIGINT NOT NULL,
	INDEX idx_suggestions_reading (reading_id, created_at),
	INDEX idx_suggestions_rod (rod_id, created_at),
	INDEX idx_suggestions_created (created_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	},
}

func dialectFor(driver string) (dialect, error) {
	switch driver {
	case "sqlite", "":
		return sqliteDialect, nil
	case "mysql":
		return mysqlDialect, nil
	default:
		return dialect{}, fmt.Errorf("unsupported database driver %q", driver)
	}
}

// dsn adds default pragmas to plain SQLite paths.
func (d dialect) dsn(raw string) string {
	if d.driver != "sqlite" || strings.Contains(raw, "?") || raw == ":memory:" {
		return raw
	}
	return raw + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(wal)"
}
