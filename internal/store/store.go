// Package store is the durable shared state every lifecycle worker
// coordinates through. It holds exactly three record types (ledger
// positions, execution tickets, monitor rows), each with a single logical
// writer; cross-worker handoff happens only through these tables.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"remora/internal/store/model"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	_ "modernc.org/sqlite"
)

// Store wraps the sqlite database and hands out per-entity repositories.
type Store struct {
	db *gorm.DB
}

// Open initializes the database at path (":memory:" for tests) and migrates
// the three lifecycle tables.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("store: database path cannot be empty")
	}
	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?cache=shared"
	} else {
		if err := ensureDir(path); err != nil {
			return nil, err
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	}
	// DriverName selects the pure-Go modernc driver registered as "sqlite";
	// the dialector's default "sqlite3" requires cgo.
	db, err := gorm.Open(&sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, err
	}
	models := []interface{}{
		&model.PositionModel{},
		&model.TicketModel{},
		&model.MonitorModel{},
	}
	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("store: migrate failed: %w", err)
	}
	return &Store{db: db}, nil
}

// Ledger returns the position ledger repository.
func (s *Store) Ledger() *LedgerRepo { return &LedgerRepo{db: s.db} }

// Tickets returns the execution ticket repository.
func (s *Store) Tickets() *TicketRepo { return &TicketRepo{db: s.db} }

// Monitors returns the monitor row repository.
func (s *Store) Monitors() *MonitorRepo { return &MonitorRepo{db: s.db} }

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
