package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"warden/internal/auth"
	"warden/internal/commands"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Connect opens the command database. SQLite is the on-device default;
// postgres is used when the scheduler runs next to a shared database.
func Connect(driver, dsn string, logger *log.Logger) (*gorm.DB, error) {
	// unique violations surface as gorm.ErrDuplicatedKey on both drivers
	cfg := &gorm.Config{TranslateError: true}
	if logger != nil {
		cfg.Logger = gormlogger.New(logger, gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		})
	}

	switch driver {
	case DriverPostgres:
		gdb, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return gdb, nil
	case DriverSQLite, "":
		if dsn == "" {
			return nil, fmt.Errorf("empty db path")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("mkdir db dir: %w", err)
			}
		}
		if !strings.Contains(dsn, "?") {
			dsn += "?_busy_timeout=5000&_journal_mode=WAL"
		}
		gdb, err := gorm.Open(sqlite.Open(dsn), cfg)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		// one writer at a time; sqlite would otherwise answer SQLITE_BUSY
		sqlDB, err := gdb.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		return gdb, nil
	default:
		return nil, fmt.Errorf("unsupported db driver %q", driver)
	}
}

func AutoMigrateAndIndexes(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(
		&commands.Command{},
		&auth.Operator{},
	); err != nil {
		return err
	}

	stmts := []string{
		// pending scan: status filter + FIFO order
		`create index if not exists idx_commands_pending_fifo on commands(status, submitted_at, id);`,
		// watchdog sweep
		`create index if not exists idx_commands_running_deadline on commands(status, expected_finish_at);`,
		// one bootstrap admin, see auth.CreateOperator
		`create unique index if not exists idx_operators_single_admin on operators(admin) where admin;`,
	}
	for _, s := range stmts {
		if err := gdb.Exec(s).Error; err != nil {
			return fmt.Errorf("index exec failed: %w (sql=%s)", err, s)
		}
	}

	return nil
}
