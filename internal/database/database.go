package database

import (
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/m-tsuru/tenchi-geolocation/internal/config"
	"github.com/m-tsuru/tenchi-geolocation/internal/model"
)

const memoryDSN = "file::memory:?cache=shared"

// Config selects the history database.
type Config struct {
	Postgres config.PostgresConfig
	// FallbackPath is the SQLite file used when Postgres is unreachable.
	// Empty means an in-memory database.
	FallbackPath string
	MaxOpenConns int
}

// Manager owns the history database connection.
type Manager struct {
	DB    *gorm.DB
	SqlDB *sql.DB
	// Fallback is set when Postgres could not be reached and SQLite is
	// used instead.
	Fallback bool

	cfg Config
	log zerolog.Logger
}

// NewManager creates a new database manager.
func NewManager(cfg Config, log zerolog.Logger) *Manager {
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 10
	}
	return &Manager{cfg: cfg, log: log}
}

// Connect opens Postgres, falling back to SQLite if it is unreachable.
func (m *Manager) Connect() error {
	db, err := GetPostgresDB(PostgresDSN(m.cfg.Postgres), m.log)
	if err == nil {
		err = m.attach(db)
	}
	if err == nil {
		m.SqlDB.SetMaxOpenConns(m.cfg.MaxOpenConns)
		m.log.Info().Str("host", m.cfg.Postgres.Host).Msg("Connected to database")
		return nil
	}

	m.log.Error().Err(err).Msg("Failed to connect to Postgres DB, trying SQLite")
	db, err = GetSqliteDB(m.cfg.FallbackPath)
	if err != nil {
		return fmt.Errorf("failed to get local SQLite DB: %w", err)
	}
	if err := m.attach(db); err != nil {
		return err
	}
	m.Fallback = true
	m.log.Info().Str("path", m.cfg.FallbackPath).Msg("Using local SQLite DB")
	return nil
}

func (m *Manager) attach(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return err
	}
	m.DB, m.SqlDB = db, sqlDB
	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	if m.SqlDB == nil {
		return nil
	}
	err := m.SqlDB.Close()
	m.SqlDB = nil
	return err
}

// Migrate creates or updates all tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.DatabaseModels...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

// PostgresDSN builds a libpq keyword/value connection string. Empty
// settings are left to the driver's defaults.
func PostgresDSN(c config.PostgresConfig) string {
	pairs := []struct{ key, value string }{
		{"host", c.Host},
		{"port", c.Port},
		{"user", c.Username},
		{"password", c.Password},
		{"dbname", c.Database},
		{"sslmode", "disable"},
	}
	parts := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if p.value != "" {
			parts = append(parts, p.key+"="+quoteDSNValue(p.value))
		}
	}
	return strings.Join(parts, " ")
}

// quoteDSNValue single-quotes values libpq would otherwise split.
func quoteDSNValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	r := strings.NewReplacer(`\`, `\\`, `'`, `\'`)
	return "'" + r.Replace(v) + "'"
}

// GetPostgresDB opens a Postgres connection. Slow queries and errors are
// logged to log.
func GetPostgresDB(dsn string, log zerolog.Logger) (*gorm.DB, error) {
	return gorm.Open(postgres.New(postgres.Config{
		DSN:                  dsn,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        1000,
		Logger:                 newGormLogger(log),
	})
}

// GetSqliteDB returns a connection to a SQLite database.
// If path is empty, uses an in-memory database.
func GetSqliteDB(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = memoryDSN
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        500,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	// history is rebuilt from the server, so durability is traded for speed
	pragmas := []string{
		"PRAGMA user_version = 1;",
		"PRAGMA journal_mode = MEMORY;",
		"PRAGMA synchronous = OFF;",
		"PRAGMA temp_store = MEMORY;",
		"PRAGMA foreign_keys = ON;",
	}
	for _, pragma := range pragmas {
		if err := db.Exec(pragma).Error; err != nil {
			return nil, fmt.Errorf("error setting PRAGMA: %w", err)
		}
	}
	return db, nil
}

// DumpMemoryDBToDisk writes a consistent copy of db to path, replacing any
// previous copy.
func DumpMemoryDBToDisk(db *gorm.DB, path string) error {
	if path == "" {
		return fmt.Errorf("sqlite file path not set")
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("error removing existing DB file: %w", err)
	}
	if err := db.Exec("VACUUM INTO ?", "file:"+path).Error; err != nil {
		return fmt.Errorf("error dumping DB to disk: %w", err)
	}
	return nil
}

// zerologWriter lets gorm's logger print through zerolog.
type zerologWriter struct {
	log zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...any) {
	w.log.Warn().Str("component", "gorm").Msgf(format, args...)
}

func newGormLogger(log zerolog.Logger) logger.Interface {
	return logger.New(zerologWriter{log: log}, logger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
		Colorful:                  false,
	})
}
