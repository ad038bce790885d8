package database

import (
	"database/sql"
	"fmt"
	"log"
	"net/url"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"ghosthq/internal/config"
)

// DriverName maps a store driver to its database/sql driver name.
func DriverName(storeDriver string) (string, error) {
	switch storeDriver {
	case config.DriverMySQL:
		return "mysql", nil
	case config.DriverPostgres:
		return "pgx", nil
	case config.DriverSQLite:
		return "sqlite", nil
	default:
		return "", fmt.Errorf("no sql driver for store %q", storeDriver)
	}
}

// DSN builds the connection string for cfg.StoreDriver
func DSN(cfg config.Config) (string, error) {
	switch cfg.StoreDriver {
	case config.DriverMySQL:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
			cfg.DBUser,
			cfg.DBPassword,
			cfg.DBHost,
			cfg.DBPort,
			cfg.DBName,
		), nil
	case config.DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(cfg.DBUser, cfg.DBPassword),
			Host:   cfg.DBHost + ":" + cfg.DBPort,
			Path:   "/" + cfg.DBName,
		}
		return u.String(), nil
	case config.DriverSQLite:
		return "file:" + cfg.DBPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", nil
	default:
		return "", fmt.Errorf("no dsn for store %q", cfg.StoreDriver)
	}
}

// Init opens and pings the database selected by cfg
func Init(cfg config.Config) (*sql.DB, error) {
	driver, err := DriverName(cfg.StoreDriver)
	if err != nil {
		return nil, err
	}
	dsn, err := DSN(cfg)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// 接続テスト
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.StoreDriver == config.DriverSQLite {
		// SQLite allows a single writer
		db.SetMaxOpenConns(1)
	}

	log.Printf("✅ Database connection established (%s)", cfg.StoreDriver)
	return db, nil
}
