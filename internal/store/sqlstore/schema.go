package sqlstore

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the few places the supported databases disagree.
type Dialect string

const (
	MySQL    Dialect = "mysql"
	Postgres Dialect = "postgres"
	SQLite   Dialect = "sqlite"
)

type table struct {
	name    string
	columns string
	tsIndex bool
}

var tables = []table{
	{
		name: "users",
		columns: `id VARCHAR(255) PRIMARY KEY,
		display_name TEXT NOT NULL,
		photo_url TEXT NOT NULL,
		last_seen BIGINT NOT NULL`,
	},
	{
		name: "chat_messages",
		columns: `id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		text TEXT NOT NULL,
		is_command BOOLEAN NOT NULL,
		display_name TEXT NULL,
		photo_url TEXT NULL,
		ts BIGINT NOT NULL`,
		tsIndex: true,
	},
	{
		name: "ghost_events",
		columns: `id VARCHAR(64) PRIMARY KEY,
		type VARCHAR(32) NOT NULL,
		intensity INT NOT NULL,
		message TEXT NOT NULL,
		triggered_by VARCHAR(255) NULL,
		ts BIGINT NOT NULL`,
		tsIndex: true,
	},
	{
		name: "evidence",
		columns: `id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL,
		evidence TEXT NOT NULL,
		display_name TEXT NULL,
		ts BIGINT NOT NULL`,
		tsIndex: true,
	},
	{
		name: "squad_status",
		columns: `id VARCHAR(64) PRIMARY KEY,
		user_id VARCHAR(255) NOT NULL UNIQUE,
		is_dead BOOLEAN NOT NULL,
		map TEXT NULL,
		location TEXT NULL,
		display_name TEXT NULL,
		photo_url TEXT NULL,
		joined_at BIGINT NOT NULL,
		ts BIGINT NOT NULL`,
	},
}

// Schema returns the CREATE statements for d. Tables are only created when
// missing; existing tables are left untouched.
func (d Dialect) Schema() []string {
	var stmts []string
	for _, t := range tables {
		if d == MySQL {
			cols := t.columns
			if t.tsIndex {
				cols += fmt.Sprintf(",\n\t\tINDEX idx_%s_ts (ts)", t.name)
			}
			stmts = append(stmts, fmt.Sprintf(
				"CREATE TABLE IF NOT EXISTS %s (\n\t\t%s\n\t) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci",
				t.name, cols))
			continue
		}

		stmts = append(stmts, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t\t%s\n\t)", t.name, t.columns))
		if t.tsIndex {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_ts ON %s (ts)", t.name, t.name))
		}
	}
	return stmts
}

// Rebind rewrites ? placeholders into the form d expects.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LockSuffix is appended to a SELECT that is followed by a write of the same
// row. SQLite runs on a single connection and needs no row lock.
func (d Dialect) LockSuffix() string {
	if d == SQLite {
		return ""
	}
	return " FOR UPDATE"
}

// ParseDialect maps a store driver name onto a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch d := Dialect(strings.ToLower(name)); d {
	case MySQL, Postgres, SQLite:
		return d, nil
	default:
		return "", fmt.Errorf("unsupported sql dialect: %q", name)
	}
}
