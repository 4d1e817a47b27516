package store

import (
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

// Dialect holds the statements for one SQL flavour. Table names are validated identifiers and are
// interpolated directly, everything else is a bind parameter.
type Dialect struct {
	Name        string
	createTable string
	insert      string
	latest      string
	// Timestamps are stored as RFC3339Nano UTC text rather than a native column type
	textTimestamps bool
}

var (
	Postgres = Dialect{
		Name:        "postgresql",
		createTable: "CREATE TABLE IF NOT EXISTS %s (id SERIAL PRIMARY KEY, recorded_at TIMESTAMPTZ NOT NULL)",
		insert:      "INSERT INTO %s (recorded_at) VALUES ($1)",
		latest:      "SELECT recorded_at FROM %s ORDER BY id DESC LIMIT 1",
	}
	MySQL = Dialect{
		Name:        "mysql",
		createTable: "CREATE TABLE IF NOT EXISTS %s (id BIGINT AUTO_INCREMENT PRIMARY KEY, recorded_at TIMESTAMP(6) NOT NULL)",
		insert:      "INSERT INTO %s (recorded_at) VALUES (?)",
		latest:      "SELECT recorded_at FROM %s ORDER BY id DESC LIMIT 1",
	}
	SQLite = Dialect{
		Name:           "sqlite",
		createTable:    "CREATE TABLE IF NOT EXISTS %s (id INTEGER PRIMARY KEY AUTOINCREMENT, recorded_at TEXT NOT NULL)",
		insert:         "INSERT INTO %s (recorded_at) VALUES (?)",
		latest:         "SELECT recorded_at FROM %s ORDER BY id DESC LIMIT 1",
		textTimestamps: true,
	}
)

func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case target.DriverPgx, target.DriverPostgres:
		return Postgres, nil
	case target.DriverMySQL:
		return MySQL, nil
	case target.DriverSQLite:
		return SQLite, nil
	default:
		return Dialect{}, errors.Errorf("unsupported driver %q", driver)
	}
}

func (d Dialect) CreateTableSQL(table string) string {
	return fmt.Sprintf(d.createTable, table)
}

func (d Dialect) InsertSQL(table string) string {
	return fmt.Sprintf(d.insert, table)
}

func (d Dialect) LatestSQL(table string) string {
	return fmt.Sprintf(d.latest, table)
}

// EncodeTime converts t to the value bound to the insert statement.
func (d Dialect) EncodeTime(t time.Time) interface{} {
	if d.textTimestamps {
		return t.UTC().Format(time.RFC3339Nano)
	}
	return t.UTC()
}

// DecodeTime converts a scanned recorded_at value back to a time.
func (d Dialect) DecodeTime(value interface{}) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTextTime(v)
	case []byte:
		return parseTextTime(string(v))
	default:
		return time.Time{}, errors.Errorf("unexpected recorded_at value of type %T", value)
	}
}

func parseTextTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, errors.WithStack(err)
	}
	return t.UTC(), nil
}
