package store

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/G-Research/dbheartbeat/internal/common/database"
	"github.com/G-Research/dbheartbeat/internal/dbheartbeat/target"
)

// DriverConnector connects to a target using the driver named in the target.
type DriverConnector struct {
	ConnectTimeout time.Duration
	// Used as the read and write timeout for drivers that support one at the connection level
	IOTimeout time.Duration
}

func NewDriverConnector(connectTimeout time.Duration, ioTimeout time.Duration) *DriverConnector {
	return &DriverConnector{
		ConnectTimeout: connectTimeout,
		IOTimeout:      ioTimeout,
	}
}

func (c *DriverConnector) Connect(ctx context.Context, t target.Target) (Handle, error) {
	if c.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.ConnectTimeout)
		defer cancel()
	}

	var handle Handle
	var err error
	switch t.Driver {
	case target.DriverPgx:
		handle, err = connectPgx(ctx, PostgresConnectionString(t, c.ConnectTimeout), c.ConnectTimeout)
	case target.DriverPostgres:
		handle, err = openSQL(ctx, "postgres", PostgresConnectionString(t, c.ConnectTimeout), Postgres)
	case target.DriverMySQL:
		handle, err = openSQL(ctx, "mysql", MySQLDSN(t, c.ConnectTimeout, c.IOTimeout), MySQL)
	case target.DriverSQLite:
		handle, err = openSQL(ctx, "sqlite", t.Database, SQLite)
	default:
		return nil, errors.Errorf("unsupported driver %q for target %s", t.Driver, t.Name)
	}
	if err != nil {
		return nil, err
	}
	return handle, nil
}

// PostgresConnectionString builds a libpq keyword/value string understood by both pgx and lib/pq.
// Empty settings are omitted so that the driver defaults apply.
func PostgresConnectionString(t target.Target, connectTimeout time.Duration) string {
	values := map[string]string{
		"host":     t.Host,
		"port":     strconv.Itoa(int(t.Port)),
		"user":     t.User,
		"password": t.Password,
		"dbname":   t.Database,
		"sslmode":  t.SSLMode,
	}
	if seconds := int(connectTimeout.Seconds()); seconds > 0 {
		values["connect_timeout"] = strconv.Itoa(seconds)
	}
	for k, v := range values {
		if v == "" {
			delete(values, k)
		}
	}
	return database.CreateConnectionString(values)
}

func MySQLDSN(t target.Target, connectTimeout time.Duration, ioTimeout time.Duration) string {
	config := mysql.NewConfig()
	config.User = t.User
	config.Passwd = t.Password
	config.Net = "tcp"
	config.Addr = net.JoinHostPort(t.Host, strconv.Itoa(int(t.Port)))
	config.DBName = t.Database
	config.ParseTime = true
	config.Loc = time.UTC
	config.Timeout = connectTimeout
	config.ReadTimeout = ioTimeout
	config.WriteTimeout = ioTimeout
	config.TLSConfig = mysqlTLSConfig(t.SSLMode)
	return config.FormatDSN()
}

// mysqlTLSConfig maps libpq sslmode values onto the go-sql-driver/mysql tls parameter.
func mysqlTLSConfig(sslMode string) string {
	switch sslMode {
	case "allow", "prefer":
		return "preferred"
	case "require":
		return "skip-verify"
	case "verify-ca", "verify-full":
		return "true"
	default:
		return "false"
	}
}
