package outcome

import (
	"context"
	"database/sql/driver"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
)

func TestHeuristicClassifier_Classify(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected Kind
	}{
		"no error": {
			err:      nil,
			expected: Success,
		},
		"generic failure": {
			err:      errors.New("null value in column violates not-null constraint"),
			expected: Failure,
		},
		"deadline exceeded": {
			err:      errors.Wrap(context.DeadlineExceeded, "insert"),
			expected: TimeoutLike,
		},
		"connection refused": {
			err:      &net.OpError{Op: "dial", Net: "tcp", Err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}},
			expected: TimeoutLike,
		},
		"connection refused inside write error": {
			err:      &dberrors.ErrWrite{Target: "alpha", Err: syscall.ECONNREFUSED},
			expected: TimeoutLike,
		},
		"postgres connection exception": {
			err:      &pgconn.PgError{Severity: "FATAL", Code: pgerrcode.ConnectionFailure, Message: "lost"},
			expected: TimeoutLike,
		},
		"postgres query cancelled": {
			err:      &pgconn.PgError{Severity: "ERROR", Code: pgerrcode.QueryCanceled, Message: "canceling statement due to statement timeout"},
			expected: TimeoutLike,
		},
		"postgres undefined table": {
			err:      &pgconn.PgError{Severity: "ERROR", Code: pgerrcode.UndefinedTable, Message: "relation does not exist"},
			expected: Failure,
		},
		"pq connection exception": {
			err:      &pq.Error{Code: "08006", Message: "connection failure"},
			expected: TimeoutLike,
		},
		"pq unique violation": {
			err:      &pq.Error{Code: "23505", Message: "duplicate key"},
			expected: Failure,
		},
		"mysql lock wait": {
			err:      &mysql.MySQLError{Number: 1205, Message: "Lock wait exceeded"},
			expected: TimeoutLike,
		},
		"mysql syntax error": {
			err:      &mysql.MySQLError{Number: 1064, Message: "You have an error in your SQL syntax"},
			expected: Failure,
		},
		"mysql invalid connection": {
			err:      errors.WithStack(mysql.ErrInvalidConn),
			expected: TimeoutLike,
		},
		"bad connection": {
			err:      driver.ErrBadConn,
			expected: TimeoutLike,
		},
		"message mentions timeout": {
			err:      errors.New("Query TIMED OUT after 10s"),
			expected: TimeoutLike,
		},
		"pgx connect failure text": {
			err:      errors.New("failed to connect to `host=db user=k8sadmin database=timestamp`: dial error"),
			expected: TimeoutLike,
		},
		"sqlite busy": {
			err:      errors.New("database is locked (5) (SQLITE_BUSY)"),
			expected: TimeoutLike,
		},
	}
	classifier, err := NewHeuristicClassifier(nil)
	require.NoError(t, err)
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, classifier.Classify(tc.err))
		})
	}
}

func TestHeuristicClassifier_ExtraPatterns(t *testing.T) {
	err := errors.New("server closed the connection unexpectedly")

	defaultClassifier, e := NewHeuristicClassifier(nil)
	require.NoError(t, e)
	assert.Equal(t, Failure, defaultClassifier.Classify(err))

	extended, e := NewHeuristicClassifier([]string{"server closed"})
	require.NoError(t, e)
	assert.Equal(t, TimeoutLike, extended.Classify(err))
}

func TestNewHeuristicClassifier_InvalidPattern(t *testing.T) {
	_, err := NewHeuristicClassifier([]string{"([unclosed"})
	assert.Error(t, err)
}

func TestKind(t *testing.T) {
	assert.Equal(t, "success", Success.Status())
	assert.Equal(t, "failure", Failure.Status())
	assert.Equal(t, "failure", TimeoutLike.Status())
	assert.True(t, TimeoutLike.IsTimeout())
	assert.True(t, TimeoutLike.IsFailure())
	assert.False(t, Failure.IsTimeout())
	assert.False(t, Success.IsFailure())
	assert.Equal(t, "timeout", TimeoutLike.String())
	assert.Equal(t, "unknown", Kind(42).String())
}
