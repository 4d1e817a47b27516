package outcome

import (
	"database/sql/driver"
	"regexp"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/G-Research/dbheartbeat/internal/common/dberrors"
)

// Classifier maps the error returned by an attempt to an outcome kind.
type Classifier interface {
	Classify(err error) Kind
}

// DefaultTimeoutPatterns match error text that drivers produce for connection problems without
// exposing a structured error.
var DefaultTimeoutPatterns = []string{
	"timed out",
	"timeout",
	"connection refused",
	"connection reset",
	"could not connect",
	"failed to connect",
	"no route to host",
	"broken pipe",
	"bad connection",
	"database is locked",
	"operationalerror",
}

// MySQL server error numbers that indicate the server could not serve the request in time.
var mysqlTimeoutErrors = map[uint16]bool{
	1040: true, // ER_CON_COUNT_ERROR
	1053: true, // ER_SERVER_SHUTDOWN
	1205: true, // ER_LOCK_WAIT_TIMEOUT
	3024: true, // ER_QUERY_TIMEOUT
}

// HeuristicClassifier first inspects the structured errors of the supported drivers and then falls back
// to matching the error text. The result is best effort: drivers do not always expose a timeout flag.
type HeuristicClassifier struct {
	patterns []*regexp.Regexp
}

func NewHeuristicClassifier(extraPatterns []string) (*HeuristicClassifier, error) {
	all := append(append([]string{}, DefaultTimeoutPatterns...), extraPatterns...)
	patterns := make([]*regexp.Regexp, 0, len(all))
	for _, p := range all {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid timeout error pattern %q", p)
		}
		patterns = append(patterns, re)
	}
	return &HeuristicClassifier{patterns: patterns}, nil
}

func (c *HeuristicClassifier) Classify(err error) Kind {
	if err == nil {
		return Success
	}
	if isStructuredTimeout(err) || c.matchesPattern(err) {
		return TimeoutLike
	}
	return Failure
}

func isStructuredTimeout(err error) bool {
	if dberrors.IsTimeout(err) || dberrors.IsNetworkError(err) || pgconn.Timeout(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgerrcode.IsConnectionException(pgErr.Code) || pgerrcode.IsOperatorIntervention(pgErr.Code)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		class := pqErr.Code.Class()
		return class == "08" || class == "57"
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlTimeoutErrors[mysqlErr.Number]
	}
	return false
}

func (c *HeuristicClassifier) matchesPattern(err error) bool {
	message := strings.ToLower(err.Error())
	for _, p := range c.patterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}
