package target

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/pkg/errors"
	"github.com/sanity-io/litter"
)

var dumper = litter.Options{
	StripPackageNames: true,
	HidePrivateFields: true,
	FieldExclusions:   regexp.MustCompile(`^Password$`),
	Separator:         " ",
}

const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// Target is one logical database destination. Name is the metric label and must be unique.
type Target struct {
	Name     string `validate:"required"`
	Driver   string `validate:"oneof=pgx postgres mysql sqlite"`
	Host     string `validate:"required_unless=Driver sqlite"`
	Port     uint16 `validate:"required_unless=Driver sqlite"`
	User     string
	Password string
	Database string `validate:"required"`
	SSLMode  string `validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	// SimulateFailure makes every write fail with a synthetic connection error before touching the database.
	SimulateFailure bool
}

// String omits the password so that targets are safe to log.
func (t Target) String() string {
	if t.Driver == DriverSQLite {
		return fmt.Sprintf("%s (%s %s)", t.Name, t.Driver, t.Database)
	}
	return fmt.Sprintf("%s (%s %s@%s:%d/%s)", t.Name, t.Driver, t.User, t.Host, t.Port, t.Database)
}

// Dump renders targets for debug logging, without passwords.
func Dump(targets ...Target) string {
	return dumper.Sdump(targets)
}

// Registry holds the immutable set of configured targets, in configuration order.
type Registry struct {
	targets []Target
	byName  map[string]Target
}

func NewRegistry(targets ...Target) (*Registry, error) {
	if len(targets) == 0 {
		return nil, errors.New("at least one target must be configured")
	}
	r := &Registry{
		targets: make([]Target, 0, len(targets)),
		byName:  make(map[string]Target, len(targets)),
	}
	for _, t := range targets {
		if _, exists := r.byName[t.Name]; exists {
			return nil, errors.Errorf("target %s is configured more than once", t.Name)
		}
		r.byName[t.Name] = t
		r.targets = append(r.targets, t)
	}
	return r, nil
}

// Targets returns a copy of the configured targets.
func (r *Registry) Targets() []Target {
	result := make([]Target, len(r.targets))
	copy(result, r.targets)
	return result
}

func (r *Registry) Get(name string) (Target, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns target names sorted alphabetically.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.targets))
	for _, t := range r.targets {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) Len() int {
	return len(r.targets)
}
