package dberrors

import (
	"context"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "invalid configuration ALPHA_DB_HOST: required", (&ErrConfig{Name: "ALPHA_DB_HOST", Message: "required"}).Error())
	assert.Equal(t, "invalid configuration: no targets", (&ErrConfig{Message: "no targets"}).Error())
	assert.Equal(t, "failed to connect to target alpha: boom", (&ErrConnect{Target: "alpha", Err: errors.New("boom")}).Error())
	assert.Equal(t, "failed to write heartbeat to target alpha: boom", (&ErrWrite{Target: "alpha", Err: errors.New("boom")}).Error())
	assert.Equal(t,
		"connecting to alpha: gave up after 5 attempts; last error: boom",
		(&ErrMaxRetriesExceeded{Message: "connecting to alpha", Attempts: 5, LastError: errors.New("boom")}).Error())
}

func TestIsConfigError(t *testing.T) {
	configErr := errors.WithStack(&ErrConfig{Name: "DB_HOST", Message: "required"})
	assert.True(t, IsConfigError(configErr))
	assert.True(t, IsConfigError(multierror.Append(nil, configErr)))
	assert.False(t, IsConfigError(errors.New("other")))
}

func TestWrappedErrorsUnwrap(t *testing.T) {
	inner := syscall.ECONNREFUSED
	err := errors.WithStack(&ErrWrite{Target: "alpha", Err: inner})
	assert.True(t, errors.Is(err, syscall.ECONNREFUSED))
	assert.Equal(t, inner, errors.Cause(err))
}

func TestIsNetworkError(t *testing.T) {
	tests := map[string]struct {
		err      error
		expected bool
	}{
		"nil":                {err: nil, expected: false},
		"plain":              {err: errors.New("syntax error"), expected: false},
		"deadline":           {err: errors.WithStack(context.DeadlineExceeded), expected: true},
		"refused":            {err: &os.SyscallError{Syscall: "connect", Err: syscall.ECONNREFUSED}, expected: true},
		"op error":           {err: &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("no route")}, expected: true},
		"dns error":          {err: &net.DNSError{Err: "no such host", Name: "db"}, expected: true},
		"wrapped in connect": {err: &ErrConnect{Target: "alpha", Err: syscall.ECONNRESET}, expected: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, IsNetworkError(tc.err))
		})
	}
}

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(&net.DNSError{Err: "timeout", IsTimeout: true}))
	assert.False(t, IsTimeout(&net.DNSError{Err: "no such host"}))
	assert.False(t, IsTimeout(nil))
}
