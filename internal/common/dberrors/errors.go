// Package dberrors contains the error types shared by components that talk to databases.
//
// Errors from configuration loading are fatal and surface at the process entry point.
// Connect and write errors are recoverable and are handled at the attempt boundary.
// If several errors occur in one call (e.g., several targets are misconfigured), the function
// should return a *multierror.Error from github.com/hashicorp/go-multierror wrapping them.
package dberrors

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"github.com/pkg/errors"
)

// ErrConfig is returned when a required setting is missing or structurally invalid.
type ErrConfig struct {
	// Setting that failed validation, e.g. "ALPHA_DB_HOST"
	Name    string
	Message string
}

func (err *ErrConfig) Error() string {
	if err.Name != "" {
		return fmt.Sprintf("invalid configuration %s: %s", err.Name, err.Message)
	}
	return fmt.Sprintf("invalid configuration: %s", err.Message)
}

// ErrConnect is returned when a connection to a target could not be established.
type ErrConnect struct {
	Target string
	Err    error
}

func (err *ErrConnect) Error() string {
	return fmt.Sprintf("failed to connect to target %s: %v", err.Target, err.Err)
}

func (err *ErrConnect) Cause() error {
	return err.Err
}

func (err *ErrConnect) Unwrap() error {
	return err.Err
}

// ErrWrite is returned when a heartbeat row could not be committed.
type ErrWrite struct {
	Target string
	Err    error
}

func (err *ErrWrite) Error() string {
	return fmt.Sprintf("failed to write heartbeat to target %s: %v", err.Target, err.Err)
}

func (err *ErrWrite) Cause() error {
	return err.Err
}

func (err *ErrWrite) Unwrap() error {
	return err.Err
}

// ErrMaxRetriesExceeded is returned when a bounded retry loop gives up.
type ErrMaxRetriesExceeded struct {
	Message   string
	Attempts  uint
	LastError error
}

func (err *ErrMaxRetriesExceeded) Error() string {
	return fmt.Sprintf("%s: gave up after %d attempts; last error: %v", err.Message, err.Attempts, err.LastError)
}

func (err *ErrMaxRetriesExceeded) Cause() error {
	return err.LastError
}

func (err *ErrMaxRetriesExceeded) Unwrap() error {
	return err.LastError
}

// IsConfigError reports whether err, or anything it wraps, is an *ErrConfig.
func IsConfigError(err error) bool {
	var e *ErrConfig
	return errors.As(err, &e)
}

// IsNetworkError returns true if err is a network error: an elapsed deadline, a refused or
// reset connection, or anything implementing net.Error.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsTimeout returns true if err is, or wraps, an error that reports itself as a timeout.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var timeout interface{ Timeout() bool }
	return errors.As(err, &timeout) && timeout.Timeout()
}
