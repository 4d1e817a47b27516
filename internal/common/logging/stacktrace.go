package logging

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const Stacktrace = "stacktrace"

type stackTracer interface {
	StackTrace() errors.StackTrace
}

type causer interface {
	Cause() error
}

// WithStacktrace adds err and, if one can be found, its stack trace to logger.
func WithStacktrace(logger *logrus.Entry, err error) *logrus.Entry {
	logger = logger.WithError(err)
	if stack := ExtractStack(err); stack != nil {
		logger = logger.WithField(Stacktrace, stack)
	}
	return logger
}

// ExtractStack returns the first errors.StackTrace found by following Cause() chains.
// For a *multierror.Error the wrapped errors are searched in order.
func ExtractStack(err error) errors.StackTrace {
	switch e := err.(type) {
	case nil:
		return nil
	case stackTracer:
		return e.StackTrace()
	case *multierror.Error:
		for _, inner := range e.Errors {
			if stack := ExtractStack(inner); stack != nil {
				return stack
			}
		}
	case causer:
		return ExtractStack(e.Cause())
	}
	return nil
}
