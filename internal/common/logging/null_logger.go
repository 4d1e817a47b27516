package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NullLogger discards everything; handy for tests and for components that require a logger.
var NullLogger = &logrus.Logger{
	Out:       io.Discard,
	Formatter: new(logrus.TextFormatter),
	Hooks:     make(logrus.LevelHooks),
	Level:     logrus.PanicLevel,
}

func NullEntry() *logrus.Entry {
	return logrus.NewEntry(NullLogger)
}
