package common

import (
	"fmt"

	"github.com/beevik/etree"
	"github.com/go-logr/logr"
)

// Logger is the logging facade used across the library.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(err error, msg string, keysAndValues ...any)
}

type logrLogger struct {
	log logr.Logger
}

// NewLogger wraps a logr.Logger. Debug messages are emitted at verbosity 1.
func NewLogger(log logr.Logger) Logger {
	return &logrLogger{log: log}
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return &logrLogger{log: logr.Discard()}
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l Logger) Logger {
	if l == nil {
		return Discard()
	}
	return l
}

func (l *logrLogger) Debug(msg string, keysAndValues ...any) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l *logrLogger) Info(msg string, keysAndValues ...any) {
	l.log.Info(msg, keysAndValues...)
}

func (l *logrLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(err, msg, keysAndValues...)
}

// XMLString serializes a copy of el for diagnostic output.
func XMLString(el *etree.Element) string {
	if el == nil {
		return ""
	}

	doc := etree.NewDocument()
	doc.SetRoot(el.Copy())

	s, err := doc.WriteToString()
	if err != nil {
		return fmt.Sprintf("<!-- failed to serialize XML: %v -->", err)
	}
	return s
}
