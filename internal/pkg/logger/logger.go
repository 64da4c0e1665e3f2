// Package logger provides the logging implementations behind ports.Logger.
package logger

import (
	"log"
)

// StdLogger is a lightweight implementation backed by Go's log package.
// Warn and Error always log; Debug and Info require verbose mode, so an
// audit-relevant failure is never silently dropped.
type StdLogger struct {
	verbose bool
}

// NewStd creates a StdLogger.
func NewStd(verbose bool) *StdLogger {
	return &StdLogger{verbose: verbose}
}

func (l *StdLogger) Debug(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	log.Println("[DEBUG]", msg, fields)
}

func (l *StdLogger) Info(msg string, fields map[string]interface{}) {
	if !l.verbose {
		return
	}
	log.Println("[INFO]", msg, fields)
}

func (l *StdLogger) Warn(msg string, fields map[string]interface{}) {
	log.Println("[WARN]", msg, fields)
}

func (l *StdLogger) Error(msg string, err error, fields map[string]interface{}) {
	log.Println("[ERROR]", msg, err, fields)
}

// NopLogger discards everything. Used in tests.
type NopLogger struct{}

// NewNop creates a NopLogger.
func NewNop() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, map[string]interface{})        {}
func (*NopLogger) Info(string, map[string]interface{})         {}
func (*NopLogger) Warn(string, map[string]interface{})         {}
func (*NopLogger) Error(string, error, map[string]interface{}) {}
