// Package logging adapts glog to the structured Logger used by the unit of
// work.
package logging

import (
	"fmt"
	"strings"

	"github.com/golang/glog"
)

// DebugLevel is the glog verbosity at which Debug messages are emitted.
const DebugLevel glog.Level = 2

// Glog writes key/value log records through glog.
type Glog struct {
	prefix string
}

// NewGlog returns a logger tagging every record with prefix, e.g. "[uow]".
func NewGlog(prefix string) *Glog {
	return &Glog{prefix: prefix}
}

// Debug logs at DebugLevel verbosity.
func (l *Glog) Debug(msg string, args ...any) {
	if glog.V(DebugLevel) {
		glog.InfoDepth(1, l.format(msg, args))
	}
}

// Info logs an informational record.
func (l *Glog) Info(msg string, args ...any) {
	glog.InfoDepth(1, l.format(msg, args))
}

// Warn logs a warning record.
func (l *Glog) Warn(msg string, args ...any) {
	glog.WarningDepth(1, l.format(msg, args))
}

// Error logs an error record.
func (l *Glog) Error(msg string, args ...any) {
	glog.ErrorDepth(1, l.format(msg, args))
}

func (l *Glog) format(msg string, args []any) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
	}
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fmt.Fprintf(&b, " !BADKEY=%v", args[i])
			break
		}
		fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
	}
	return b.String()
}
