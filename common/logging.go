// Package common provides the structured logging and small utility helpers
// shared by every other package in the collection engine: an output splitter
// that routes error-level logs to stderr, a base logrus logger, and the
// context-aware wrapper every component actually logs through.
package common

import (
	"bytes"
	"os"

	"github.com/sirupsen/logrus"
)

// OutputSplitter routes logrus output by level: messages formatted with
// "level=error" go to stderr, everything else to stdout. This keeps
// container log collectors able to treat the two streams differently.
type OutputSplitter struct{}

func (s *OutputSplitter) Write(p []byte) (int, error) {
	if bytes.Contains(p, []byte("level=error")) {
		return os.Stderr.Write(p)
	}
	return os.Stdout.Write(p)
}

// Logger is the base logrus instance. Components should not log through it
// directly; wrap it (or a test double) in a ContextLogger and pass that in,
// per the "no process-wide mutable logger singleton" design note.
var Logger = logrus.New()

func init() {
	Logger.SetOutput(&OutputSplitter{})
}
