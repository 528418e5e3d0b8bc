package logrus

import (
	"io"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/unkn0wn-root/entrycache"
)

var _ entrycache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func (l LogrusLogger) Debug(msg string, f entrycache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Debug(msg)
}
func (l LogrusLogger) Info(msg string, f entrycache.Fields) { l.E.WithFields(logrus.Fields(f)).Info(msg) }
func (l LogrusLogger) Warn(msg string, f entrycache.Fields) { l.E.WithFields(logrus.Fields(f)).Warn(msg) }
func (l LogrusLogger) Error(msg string, f entrycache.Fields) {
	l.E.WithFields(logrus.Fields(f)).Error(msg)
}

// FileOptions configures a rotating log file.
type FileOptions struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotating builds a JSON logrus logger writing to a lumberjack-rotated file.
// An empty Path logs to out instead (stderr when out is nil).
func NewRotating(level string, fo FileOptions, out io.Writer) (LogrusLogger, io.Closer, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return LogrusLogger{}, nil, err
	}
	l := logrus.New()
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.JSONFormatter{})

	var closer io.Closer = nopCloser{}
	switch {
	case fo.Path != "":
		lj := &lumberjack.Logger{
			Filename:   fo.Path,
			MaxSize:    fo.MaxSizeMB,
			MaxBackups: fo.MaxBackups,
			MaxAge:     fo.MaxAgeDays,
			Compress:   fo.Compress,
		}
		l.SetOutput(lj)
		closer = lj
	case out != nil:
		l.SetOutput(out)
	}
	return LogrusLogger{E: logrus.NewEntry(l).WithField("component", "entrycache")}, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
