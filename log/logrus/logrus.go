// Package logrus adapts sirupsen/logrus to shelfcache.Logger.
package logrus

import (
	"github.com/sirupsen/logrus"

	"github.com/unkn0wn-root/shelfcache"
)

var _ shelfcache.Logger = LogrusLogger{}

type LogrusLogger struct{ E *logrus.Entry }

func New(l *logrus.Logger) LogrusLogger { return LogrusLogger{E: logrus.NewEntry(l)} }

func (l LogrusLogger) Debug(msg string, f shelfcache.Fields) { l.with(f).Debug(msg) }
func (l LogrusLogger) Info(msg string, f shelfcache.Fields)  { l.with(f).Info(msg) }
func (l LogrusLogger) Warn(msg string, f shelfcache.Fields)  { l.with(f).Warn(msg) }
func (l LogrusLogger) Error(msg string, f shelfcache.Fields) { l.with(f).Error(msg) }

func (l LogrusLogger) with(f shelfcache.Fields) *logrus.Entry {
	if len(f) == 0 {
		return l.E
	}
	if err, ok := f["err"].(error); ok {
		rest := make(logrus.Fields, len(f)-1)
		for k, v := range f {
			if k != "err" {
				rest[k] = v
			}
		}
		return l.E.WithError(err).WithFields(rest)
	}
	return l.E.WithFields(logrus.Fields(f))
}
