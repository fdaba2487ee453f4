package logging

import "github.com/sirupsen/logrus"

// Logrus wraps a *logrus.Logger to implement Logger.
type Logrus struct {
	logger *logrus.Logger
}

// NewLogrus builds a Logger backed by the given logrus logger.
func NewLogrus(logger *logrus.Logger) Logger {
	return &Logrus{logger: logger}
}

func (l *Logrus) Error(msg string, args ...any) { l.logger.WithFields(fields(args)).Error(msg) }
func (l *Logrus) Warn(msg string, args ...any)  { l.logger.WithFields(fields(args)).Warn(msg) }
func (l *Logrus) Info(msg string, args ...any)  { l.logger.WithFields(fields(args)).Info(msg) }
func (l *Logrus) Debug(msg string, args ...any) { l.logger.WithFields(fields(args)).Debug(msg) }

func fields(args []any) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			f[key] = args[i+1]
		}
	}
	return f
}
