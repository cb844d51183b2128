package exq

import "go.uber.org/zap"

// Logger defines an interface implementers can use to redirect the
// manager/worker/stats logging into their own application, decoupling
// the engine from any particular logging library.
type Logger interface {
	Printf(format string, v ...interface{})
	Errorf(format string, v ...interface{})
}

// zapLogger is the default Logger, wrapping a zap.SugaredLogger.
type zapLogger struct {
	s *zap.SugaredLogger
}

// newZapLogger builds the default Logger from a production zap config.
func newZapLogger() Logger {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &zapLogger{s: l.Sugar()}
}

func (z *zapLogger) Printf(format string, v ...interface{}) {
	z.s.Infof(format, v...)
}

func (z *zapLogger) Errorf(format string, v ...interface{}) {
	z.s.Errorf(format, v...)
}
