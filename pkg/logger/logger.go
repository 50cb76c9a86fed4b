package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string, keyvals ...interface{})
	Info(msg string, keyvals ...interface{})
	Warn(msg string, keyvals ...interface{})
	Error(msg string, keyvals ...interface{})
	Fatal(msg string, keyvals ...interface{})

	// With returns a child logger that adds keyvals to every entry.
	With(keyvals ...interface{}) Logger
}

type zeroLogger struct {
	logger zerolog.Logger
}

func New(level string, format string) Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter builds a logger that writes to w. format "text" selects the
// console writer, anything else emits JSON lines.
func NewWithWriter(w io.Writer, level string, format string) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	output := w
	if format == "text" {
		output = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
		}
	}

	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		l = zerolog.InfoLevel
	}

	z := zerolog.New(output).Level(l).With().Timestamp().Logger()

	return &zeroLogger{logger: z}
}

// Nop discards everything.
func Nop() Logger {
	return &zeroLogger{logger: zerolog.Nop()}
}

func (l *zeroLogger) Debug(msg string, keyvals ...interface{}) {
	l.log(l.logger.Debug(), msg, keyvals...)
}

func (l *zeroLogger) Info(msg string, keyvals ...interface{}) {
	l.log(l.logger.Info(), msg, keyvals...)
}

func (l *zeroLogger) Warn(msg string, keyvals ...interface{}) {
	l.log(l.logger.Warn(), msg, keyvals...)
}

func (l *zeroLogger) Error(msg string, keyvals ...interface{}) {
	l.log(l.logger.Error(), msg, keyvals...)
}

func (l *zeroLogger) Fatal(msg string, keyvals ...interface{}) {
	l.log(l.logger.Fatal(), msg, keyvals...)
}

func (l *zeroLogger) With(keyvals ...interface{}) Logger {
	c := l.logger.With()
	for i := 0; i+1 < len(keyvals); i += 2 {
		if key, ok := keyvals[i].(string); ok {
			c = c.Interface(key, keyvals[i+1])
		}
	}
	return &zeroLogger{logger: c.Logger()}
}

func (l *zeroLogger) log(e *zerolog.Event, msg string, keyvals ...interface{}) {
	if e == nil {
		return
	}

	for i := 0; i < len(keyvals); i += 2 {
		if i+1 < len(keyvals) {
			key, ok := keyvals[i].(string)
			if !ok {
				continue
			}
			if err, isErr := keyvals[i+1].(error); isErr {
				e.AnErr(key, err)
				continue
			}
			e.Interface(key, keyvals[i+1])
		}
	}

	e.Msg(msg)
}
