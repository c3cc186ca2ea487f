package utils

import (
	"io"
	"log"
	"os"
)

// Logger is a small leveled wrapper over the standard log package. It is
// constructed once and injected; packages never log through globals.
type Logger struct {
	info *log.Logger
	err  *log.Logger
}

func NewLogger() *Logger {
	return NewLoggerTo(os.Stdout, os.Stderr)
}

func NewLoggerTo(out, errOut io.Writer) *Logger {
	return &Logger{
		info: log.New(out, "INFO ", log.LstdFlags|log.LUTC),
		err:  log.New(errOut, "ERROR ", log.LstdFlags|log.LUTC),
	}
}

func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.info == nil {
		return
	}
	l.info.Printf(format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	if l == nil || l.err == nil {
		return
	}
	l.err.Printf(format, args...)
}
