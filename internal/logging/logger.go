package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// LogLevel describes the level of importance of a log message.
type LogLevel uint8

const (
	// DEBUG is the lowest logging level. Used for message-by-message traces.
	DEBUG LogLevel = 0
	// INFO is used for general information messages.
	INFO LogLevel = 1
	// WARN is important information that may indicate a problem.
	WARN LogLevel = 2
	// ERR is the highest logging level. Used for error messages.
	ERR LogLevel = 3
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERR:
		return "ERROR"
	default:
		return "LEVEL?"
	}
}

const timeLayout = "2006-01-02 15:04:05.000"

// Logger is a struct that logs messages to a console writer and/or a file.
type Logger struct {
	console  *syncWriter
	file     *LogFile
	name     string
	logLevel LogLevel
	fileOnly bool
}

// Serializes writes of whole lines coming from loggers sharing the same console.
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) writeString(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, str)
}

// NewLogger constructs and returns a new logger instance.
//   - console: where lines are echoed unless fileOnly is set
//   - file: optional file sink, may be nil
//   - name: prefix identifying the component
func NewLogger(console io.Writer, file *LogFile, name string, fileOnly bool) *Logger {
	return &Logger{
		console:  &syncWriter{w: console},
		file:     file,
		name:     name,
		fileOnly: fileOnly,
		logLevel: INFO,
	}
}

// NewStdLogger returns a new instance of a logger that logs to the standard output.
func NewStdLogger(name string) *Logger {
	return NewLogger(os.Stdout, nil, name, false)
}

// NewDiscardLogger returns a logger that drops everything. Useful in tests.
func NewDiscardLogger() *Logger {
	return NewLogger(io.Discard, nil, "", true)
}

// WithLogLevel returns a new logger with the same configuration, but with a filter on the log level: only messages of higher or equal level will be logged.
func (l *Logger) WithLogLevel(level LogLevel) *Logger {
	c := *l
	c.logLevel = level
	return &c
}

// WithPostfix returns a new logger with the same configuration, but with the given postfix appended to the name.
func (l *Logger) WithPostfix(postfix string) *Logger {
	c := *l
	if c.name == "" {
		c.name = postfix
	} else {
		c.name = fmt.Sprintf("%s|%s", l.name, postfix)
	}
	return &c
}

func (l *Logger) log(level LogLevel, msg string) {
	if level < l.logLevel {
		return
	}
	s := fmt.Sprintf("%s [%s|%s] %s\n", time.Now().Format(timeLayout), level, l.name, msg)
	if l.file != nil {
		l.file.Print(s)
	}
	if !l.fileOnly {
		l.console.writeString(s)
	}
}

// Debug logs a message with the DEBUG level.
func (l *Logger) Debug(args ...interface{}) {
	l.log(DEBUG, fmt.Sprint(args...))
}

// Debugf logs a formatted message with the DEBUG level.
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.log(DEBUG, fmt.Sprintf(format, args...))
}

// Info logs a message with the INFO level.
func (l *Logger) Info(args ...interface{}) {
	l.log(INFO, fmt.Sprint(args...))
}

// Infof logs a formatted message with the INFO level.
func (l *Logger) Infof(format string, args ...interface{}) {
	l.log(INFO, fmt.Sprintf(format, args...))
}

// Warn logs a message with the WARN level.
func (l *Logger) Warn(args ...interface{}) {
	l.log(WARN, fmt.Sprint(args...))
}

// Warnf logs a formatted message with the WARN level.
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.log(WARN, fmt.Sprintf(format, args...))
}

// Error logs a message with the ERR level.
func (l *Logger) Error(args ...interface{}) {
	l.log(ERR, fmt.Sprint(args...))
}

// Errorf logs a formatted message with the ERR level.
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.log(ERR, fmt.Sprintf(format, args...))
}
