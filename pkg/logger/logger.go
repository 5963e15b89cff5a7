// Package logger is the process-wide structured logger of storygraph.
//
// Binaries call Init once with their backends (the console backend for
// terminals, the zap backend for JSON logs). Library packages log through the
// package functions with a "[Component]" prefix on the message and key/value
// pairs after it:
//
//	logger.Info("[Cache] stored", "key", key, "nodes", len(doc.Nodes))
//
// Calls made before Init are dropped, so packages and tests stay quiet unless
// a binary wires a backend.
package logger

import "sync/atomic"

// LoggerInstance defines the interface for logging backends.
type LoggerInstance interface {
	Log(message string, keyvals ...any)
	Debug(message string, keyvals ...any)
	Info(message string, keyvals ...any)
	Warn(message string, keyvals ...any)
	Error(message string, keyvals ...any)
	Fatal(message string, keyvals ...any)
}

// Logger holds multiple logging backends and dispatches log calls to all of them.
type Logger struct {
	instances []LoggerInstance
}

// active may be swapped by Init while pipeline workers are logging.
var active atomic.Pointer[Logger]

// Init installs the global logger with one or more logging backends,
// replacing any previous ones.
func Init(instances ...LoggerInstance) {
	active.Store(&Logger{instances: instances})
}

func dispatch(write func(LoggerInstance)) {
	l := active.Load()
	if l == nil {
		return
	}
	for _, instance := range l.instances {
		write(instance)
	}
}

// Log writes a message at the default log level to all configured backends.
func Log(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Log(message, keyvals...) })
}

func Debug(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Debug(message, keyvals...) })
}

func Info(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Info(message, keyvals...) })
}

func Warn(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Warn(message, keyvals...) })
}

func Error(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Error(message, keyvals...) })
}

// Fatal writes a message at FATAL level. Backends terminate the process.
func Fatal(message string, keyvals ...any) {
	dispatch(func(i LoggerInstance) { i.Fatal(message, keyvals...) })
}
