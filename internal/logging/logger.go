//
//  Copyright © Manetu Inc. All rights reserved.
//

package logging

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a wrapper around zap.Logger that stamps every record with the
// owning module plus an actor/action pair, matching the shape of our access
// and audit records.
type Logger struct {
	module string
	sugar  *zap.SugaredLogger
	level  zapcore.Level
	writer io.Writer
}

const (
	actor     = "actor"
	action    = "action"
	defActor  = "sys"
	defAction = "unk"
	module    = "module"
)

func buildEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder

	// LOG_FORMATTER=text switches to a console encoder for local development
	if os.Getenv("LOG_FORMATTER") == "text" {
		return zapcore.NewConsoleEncoder(encoderConfig)
	}
	return zapcore.NewJSONEncoder(encoderConfig)
}

func (l *Logger) rebuild() {
	var output io.Writer = os.Stdout
	if l.writer != nil {
		output = l.writer
	}

	core := zapcore.NewCore(buildEncoder(), zapcore.AddSync(output), l.level)

	options := []zap.Option{
		zap.AddCallerSkip(1),
	}
	if os.Getenv("LOG_REPORT_CALLER") != "" {
		options = append(options, zap.AddCaller())
	}

	l.sugar = zap.New(core, options...).Sugar()
}

// internal function to create a logger without tracking.  Applications should
// call GetLogger() to retrieve a configured logger.
func newLogger(module string) *Logger {
	l := &Logger{
		module: module,
		level:  zapcore.InfoLevel,
	}
	l.rebuild()
	return l
}

// IsDebugEnabled returns true if the current logging level is debug or lower.
// Use as a guard where computing the log payload is expensive.
func (l *Logger) IsDebugEnabled() bool {
	return l.level <= zapcore.DebugLevel
}

// SetLevel sets the logging level
func (l *Logger) SetLevel(level zapcore.Level) {
	l.level = level
	l.rebuild()
}

// Out returns the output writer
func (l *Logger) Out() io.Writer {
	if l.writer != nil {
		return l.writer
	}
	return os.Stdout
}

// SetOut sets the output writer (for tests)
func (l *Logger) SetOut(w io.Writer) {
	l.writer = w
	l.rebuild()
}

func (l *Logger) with(actorID, actionID string) *zap.SugaredLogger {
	return l.sugar.With(
		zap.String(actor, actorID),
		zap.String(action, actionID),
		zap.String(module, l.module),
	)
}

// Debug logs a debug message
func (l *Logger) Debug(actorID, actionID string, args ...interface{}) {
	l.with(actorID, actionID).Debug(args...)
}

// Debugf logs a debug message
func (l *Logger) Debugf(actorID, actionID string, format string, args ...interface{}) {
	l.with(actorID, actionID).Debugf(format, args...)
}

// Info logs an info message
func (l *Logger) Info(actorID, actionID string, args ...interface{}) {
	l.with(actorID, actionID).Info(args...)
}

// Infof logs an info message
func (l *Logger) Infof(actorID, actionID string, format string, args ...interface{}) {
	l.with(actorID, actionID).Infof(format, args...)
}

// Warn logs a warning message
func (l *Logger) Warn(actorID, actionID string, args ...interface{}) {
	l.with(actorID, actionID).Warn(args...)
}

// Warnf logs a warning message
func (l *Logger) Warnf(actorID, actionID string, format string, args ...interface{}) {
	l.with(actorID, actionID).Warnf(format, args...)
}

// Error logs an error message
func (l *Logger) Error(actorID, actionID string, args ...interface{}) {
	l.with(actorID, actionID).Error(args...)
}

// Errorf logs an error message
func (l *Logger) Errorf(actorID, actionID string, format string, args ...interface{}) {
	l.with(actorID, actionID).Errorf(format, args...)
}

// Fatal logs a fatal message and exits
func (l *Logger) Fatal(actorID, actionID string, args ...interface{}) {
	l.with(actorID, actionID).Fatal(args...)
}

// Fatalf logs a fatal message and exits
func (l *Logger) Fatalf(actorID, actionID string, format string, args ...interface{}) {
	l.with(actorID, actionID).Fatalf(format, args...)
}

// Below are variants using the default actor and action

// SysDebugf logs a debug message with default actor and action
func (l *Logger) SysDebugf(format string, args ...interface{}) {
	l.Debugf(defActor, defAction, format, args...)
}

// SysInfof logs an info message with default actor and action
func (l *Logger) SysInfof(format string, args ...interface{}) {
	l.Infof(defActor, defAction, format, args...)
}

// SysWarnf logs a warning message with default actor and action
func (l *Logger) SysWarnf(format string, args ...interface{}) {
	l.Warnf(defActor, defAction, format, args...)
}

// SysErrorf logs an error message with default actor and action
func (l *Logger) SysErrorf(format string, args ...interface{}) {
	l.Errorf(defActor, defAction, format, args...)
}
