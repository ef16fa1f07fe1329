/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

// Package log provides a structured, component-scoped wrapper around the zap logger.
package log

import (
	"errors"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asgardeo/conduit/internal/system/constants"
)

var (
	logger *Logger
	once   sync.Once
)

// Logger is a wrapper around the zap logger.
type Logger struct {
	internal *zap.Logger
}

// GetLogger creates and returns a singleton instance of the logger.
func GetLogger() *Logger {
	once.Do(func() {
		if logger != nil {
			return
		}
		err := initLogger()
		if err != nil {
			panic("Failed to initialize logger: " + err.Error())
		}
	})
	return logger
}

// SetLogger replaces the process logger with one backed by the given zap logger.
// Intended for tests that need to observe log output.
func SetLogger(z *zap.Logger) {
	logger = &Logger{internal: z}
	once.Do(func() {})
}

// initLogger initializes the zap logger with a plain text format.
func initLogger() error {
	logLevel := os.Getenv(constants.LogLevelEnvironmentVariable)
	if logLevel == "" {
		logLevel = constants.DefaultLogLevel
	}
	level, err := parseLogLevel(logLevel)
	if err != nil {
		return errors.New("error parsing log level: " + err.Error())
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(zapcore.Lock(os.Stdout)),
		level,
	)

	logger = &Logger{
		internal: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)),
	}
	return nil
}

// With creates a new logger instance with additional fields.
func (l *Logger) With(fields ...Field) *Logger {
	return &Logger{
		internal: l.internal.With(fields...),
	}
}

// IsDebugEnabled checks if the logger is set to debug level.
func (l *Logger) IsDebugEnabled() bool {
	return l.internal.Core().Enabled(zapcore.DebugLevel)
}

// Info logs an informational message with custom fields.
func (l *Logger) Info(msg string, fields ...Field) {
	l.internal.Info(msg, fields...)
}

// Debug logs a debug message with custom fields.
func (l *Logger) Debug(msg string, fields ...Field) {
	l.internal.Debug(msg, fields...)
}

// Warn logs a warning message with custom fields.
func (l *Logger) Warn(msg string, fields ...Field) {
	l.internal.Warn(msg, fields...)
}

// Error logs an error message with custom fields.
func (l *Logger) Error(msg string, fields ...Field) {
	l.internal.Error(msg, fields...)
}

// Fatal logs a fatal message with custom fields and exits the application.
func (l *Logger) Fatal(msg string, fields ...Field) {
	l.internal.Fatal(msg, fields...)
}

// Sync flushes any buffered log entries.
func Sync() {
	if logger != nil {
		_ = logger.internal.Sync()
	}
}

// parseLogLevel parses the log level string and returns the corresponding zap level.
func parseLogLevel(logLevel string) (zapcore.Level, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(logLevel))); err != nil {
		return zapcore.ErrorLevel, err
	}
	return level, nil
}

// MaskString masks characters in a string except for the first and last characters.
func MaskString(s string) string {
	if len(s) <= 3 {
		return strings.Repeat("*", len(s))
	}
	return s[:1] + strings.Repeat("*", len(s)-2) + s[len(s)-1:]
}
