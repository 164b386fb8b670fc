// Package log is the service-wide logger. It keeps the Error/Fatal helpers
// with caller info and writes through zap, optionally mirroring every line
// to an extra sink such as the Redis log list.
package log

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = zap.NewNop()
)

// Init builds the global logger at the given level. Extra sinks receive the
// same encoded lines as stdout.
func Init(level string, sinks ...io.Writer) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder

	writers := []zapcore.WriteSyncer{zapcore.Lock(os.Stdout)}
	for _, s := range sinks {
		if s != nil {
			writers = append(writers, zapcore.AddSync(s))
		}
	}

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.NewMultiWriteSyncer(writers...), lvl)
	Set(zap.New(core))
	return nil
}

// Set replaces the global logger. Tests use it with zaptest/observer.
func Set(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	logger = l
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Named returns a component logger, e.g. Named("chat").
func Named(name string) *zap.Logger {
	return L().Named(name)
}

// Sync flushes buffered entries.
func Sync() {
	_ = L().Sync()
}

// Error logs an error with the caller's file and line.
func Error(context string, err error) {
	L().Error(context, zap.String("caller", callerInfo(2)), zap.Error(err))
}

// Fatal logs an error and then exits the program.
func Fatal(context string, err error) {
	L().Error(context, zap.String("caller", callerInfo(2)), zap.Error(err))
	Sync()
	os.Exit(1)
}

func callerInfo(skip int) string {
	_, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}
	parts := strings.Split(file, "/")
	if len(parts) > 2 {
		file = strings.Join(parts[len(parts)-2:], "/")
	}
	return fmt.Sprintf("%s:%d", file, line)
}
