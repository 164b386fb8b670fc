package cache

import (
	"fmt"
	"os"
	"strings"
)

const (
	LogsKey = "logs"
	maxLogs = 100 // Max number of log entries to store in Redis
)

// LogWriter is an io.Writer that captures log output and sends it to Redis.
type LogWriter struct {
	cache Cache
}

// NewLogWriter creates a new LogWriter.
func NewLogWriter(c Cache) *LogWriter {
	return &LogWriter{cache: c}
}

// Write implements the io.Writer interface.
func (lw *LogWriter) Write(p []byte) (n int, err error) {
	logEntry := strings.TrimRight(string(p), "\n")

	if err := lw.cache.AddToList(LogsKey, logEntry, maxLogs); err != nil {
		// stderr, not the logger, or we would recurse
		_, _ = fmt.Fprintf(os.Stderr, "[ERROR] Failed to write log to Redis: %v\n", err)
	}
	return len(p), nil
}
