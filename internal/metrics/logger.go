// Package metrics appends engine events to a JSONL file for offline
// analysis.
package metrics

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// Logger writes one JSON object per line. Safe for concurrent use.
type Logger struct {
	mu   sync.Mutex
	file *os.File
}

// NewLogger opens (or creates) the event file in append mode.
func NewLogger(path string) (*Logger, error) {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &Logger{file: file}, nil
}

// Close closes the event file.
func (l *Logger) Close() error {
	return l.file.Close()
}

func (l *Logger) log(event string, data map[string]interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := map[string]interface{}{
		"ts":    time.Now().UTC().Format(time.RFC3339),
		"event": event,
	}
	for k, v := range data {
		e[k] = v
	}

	line, _ := json.Marshal(e)
	l.file.Write(line)
	l.file.Write([]byte("\n"))
}

// LogRefresh records a full refresh run.
func (l *Logger) LogRefresh(added, modified, cached, removed int, generation uint64, latencyMs int64) {
	l.log("refresh", map[string]interface{}{
		"added":      added,
		"modified":   modified,
		"cached":     cached,
		"removed":    removed,
		"generation": generation,
		"latency_ms": latencyMs,
	})
}

// LogUpdate records a targeted update run.
func (l *Logger) LogUpdate(reparsed, removed int, generation uint64, latencyMs int64) {
	l.log("update", map[string]interface{}{
		"reparsed":   reparsed,
		"removed":    removed,
		"generation": generation,
		"latency_ms": latencyMs,
	})
}

// LogSearch records a query.
func (l *Logger) LogSearch(query string, results int, latencyMs int64, cacheHit bool) {
	l.log("search", map[string]interface{}{
		"query":      query,
		"results":    results,
		"latency_ms": latencyMs,
		"cache_hit":  cacheHit,
	})
}

// LogError records a failed operation.
func (l *Logger) LogError(operation, message string) {
	l.log("error", map[string]interface{}{
		"operation": operation,
		"message":   message,
	})
}
