package log

import (
	"time"
)

// HTTPLogEntry represents an HTTP request/response log entry
type HTTPLogEntry struct {
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	Size       int           `json:"size"`
	RemoteAddr string        `json:"remote_addr"`
	UserAgent  string        `json:"user_agent"`
}

// LogHTTPRequest writes one access log line through the global logger.
// Server errors are logged at warn level.
func LogHTTPRequest(e HTTPLogEntry) {
	fields := []interface{}{
		"method", e.Method,
		"path", e.Path,
		"status", e.Status,
		"duration_ms", e.Duration.Milliseconds(),
		"size", e.Size,
		"remote_addr", e.RemoteAddr,
	}
	if e.UserAgent != "" {
		fields = append(fields, "user_agent", e.UserAgent)
	}

	if e.Status >= 500 {
		Warnw("http request", fields...)
		return
	}
	Infow("http request", fields...)
}
