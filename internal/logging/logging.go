package logging

import (
	"fmt"
	"path/filepath"
	"time"
)

// LogFilePath returns <logsDir>/<name>.<YYYYMMDD_HHMMSS>.log for a process start time.
func LogFilePath(logsDir, name string, started time.Time) string {
	return filepath.Join(logsDir, fmt.Sprintf("%s.%s.log", name, started.Format("20060102_150405")))
}
