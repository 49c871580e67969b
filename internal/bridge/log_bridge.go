package bridge

import (
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"sort"
	"strings"

	"github.com/normanking/spritetalk/internal/logging"
)

// DiagnosticsFunc reports application state for the troubleshooting panel.
type DiagnosticsFunc func() map[string]interface{}

// LogBridge feeds the log panel and collects diagnostics for bug reports.
type LogBridge struct {
	emitter
	logger      *logging.Logger
	diagnostics DiagnosticsFunc
	open        func(path string) error
}

// NewLogBridge creates a log bridge. diagnostics may be nil.
func NewLogBridge(logger *logging.Logger, diagnostics DiagnosticsFunc) *LogBridge {
	return &LogBridge{
		logger:      logger,
		diagnostics: diagnostics,
		open:        openPath,
	}
}

// Bind sets the Wails context and starts streaming entries to the panel.
func (b *LogBridge) Bind(ctx context.Context) {
	b.bindContext(ctx)
	b.logger.SetOnLog(func(entry logging.LogEntry) {
		b.send("log:entry", entry)
	})
}

// Log records a message from the frontend. Unknown levels log as info.
func (b *LogBridge) Log(level, component, message string, data map[string]interface{}) {
	if component == "" {
		component = "frontend"
	}
	switch logging.LogLevel(strings.ToLower(level)) {
	case logging.LevelDebug:
		b.logger.Debug(component, message, data)
	case logging.LevelWarn, "warning":
		b.logger.Warn(component, message, data)
	case logging.LevelError:
		b.logger.Error(component, message, nil, data)
	default:
		b.logger.Info(component, message, data)
	}
}

// GetLogHistory returns up to limit recent entries, oldest first.
func (b *LogBridge) GetLogHistory(limit int) []logging.LogEntry {
	return b.logger.GetHistory(limit)
}

// ClearLogHistory empties the log panel.
func (b *LogBridge) ClearLogHistory() {
	b.logger.ClearHistory()
}

// GetLogPath returns the current log file path, empty when file logging is off.
func (b *LogBridge) GetLogPath() string {
	return b.logger.GetLogPath()
}

// OpenLogFile opens the log file in the default viewer
func (b *LogBridge) OpenLogFile() error {
	return b.openLog(b.logger.GetLogPath())
}

// OpenLogDir opens the log directory in the file manager
func (b *LogBridge) OpenLogDir() error {
	path := b.logger.GetLogPath()
	if path == "" {
		return b.openLog("")
	}
	return b.openLog(filepath.Dir(path))
}

func (b *LogBridge) openLog(path string) error {
	if path == "" {
		return fmt.Errorf("file logging is disabled")
	}
	return b.open(path)
}

// GetDiagnostics merges runtime facts with the application's own report.
func (b *LogBridge) GetDiagnostics() map[string]interface{} {
	info := map[string]interface{}{
		"os":         goruntime.GOOS,
		"arch":       goruntime.GOARCH,
		"goVersion":  goruntime.Version(),
		"goroutines": goruntime.NumGoroutine(),
		"logPath":    b.logger.GetLogPath(),
	}

	var m goruntime.MemStats
	goruntime.ReadMemStats(&m)
	info["memAllocMB"] = m.Alloc / 1024 / 1024

	if b.diagnostics != nil {
		for k, v := range b.diagnostics() {
			info[k] = v
		}
	}
	return info
}

// ExportReport renders diagnostics and the last limit log entries as plain
// text for pasting into an issue.
func (b *LogBridge) ExportReport(limit int) string {
	var sb strings.Builder
	sb.WriteString("== diagnostics ==\n")
	info := b.GetDiagnostics()
	keys := make([]string, 0, len(info))
	for k := range info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s: %v\n", k, info[k])
	}

	sb.WriteString("== log ==\n")
	for _, e := range b.logger.GetHistory(limit) {
		fmt.Fprintf(&sb, "%s %-5s [%s] %s", e.Timestamp, e.Level, e.Component, e.Message)
		if e.Data != "" {
			sb.WriteString(" " + e.Data)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

func openPath(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "linux":
		cmd = exec.Command("xdg-open", path)
	case "windows":
		cmd = exec.Command("explorer", path)
	default:
		cmd = exec.Command("open", path)
	}
	return cmd.Start()
}
