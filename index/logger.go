// Created by Yanjunhui

package index

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// 日志级别
// EN: Log levels.
const (
	LogLevelDebug = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
)

// 日志级别名称
// EN: Log level names.
var logLevelNames = map[int]string{
	LogLevelDebug: "DEBUG",
	LogLevelInfo:  "INFO",
	LogLevelWarn:  "WARN",
	LogLevelError: "ERROR",
}

// LogEntry 结构化日志条目
// EN: LogEntry is a structured log record.
type LogEntry struct {
	Timestamp  time.Time              `json:"ts"`
	Level      string                 `json:"level"`
	Component  string                 `json:"component,omitempty"`
	Message    string                 `json:"msg"`
	Context    map[string]interface{} `json:"ctx,omitempty"`
	DurationMs int64                  `json:"durationMs,omitempty"`
}

// Logger 日志器
// EN: Logger writes structured JSON logs.
type Logger struct {
	mu            sync.Mutex
	output        io.Writer
	level         int
	component     string
	slowThreshold time.Duration // 慢操作阈值 (EN: slow operation threshold)
}

// 全局日志器
// EN: Global default logger.
var defaultLogger = NewLogger(os.Stdout)

// NewLogger 创建新的日志器
// EN: NewLogger creates a new logger.
func NewLogger(output io.Writer) *Logger {
	return &Logger{
		output:        output,
		level:         LogLevelInfo,
		component:     "MONOIDX",
		slowThreshold: 500 * time.Millisecond, // 批量建树超过 500ms 记为慢操作 (EN: bulk loads over 500ms are slow)
	}
}

// DefaultLogger 返回全局日志器
// EN: DefaultLogger returns the global logger.
func DefaultLogger() *Logger {
	return defaultLogger
}

// SetLevel 设置日志级别
// EN: SetLevel sets the minimum log level.
func (l *Logger) SetLevel(level int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
}

// SetOutput 设置输出目标
// EN: SetOutput sets the output writer.
func (l *Logger) SetOutput(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.output = w
}

// SetSlowThreshold 设置慢操作阈值
// EN: SetSlowThreshold sets the slow-operation threshold.
func (l *Logger) SetSlowThreshold(d time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.slowThreshold = d
}

// log 写入日志
// EN: log writes a log entry.
func (l *Logger) log(level int, msg string, ctx map[string]interface{}, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now(),
		Level:     logLevelNames[level],
		Component: l.component,
		Message:   msg,
		Context:   ctx,
	}
	if duration > 0 {
		entry.DurationMs = duration.Milliseconds()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.output.Write(append(data, '\n'))
}

// Debug 调试日志
// EN: Debug logs at debug level.
func (l *Logger) Debug(msg string, ctx map[string]interface{}) {
	l.log(LogLevelDebug, msg, ctx, 0)
}

// Info 信息日志
// EN: Info logs at info level.
func (l *Logger) Info(msg string, ctx map[string]interface{}) {
	l.log(LogLevelInfo, msg, ctx, 0)
}

// Warn 警告日志
// EN: Warn logs at warn level.
func (l *Logger) Warn(msg string, ctx map[string]interface{}) {
	l.log(LogLevelWarn, msg, ctx, 0)
}

// Error 错误日志
// EN: Error logs at error level.
func (l *Logger) Error(msg string, ctx map[string]interface{}) {
	l.log(LogLevelError, msg, ctx, 0)
}

// InfoDuration 带耗时的信息日志，超过慢操作阈值时升级为 WARN
// EN: InfoDuration logs with a duration; entries beyond the slow
// threshold are promoted to WARN.
func (l *Logger) InfoDuration(msg string, ctx map[string]interface{}, d time.Duration) {
	level := LogLevelInfo
	if d >= l.slowThreshold {
		level = LogLevelWarn
	}
	l.log(level, msg, ctx, d)
}
