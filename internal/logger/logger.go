package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// Level はログレベルを表す
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel は文字列からログレベルを解析する
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %q", s)
	}
}

// Logger はスレッドセーフなロガー
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	minLevel Level
}

// Default はデフォルトのロガー
var Default = New(os.Stdout, LevelInfo)

// New は新しいロガーを作成する
func New(out io.Writer, minLevel Level) *Logger {
	return &Logger{
		out:      out,
		minLevel: minLevel,
	}
}

// SetLevel はログレベルを設定する
func (l *Logger) SetLevel(level Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = level
}

// SetOutput は出力先を変更する
func (l *Logger) SetOutput(out io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.out = out
}

// Level は現在のログレベルを返す
func (l *Logger) Level() Level {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minLevel
}

// Enabled は指定レベルが出力対象かどうかを返す
func (l *Logger) Enabled(level Level) bool {
	return level >= l.Level()
}

// log は指定されたレベルでログを出力する
// key はプール名やワーカー名などの発生元（空文字で省略）
func (l *Logger) log(level Level, key string, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if level < l.minLevel {
		return
	}

	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	msg := fmt.Sprintf(format, args...)

	if key != "" {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] [%s] %s\n", timestamp, level, key, msg)
	} else {
		_, _ = fmt.Fprintf(l.out, "[%s] [%s] %s\n", timestamp, level, msg)
	}
}

// Debug はデバッグログを出力する
func (l *Logger) Debug(key string, format string, args ...any) {
	l.log(LevelDebug, key, format, args...)
}

// Info は情報ログを出力する
func (l *Logger) Info(key string, format string, args ...any) {
	l.log(LevelInfo, key, format, args...)
}

// Warn は警告ログを出力する
func (l *Logger) Warn(key string, format string, args ...any) {
	l.log(LevelWarn, key, format, args...)
}

// Error はエラーログを出力する
func (l *Logger) Error(key string, format string, args ...any) {
	l.log(LevelError, key, format, args...)
}

// グローバル関数（デフォルトロガーを使用）

// SetLevel はデフォルトロガーのログレベルを設定する
func SetLevel(level Level) {
	Default.SetLevel(level)
}

// SetOutput はデフォルトロガーの出力先を変更する
func SetOutput(out io.Writer) {
	Default.SetOutput(out)
}

// Debug はデバッグログを出力する
func Debug(key string, format string, args ...any) {
	Default.Debug(key, format, args...)
}

// Info は情報ログを出力する
func Info(key string, format string, args ...any) {
	Default.Info(key, format, args...)
}

// Warn は警告ログを出力する
func Warn(key string, format string, args ...any) {
	Default.Warn(key, format, args...)
}

// Error はエラーログを出力する
func Error(key string, format string, args ...any) {
	Default.Error(key, format, args...)
}
