// Package logger 统一配置 logrus：控制台 + lumberjack 滚动文件。
// 各组件使用 Component(name) 取得带 component 字段的 Entry。
package logger

import (
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config 日志配置
type Config struct {
	Level string `yaml:"level" json:"level"`
	// OutputFile 为空时只写控制台
	OutputFile string `yaml:"output_file" json:"output_file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"` // 天
	Compress   bool   `yaml:"compress" json:"compress"`
	JSON       bool   `yaml:"json" json:"json"`
	// NoConsole TUI 模式下不写 stdout
	NoConsole bool `yaml:"no_console" json:"no_console"`
}

var (
	mu      sync.Mutex
	rolling *lumberjack.Logger
	logFile string
)

// Init 配置全局 logrus。可重复调用，旧的滚动文件会被关闭。
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}

	var out []io.Writer
	if !cfg.NoConsole {
		out = append(out, os.Stdout)
	}
	var next *lumberjack.Logger
	if cfg.OutputFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.OutputFile), 0o755); err != nil {
			return err
		}
		next = &lumberjack.Logger{
			Filename:   cfg.OutputFile,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		out = append(out, next)
	}

	std := logrus.StandardLogger()
	switch len(out) {
	case 0:
		std.SetOutput(io.Discard)
	case 1:
		std.SetOutput(out[0])
	default:
		std.SetOutput(io.MultiWriter(out...))
	}
	std.SetLevel(level)
	if cfg.JSON {
		std.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02T15:04:05.000Z07:00"})
	} else {
		std.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "06-01-02 15:04:05"})
	}

	if rolling != nil {
		_ = rolling.Close()
	}
	rolling, logFile = next, cfg.OutputFile
	if err != nil {
		std.Warnf("未知日志级别 %q，使用 info", cfg.Level)
	}
	return nil
}

// Component 带组件名的日志入口
func Component(name string) *logrus.Entry {
	return logrus.WithField("component", name)
}

func Debugf(format string, args ...any) { logrus.Debugf(format, args...) }
func Info(args ...any)                  { logrus.Info(args...) }
func Infof(format string, args ...any)  { logrus.Infof(format, args...) }
func Warnf(format string, args ...any)  { logrus.Warnf(format, args...) }
func Errorf(format string, args ...any) { logrus.Errorf(format, args...) }

// CurrentFile 当前日志文件路径，没有文件输出时为空
func CurrentFile() string {
	mu.Lock()
	defer mu.Unlock()
	return logFile
}

// MaskSecret 只保留前后少量字符，用于日志中的签名和地址
func MaskSecret(s string) string {
	if len(s) <= 12 {
		return "***"
	}
	return s[:6] + "..." + s[len(s)-4:]
}
