// Package logging provides the named, colorized loggers used throughout
// the server. Call sites follow the teacher's logger.New(name, color,
// writer) convention: every module gets its own tagged logger instead of
// a single global one.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New builds a *zap.SugaredLogger whose console output is prefixed with
// "[name]" in the given ANSI color. If dir is non-empty, output is
// duplicated (uncolored) to dir/mazewar.log with lumberjack rotation.
func New(name, color, dir string, level zapcore.Level) (*zap.SugaredLogger, error) {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}

	consoleEncoder := zapcore.NewConsoleEncoder(encCfg)
	cores := []zapcore.Core{
		zapcore.NewCore(consoleEncoder, zapcore.AddSync(coloredWriter(os.Stdout, name, color)), level),
	}

	if dir != "" {
		lj := &lumberjack.Logger{
			Filename:   fmt.Sprintf("%s/mazewar.log", dir),
			MaxSize:    10, // MB
			MaxBackups: 3,
			MaxAge:     7, // days
			Compress:   false,
		}
		fileEncoder := zapcore.NewJSONEncoder(encCfg)
		cores = append(cores, zapcore.NewCore(fileEncoder, zapcore.AddSync(lj), level))
	}

	core := zapcore.NewTee(cores...)
	logger := zap.New(core, zap.AddCaller())
	return logger.Sugar().Named(name), nil
}

// coloredWriter prefixes every write with "[name]" rendered in color,
// mirroring the teacher's logger.New(name, color, out) call sites.
type namedWriter struct {
	w     io.Writer
	name  string
	color string
}

func coloredWriter(w io.Writer, name, color string) io.Writer {
	return &namedWriter{w: w, name: name, color: color}
}

func (nw *namedWriter) Write(p []byte) (int, error) {
	prefix := fmt.Sprintf("%s[%s]%s ", nw.color, nw.name, "\033[0m")
	if _, err := nw.w.Write([]byte(prefix)); err != nil {
		return 0, err
	}
	return nw.w.Write(p)
}

// ParseLevel converts a config string ("debug", "info", "warn", "error")
// into a zapcore.Level, defaulting to Info on anything unrecognized.
func ParseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}
