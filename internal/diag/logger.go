package diag

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogOptions 配置结构化日志器。
type LogOptions struct {
	Level   string    // trace|debug|info|warn|error；默认 info
	Format  string    // "json"（默认）| "console"
	CorrID  string    // 运行相关 ID，贯穿所有事件
	Writer  io.Writer // 默认 stderr
}

// NewLogger 构造 zerolog 根日志器：单行 JSON 输出、UTC 时间戳、corr_id 静态字段。
func NewLogger(opt LogOptions) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if opt.Format == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	ctx := zerolog.New(w).Level(parseLevel(opt.Level)).With().Timestamp()
	if opt.CorrID != "" {
		ctx = ctx.Str("corr_id", opt.CorrID)
	}
	return ctx.Logger()
}

func parseLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
