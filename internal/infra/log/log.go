package log

import (
	"io"
	"os"

	"arbscan/internal/config"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Logger = zerolog.Logger

// NewLogger writes to stderr, and additionally to a rotated file when
// logging.file is set.
func NewLogger(cfg config.Config) Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	var out io.Writer = os.Stderr
	if cfg.Logging.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if cfg.Logging.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename: cfg.Logging.File,
			MaxSize:  cfg.Logging.MaxSizeMB,
			MaxAge:   cfg.Logging.MaxAgeDays,
			Compress: true,
		})
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	return zerolog.New(out).With().Timestamp().Logger()
}
