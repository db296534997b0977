package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dashshot/internal/config"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Init configures the global zerolog logger. Console output always goes to
// stderr: worker processes use stdout as their control channel.
func Init(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	for _, w := range cfg.Writers {
		switch strings.TrimSpace(w) {
		case "console":
			writers = append(writers, zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime})
		case "json":
			writers = append(writers, os.Stderr)
		case "file":
			if cfg.File == "" {
				continue
			}
			_ = os.MkdirAll(filepath.Dir(cfg.File), 0755)
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.File,
				MaxSize:    50,
				MaxBackups: 5,
				MaxAge:     14,
				Compress:   true,
			})
		}
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stderr)
	}

	l := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	log.Logger = l
	zerolog.DefaultContextLogger = &l
	return l
}

// With returns a child of the global logger tagged with a component name.
func With(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
