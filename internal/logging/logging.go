// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-tavern-rpg/backend/internal/config"
)

// Setup 根据配置设置全局日志级别与输出格式。
func Setup(cfg config.LogConfig) {
	SetupWriter(cfg, os.Stderr)
}

// SetupWriter is Setup with an explicit output.
func SetupWriter(cfg config.LogConfig, out io.Writer) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(out)
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Timestamp().Logger()

	if err != nil {
		log.Warn().Str("level", cfg.Level).Msg("LOG_LEVEL not valid, using 'info'")
	}
}
