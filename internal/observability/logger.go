package observability

import (
	"os"

	"github.com/rs/zerolog"
)

// Logger is a thin wrapper over zerolog, constructed once in bootstrap
// and passed into components explicitly.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(level string) *Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		parsed = zerolog.InfoLevel
	}

	zl := zerolog.New(os.Stdout).Level(parsed).With().Timestamp().Logger()
	return &Logger{zl: zl}
}

func (l *Logger) Debug(message string, fields map[string]any) {
	l.zl.Debug().Fields(fields).Msg(message)
}

func (l *Logger) Info(message string, fields map[string]any) {
	l.zl.Info().Fields(fields).Msg(message)
}

func (l *Logger) Warn(message string, fields map[string]any) {
	l.zl.Warn().Fields(fields).Msg(message)
}

func (l *Logger) Error(message string, fields map[string]any) {
	l.zl.Error().Fields(fields).Msg(message)
}
