// Package logger provides structured logging for Sombra's storage core.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Logger wraps zerolog with Sombra-specific component scoping.
type Logger struct {
	zlog zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Pretty     bool   // pretty-print for development
	Output     io.Writer
	WithCaller bool
}

// NewLogger creates a new structured logger.
func NewLogger(cfg Config) *Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}
	}

	zlog := zerolog.New(output).
		With().
		Timestamp().
		Str("service", "sombra").
		Logger()

	if cfg.WithCaller {
		zlog = zlog.With().Caller().Logger()
	}

	return &Logger{zlog: zlog}
}

// GetZerolog returns the underlying zerolog logger.
func (l *Logger) GetZerolog() *zerolog.Logger {
	return &l.zlog
}

// Info logs an info message.
func (l *Logger) Info(msg string) *zerolog.Event {
	return l.zlog.Info().Str("msg", msg)
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) *zerolog.Event {
	return l.zlog.Debug().Str("msg", msg)
}

// Warn logs a warning message.
func (l *Logger) Warn(msg string) *zerolog.Event {
	return l.zlog.Warn().Str("msg", msg)
}

// Error logs an error message.
func (l *Logger) Error(msg string) *zerolog.Event {
	return l.zlog.Error().Str("msg", msg)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(msg string) *zerolog.Event {
	return l.zlog.Fatal().Str("msg", msg)
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	ctx := l.zlog.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{zlog: ctx.Logger()}
}

// PagerLogger scopes a logger to the pager component (§4.1): cache,
// commit, checkpoint.
func (l *Logger) PagerLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "pager").Logger()}
}

// WalLogger scopes a logger to the write-ahead log component (§4.2):
// group commit, fsync, recovery.
func (l *Logger) WalLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "wal").Logger()}
}

// MvccLogger scopes a logger to the MVCC manager (§4.7): version chains,
// visibility, GC.
func (l *Logger) MvccLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "mvcc").Logger()}
}

// VacuumLogger scopes a logger to the background vacuum worker (§4.8).
func (l *Logger) VacuumLogger() *Logger {
	return &Logger{zlog: l.zlog.With().Str("component", "vacuum").Logger()}
}

// LogPagerOperation logs a suspension point named in §5: commit fsync,
// checkpoint fsync, page allocation extending the file, cache eviction I/O.
func (l *Logger) LogPagerOperation(operation string, duration time.Duration, pageCount int, err error) {
	event := l.zlog.Debug().
		Str("component", "pager").
		Str("operation", operation).
		Dur("duration_ms", duration).
		Int("page_count", pageCount)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "pager").
			Str("operation", operation).
			Dur("duration_ms", duration).
			Err(err)
	}

	event.Msg("pager operation completed")
}

// LogWalCommit logs a group-commit batch: its LSN, frame count, and
// duration, or the error when the batch failed (§4.2).
func (l *Logger) LogWalCommit(lsn uint64, frameCount int, duration time.Duration, err error) {
	event := l.zlog.Debug().
		Str("component", "wal").
		Uint64("lsn", lsn).
		Int("frame_count", frameCount).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "wal").
			Uint64("lsn", lsn).
			Err(err)
	}

	event.Msg("wal commit batch")
}

// LogRecovery logs a WAL replay pass at open (§4.2 recovery).
func (l *Logger) LogRecovery(framesReplayed int, highestLSN uint64, truncated bool) {
	l.zlog.Info().
		Str("component", "wal").
		Str("event", "recovery").
		Int("frames_replayed", framesReplayed).
		Uint64("highest_lsn", highestLSN).
		Bool("tail_truncated", truncated).
		Msg("wal recovery completed")
}

// LogCheckpoint logs a checkpoint pass (§4.1).
func (l *Logger) LogCheckpoint(mode string, pagesFlushed int, duration time.Duration, err error) {
	event := l.zlog.Info().
		Str("component", "pager").
		Str("event", "checkpoint").
		Str("mode", mode).
		Int("pages_flushed", pagesFlushed).
		Dur("duration_ms", duration)

	if err != nil {
		event = l.zlog.Error().
			Str("component", "pager").
			Str("event", "checkpoint").
			Err(err)
	}

	event.Msg("checkpoint completed")
}

// LogVacuumPass logs one vacuum worker pass (§4.8).
func (l *Logger) LogVacuumPass(trigger string, pagesReclaimed int, versionsGCed int, duration time.Duration) {
	l.zlog.Info().
		Str("component", "vacuum").
		Str("trigger", trigger).
		Int("pages_reclaimed", pagesReclaimed).
		Int("versions_gc", versionsGCed).
		Dur("duration_ms", duration).
		Msg("vacuum pass completed")
}

// LogCorruption logs a non-recoverable corruption finding against a page or
// LSN (§7 Corruption kind).
func (l *Logger) LogCorruption(op string, pageID uint64, lsn uint64, err error) {
	l.zlog.Error().
		Str("component", "pager").
		Str("op", op).
		Uint64("page_id", pageID).
		Uint64("lsn", lsn).
		Err(err).
		Msg("corruption detected")
}

// Global logger instance.
var globalLogger *Logger

// InitGlobalLogger initializes the global logger.
func InitGlobalLogger(cfg Config) {
	globalLogger = NewLogger(cfg)
	log.Logger = *globalLogger.GetZerolog()
}

// GetGlobalLogger returns the global logger instance.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		InitGlobalLogger(Config{
			Level:  "info",
			Pretty: true,
		})
	}
	return globalLogger
}
