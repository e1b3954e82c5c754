// Package log provides structured logging with node identity fields.
//
// Two logger variants are available:
//   - Logger: non-sugared zap.Logger for the channel and lifecycle paths
//   - SugaredLogger: printf-style logging for CLI surfaces
//
// Use Logger.Sugar() to obtain a SugaredLogger when needed.
package log

import (
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ostorc/msbuild/types"
)

// Logger provides structured logging with node identity.
// Every entry carries session_id, node_id, mode and pid.
type Logger struct {
	zap    *zap.Logger
	fields []zap.Field
}

// SugaredLogger provides printf-style logging for CLI surfaces.
type SugaredLogger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a logger with node identity.
// Output defaults to os.Stderr; stdout is reserved for command output.
func NewLogger(meta *types.NodeMeta) *Logger {
	return newLoggerWithWriter(meta, os.Stderr)
}

// NewNop returns a logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop()}
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:     "timestamp",
		LevelKey:    "level",
		MessageKey:  "message",
		EncodeTime:  zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel: zapcore.LowercaseLevelEncoder,
	}
}

func newCore(w io.Writer) zapcore.Core {
	return zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderConfig()),
		zapcore.AddSync(w),
		zapcore.DebugLevel,
	)
}

// WithOutput returns a new logger with a different output writer.
func (l *Logger) WithOutput(w io.Writer) *Logger {
	return &Logger{zap: zap.New(newCore(w)).With(l.fields...), fields: l.fields}
}

// WithNodeID returns a logger whose node_id field is id.
// Workers learn their id from the configuration packet after the logger exists.
func (l *Logger) WithNodeID(id int) *Logger {
	f := zap.Int("node_id", id)
	fields := append(append([]zap.Field(nil), l.fields...), f)
	return &Logger{zap: l.zap.With(f), fields: fields}
}

func newLoggerWithWriter(meta *types.NodeMeta, w io.Writer) *Logger {
	contextFields := []zap.Field{
		zap.String("session_id", meta.SessionID),
		zap.String("mode", meta.Mode),
		zap.Int("pid", meta.PID),
	}
	if meta.NodeID > 0 {
		contextFields = append(contextFields, zap.Int("node_id", meta.NodeID))
	}

	return &Logger{zap: zap.New(newCore(w)).With(contextFields...), fields: contextFields}
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, fields map[string]any) {
	l.zap.Debug(message, zap.Any("fields", fields))
}

// Info logs an info message.
func (l *Logger) Info(message string, fields map[string]any) {
	l.zap.Info(message, zap.Any("fields", fields))
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, fields map[string]any) {
	l.zap.Warn(message, zap.Any("fields", fields))
}

// Error logs an error message.
func (l *Logger) Error(message string, fields map[string]any) {
	l.zap.Error(message, zap.Any("fields", fields))
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Sugar returns a SugaredLogger for printf-style logging.
func (l *Logger) Sugar() *SugaredLogger {
	return &SugaredLogger{sugar: l.zap.Sugar()}
}

// Infof logs an info message with printf-style formatting.
func (s *SugaredLogger) Infof(template string, args ...any) {
	s.sugar.Infof(template, args...)
}

// Warnf logs a warning message with printf-style formatting.
func (s *SugaredLogger) Warnf(template string, args ...any) {
	s.sugar.Warnf(template, args...)
}

// Errorf logs an error message with printf-style formatting.
func (s *SugaredLogger) Errorf(template string, args ...any) {
	s.sugar.Errorf(template, args...)
}
