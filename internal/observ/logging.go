package observ

import (
	"sync"

	"go.uber.org/zap"
)

var (
	once   sync.Once
	logger *zap.SugaredLogger
)

func core() *zap.SugaredLogger {
	once.Do(func() {
		l, err := zap.NewProduction(zap.AddCallerSkip(1))
		if err != nil {
			l = zap.NewNop()
		}
		logger = l.Sugar()
	})
	return logger
}

// Log emits a structured event at info level. Kept as the single call
// convention used throughout the codebase; kv is flattened into the
// log record as key/value pairs.
func Log(event string, kv map[string]any) {
	core().Infow(event, flatten(kv)...)
}

// Warn emits a structured event at warn level.
func Warn(event string, kv map[string]any) {
	core().Warnw(event, flatten(kv)...)
}

// Error emits a structured event at error level.
func Error(event string, kv map[string]any) {
	core().Errorw(event, flatten(kv)...)
}

func flatten(kv map[string]any) []any {
	out := make([]any, 0, len(kv)*2)
	for k, v := range kv {
		out = append(out, k, v)
	}
	return out
}

// Sync flushes buffered log entries. Call on process shutdown.
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
