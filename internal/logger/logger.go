// Package logger wraps zap's SugaredLogger behind the small keys-and-values
// surface the rest of the module logs through. Subject identifiers are
// hashed before they reach a sink unless TWIN_LOG_PLAIN_IDS is set, since
// log pipelines routinely outlive the database the ids point into.
package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type Logger struct {
	sugar *zap.SugaredLogger
}

// New builds a logger. mode "prod"/"production" selects zap's production
// config (JSON); anything else gets the development console encoder.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	switch strings.ToLower(mode) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	zl, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &Logger{sugar: zl.Sugar()}, nil
}

// NewNop returns a logger that discards everything; used by tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Sync flushes buffered entries.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}

func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.sugar.Debugw(msg, sanitize(keysAndValues)...)
}
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.sugar.Infow(msg, sanitize(keysAndValues)...)
}
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.sugar.Warnw(msg, sanitize(keysAndValues)...)
}
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.sugar.Errorw(msg, sanitize(keysAndValues)...)
}
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.sugar.Fatalw(msg, sanitize(keysAndValues)...)
}

// With returns a child logger with the given fields attached.
func (l *Logger) With(keysAndValues ...interface{}) *Logger {
	return &Logger{sugar: l.sugar.With(sanitize(keysAndValues)...)}
}

var (
	hashOnce sync.Once
	hashIDs  bool
)

func hashingOn() bool {
	hashOnce.Do(func() {
		hashIDs = os.Getenv("TWIN_LOG_PLAIN_IDS") == ""
	})
	return hashIDs
}

// sanitize hashes values under subject-id keys.
func sanitize(kv []interface{}) []interface{} {
	if len(kv) == 0 || !hashingOn() {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key, ok := out[i].(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(key), "subject") {
			if s, ok := out[i+1].(string); ok {
				out[i+1] = hashID(s)
			}
		}
	}
	return out
}

func hashID(s string) string {
	if s == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(s))
	return "subj:" + hex.EncodeToString(sum[:])[:12]
}
