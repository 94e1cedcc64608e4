// Package logger builds the structured loggers used across the store,
// ingestion pipeline, and command-line front-ends.
package logger

import (
	"io"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LevelEnvVar is the environment variable New checks for an override of
// the default info level, following config.go's H5MOBAKU_ prefix
// convention (e.g. H5MOBAKU_LOG_LEVEL=debug). Accepted values are whatever
// zapcore.Level.UnmarshalText accepts: debug, info, warn, error, dpanic,
// panic, fatal.
const LevelEnvVar = "LOG_LEVEL"

// New returns a root zap.Logger that writes human-readable,
// RFC3339-timestamped lines to w at the level named by H5MOBAKU_LOG_LEVEL,
// defaulting to info if that variable is unset or unparsable. Callers
// should take a Named child off the root rather than passing the root
// itself around, so that log lines can be attributed to the subsystem that
// emitted them.
func New(w io.Writer) *zap.Logger {
	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = func(ts time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(ts.UTC().Format(time.RFC3339))
	}
	config.EncodeDuration = func(d time.Duration, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(d.String())
	}
	return zap.New(zapcore.NewCore(
		zapcore.NewConsoleEncoder(config),
		zapcore.Lock(zapcore.AddSync(w)),
		levelFromEnv(),
	))
}

// levelFromEnv resolves LevelEnvVar through viper, the same
// BindEnv-then-GetString idiom config.go's BindCacheEnv uses for
// H5MOBAKU_CACHE_SLOTS and H5MOBAKU_CACHE_BYTES.
func levelFromEnv() zapcore.Level {
	viper.SetEnvPrefix("H5MOBAKU")
	viper.BindEnv(LevelEnvVar)

	raw := viper.GetString(LevelEnvVar)
	if raw == "" {
		return zapcore.InfoLevel
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(raw)); err != nil {
		return zapcore.InfoLevel
	}
	return lvl
}

// NewNop returns a logger that discards everything, for tests and library
// callers that have not supplied their own.
func NewNop() *zap.Logger {
	return zap.NewNop()
}
