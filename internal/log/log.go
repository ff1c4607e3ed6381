// Package log builds the daemon's structured logger.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger on stderr tagged with svc=appID. An empty level
// means info.
func New(appID, level string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	return NewWithWriter(os.Stderr, appID, level)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, appID, level string) (*zap.SugaredLogger, zap.AtomicLevel, error) {
	atom := zap.NewAtomicLevelAt(zap.InfoLevel)
	if level != "" {
		if err := atom.UnmarshalText([]byte(strings.ToLower(level))); err != nil {
			return nil, atom, fmt.Errorf("log level %q: %w", level, err)
		}
	}

	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	logger := zap.New(zapcore.NewCore(
		zapcore.NewJSONEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		atom,
	))
	return logger.Sugar().With("svc", appID), atom, nil
}
