// Logging for jify.
//
// DEBUG, if non-empty, enables a labelled development logger writing to
// stderr. Absent, every logger returned by Logger is a no-op sink, so the
// cost of instrumentation calls on the hot path is a single atomic load.
package jify

import (
	"os"
	"sync"

	"go.uber.org/zap"
)

var (
	baseOnce   sync.Once
	baseLogger *zap.Logger
)

func base() *zap.Logger {
	baseOnce.Do(func() {
		if os.Getenv("DEBUG") == "" {
			baseLogger = zap.NewNop()
			return
		}
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{"stderr"}
		l, err := cfg.Build()
		if err != nil {
			baseLogger = zap.NewNop()
			return
		}
		baseLogger = l
	})
	return baseLogger
}

// Logger returns a sugared logger named label. Each call site (store,
// index, database) gets its own label so DEBUG output can be filtered by
// component without touching call sites.
func Logger(label string) *zap.SugaredLogger {
	return base().Named(label).Sugar()
}
