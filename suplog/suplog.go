// Package suplog owns the process-wide logger for suprpc.
//
// Components grab the shared sugared logger via S() instead of wiring a
// logger through every constructor. Init may be called once at startup to
// switch to file output or change the level; without Init, logs go to
// stderr at info level.
package suplog

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger *zap.Logger
)

func init() {
	logger = newConsole(zapcore.InfoLevel)
}

func newConsole(level zapcore.Level) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	l, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return l
}

// Init configures the global logger. When toFile is set, output goes to
// path with the production JSON encoder; otherwise to stderr with the
// console encoder.
func Init(toFile bool, path string, level zapcore.Level) error {
	var l *zap.Logger
	if toFile {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		cfg.OutputPaths = []string{path}
		var err error
		l, err = cfg.Build()
		if err != nil {
			return err
		}
	} else {
		l = newConsole(level)
	}
	mu.Lock()
	old := logger
	logger = l
	mu.Unlock()
	_ = old.Sync()
	return nil
}

// L returns the global logger.
func L() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// S returns the global sugared logger.
func S() *zap.SugaredLogger {
	mu.RLock()
	defer mu.RUnlock()
	return logger.Sugar()
}
