package obs

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// SetupLogger builds a production zap logger tagged with the service name
// and installs it as the global logger. It falls back to a no-op logger.
func SetupLogger(service, level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if level != "" {
		lvl, err := zapcore.ParseLevel(level)
		if err == nil {
			cfg.Level = zap.NewAtomicLevelAt(lvl)
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		fmt.Printf("logger setup failed, logging disabled: %v\n", err)
		logger = zap.NewNop()
	}

	logger = logger.With(zap.String("service", service))
	zap.ReplaceGlobals(logger)
	return logger
}
