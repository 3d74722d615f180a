package config

import (
	"sync"

	"go.uber.org/zap/zapcore"

	"go.viam.com/ackermann/logging"
)

// debugSources tracks the two places debug logging can be requested from. Debug output is on
// while either asks for it.
type debugSources struct {
	mu         sync.Mutex
	logger     logging.Logger
	cmdLine    bool
	configFile bool
}

var debugFlags debugSources

func (d *debugSources) apply() {
	level := zapcore.InfoLevel
	if d.cmdLine || d.configFile {
		level = zapcore.DebugLevel
	}
	if logging.GlobalLogLevel.Level() == level {
		return
	}
	logging.GlobalLogLevel.SetLevel(level)
	if d.logger != nil {
		d.logger.Infow("log level changed", "level", level)
	}
}

// InitLoggingSettings records the command line debug flag and sets the global level from it.
func InitLoggingSettings(logger logging.Logger, cmdLineDebug bool) {
	debugFlags.mu.Lock()
	defer debugFlags.mu.Unlock()
	debugFlags.logger = logger
	debugFlags.cmdLine = cmdLineDebug
	debugFlags.configFile = false
	debugFlags.apply()
}

// UpdateFileConfigDebug records the debug flag of a freshly read config file.
func UpdateFileConfigDebug(fileDebug bool) {
	debugFlags.mu.Lock()
	defer debugFlags.mu.Unlock()
	debugFlags.configFile = fileDebug
	debugFlags.apply()
}

// ApplyLogConfig applies the debug flag and per-logger levels of cfg.
func ApplyLogConfig(cfg *Config, logger logging.Logger) error {
	UpdateFileConfigDebug(cfg.Debug)
	return logging.UpdateLoggerLevels(cfg.LogConfig, logger)
}
