package logging

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// LoggerPatternConfig is an instance of a level specification for a given logger.
type LoggerPatternConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

const (
	// e.g. "foo".
	validLoggerSectionName = `[a-zA-Z0-9]+([_-]*[a-zA-Z0-9]+)*`
	// e.g. "foo" or "*".
	validLoggerSectionNameWithWildcard = `(` + validLoggerSectionName + `|\*)`
	// e.g. "foo.*.foo".
	validLoggerSectionsWithWildcard = validLoggerSectionNameWithWildcard + `(\.` + validLoggerSectionNameWithWildcard + `)*`
	// Restricts above regex to be the entire pattern.
	validLoggerName = `^` + validLoggerSectionsWithWildcard + `$`
)

var loggerPatternRegexp = regexp.MustCompile(validLoggerName)

// ValidatePattern reports whether the pattern is a dotted logger name, optionally with `*`
// sections.
func ValidatePattern(pattern string) bool {
	return loggerPatternRegexp.MatchString(pattern)
}

func buildRegexFromPattern(pattern string) string {
	var matcher strings.Builder
	matcher.WriteRune('^')
	for _, ch := range pattern {
		switch ch {
		case '*':
			matcher.WriteString(`.*`)
		case '.':
			matcher.WriteString(`\.`)
		default:
			matcher.WriteRune(ch)
		}
	}
	matcher.WriteRune('$')
	return matcher.String()
}

// Registry tracks named subloggers so their levels can be changed from configuration.
type Registry struct {
	mu        sync.RWMutex
	loggers   map[string]Logger
	logConfig []LoggerPatternConfig
}

var globalRegistry = newRegistry()

func newRegistry() *Registry {
	return &Registry{
		loggers: make(map[string]Logger),
	}
}

func (lr *Registry) loggerNamed(name string) (logger Logger, ok bool) {
	lr.mu.RLock()
	defer lr.mu.RUnlock()
	logger, ok = lr.loggers[name]
	return
}

// getOrRegister returns an existing logger for `name`, or registers `logger` and configures it
// from the current patterns. Concurrent callers all get the winning logger.
func (lr *Registry) getOrRegister(name string, logger Logger) Logger {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	if existingLogger, ok := lr.loggers[name]; ok {
		return existingLogger
	}

	lr.loggers[name] = logger
	for _, lpc := range lr.logConfig {
		if !ValidatePattern(lpc.Pattern) {
			continue
		}
		if regexp.MustCompile(buildRegexFromPattern(lpc.Pattern)).MatchString(name) {
			if level, err := LevelFromString(lpc.Level); err == nil {
				logger.SetLevel(level)
			}
		}
	}
	return logger
}

// Update stores the pattern config and recomputes every registered logger's level. Later patterns
// win over earlier ones. Loggers matching no pattern go back to INFO.
func (lr *Registry) Update(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	lr.mu.Lock()
	defer lr.mu.Unlock()
	lr.logConfig = logConfig

	appliedConfigs := make(map[string]Level)
	for _, lpc := range logConfig {
		if !ValidatePattern(lpc.Pattern) {
			errorLogger.Warnw("failed to validate a pattern", "pattern", lpc.Pattern)
			continue
		}

		r, err := regexp.Compile(buildRegexFromPattern(lpc.Pattern))
		if err != nil {
			return err
		}

		level, err := LevelFromString(lpc.Level)
		if err != nil {
			return err
		}
		for name := range lr.loggers {
			if r.MatchString(name) {
				appliedConfigs[name] = level
			}
		}
	}

	for name, logger := range lr.loggers {
		level, ok := appliedConfigs[name]
		if !ok {
			level = INFO
		}
		logger.SetLevel(level)
	}

	return nil
}

// UpdateLoggerLevels applies pattern configs to all subloggers created so far and to those
// created later.
func UpdateLoggerLevels(logConfig []LoggerPatternConfig, errorLogger Logger) error {
	if err := globalRegistry.Update(logConfig, errorLogger); err != nil {
		return fmt.Errorf("applying log patterns: %w", err)
	}
	return nil
}
