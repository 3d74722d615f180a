package logging

import (
	"fmt"
	"os"
	"runtime"
	"slices"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// impl fans every entry out to its appenders. Entries logged through the zap views returned by
// AsZap take the same path via appenderCore, so level filtering and formatting are shared.
type impl struct {
	name  string
	level AtomicLevel
	inUTC bool

	appenders []Appender
}

func newImpl(name string, level Level, inUTC bool) *impl {
	return &impl{name: name, level: NewAtomicLevelAt(level), inUTC: inUTC}
}

// callerSkip is the number of frames between runtime.Caller in newEntry and the user's call site:
// newEntry, log{,f,w} and the exported level method.
const callerSkip = 3

func (imp *impl) newEntry(level Level, msg string) zapcore.Entry {
	entry := zapcore.Entry{
		Level:      level.AsZap(),
		Time:       time.Now(),
		LoggerName: imp.name,
		Message:    msg,
	}
	if pc, file, line, ok := runtime.Caller(callerSkip); ok {
		entry.Caller = zapcore.NewEntryCaller(pc, file, line, true)
		if fn := runtime.FuncForPC(pc); fn != nil {
			entry.Caller.Function = fn.Name()
		}
	}
	return entry
}

func (imp *impl) enabled(level Level) bool {
	return GlobalLogLevel.Level() == zapcore.DebugLevel || level >= imp.level.Get()
}

func (imp *impl) emit(entry zapcore.Entry, fields []zapcore.Field) {
	if imp.inUTC {
		entry.Time = entry.Time.UTC()
	}
	for _, appender := range imp.appenders {
		if err := appender.Write(entry, fields); err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
	}
}

func (imp *impl) log(level Level, args []interface{}) {
	if imp.enabled(level) {
		imp.emit(imp.newEntry(level, fmt.Sprint(args...)), nil)
	}
}

func (imp *impl) logf(level Level, template string, args []interface{}) {
	if imp.enabled(level) {
		imp.emit(imp.newEntry(level, fmt.Sprintf(template, args...)), nil)
	}
}

func (imp *impl) logw(level Level, msg string, keysAndValues []interface{}) {
	if imp.enabled(level) {
		imp.emit(imp.newEntry(level, msg), pairsToFields(keysAndValues))
	}
}

// pairsToFields turns alternating keys and values into fields. A trailing key without a value is
// kept with an error in its place.
func pairsToFields(keysAndValues []interface{}) []zapcore.Field {
	fields := make([]zapcore.Field, 0, (len(keysAndValues)+1)/2)
	for i := 0; i < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			key = fmt.Sprint(keysAndValues[i])
		}
		if i+1 == len(keysAndValues) {
			fields = append(fields, zap.String(key, "unpaired log key"))
			break
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}

func (imp *impl) AddAppender(appender Appender) {
	imp.appenders = append(imp.appenders, appender)
}

func (imp *impl) SetLevel(level Level) {
	imp.level.Set(level)
}

func (imp *impl) GetLevel() Level {
	return imp.level.Get()
}

func (imp *impl) Level() zapcore.Level {
	return imp.GetLevel().AsZap()
}

// Sublogger creates a child logger sharing the appenders. The child is registered so log pattern
// configs can later adjust its level independently.
func (imp *impl) Sublogger(subname string) Logger {
	name := subname
	if imp.name != "" {
		name = imp.name + "." + subname
	}
	return globalRegistry.getOrRegister(name, &impl{
		name:      name,
		level:     NewAtomicLevelAt(imp.level.Get()),
		inUTC:     imp.inUTC,
		appenders: imp.appenders,
	})
}

func (imp *impl) Sync() error {
	var err error
	for _, appender := range imp.appenders {
		err = multierr.Append(err, appender.Sync())
	}
	return err
}

// AsZap returns a zap view of the logger that writes through the same appenders.
func (imp *impl) AsZap() *zap.SugaredLogger {
	return zap.New(&appenderCore{imp: imp}, zap.AddCaller()).Sugar()
}

func (imp *impl) Desugar() *zap.Logger {
	return imp.AsZap().Desugar()
}

func (imp *impl) Named(name string) *zap.SugaredLogger {
	return imp.AsZap().Named(name)
}

func (imp *impl) With(args ...interface{}) *zap.SugaredLogger {
	return imp.AsZap().With(args...)
}

func (imp *impl) WithOptions(opts ...zap.Option) *zap.SugaredLogger {
	return imp.AsZap().WithOptions(opts...)
}

func (imp *impl) Debug(args ...interface{})                   { imp.log(DEBUG, args) }
func (imp *impl) Debugf(template string, args ...interface{}) { imp.logf(DEBUG, template, args) }
func (imp *impl) Debugw(msg string, kvs ...interface{})       { imp.logw(DEBUG, msg, kvs) }
func (imp *impl) Info(args ...interface{})                    { imp.log(INFO, args) }
func (imp *impl) Infof(template string, args ...interface{})  { imp.logf(INFO, template, args) }
func (imp *impl) Infow(msg string, kvs ...interface{})        { imp.logw(INFO, msg, kvs) }
func (imp *impl) Warn(args ...interface{})                    { imp.log(WARN, args) }
func (imp *impl) Warnf(template string, args ...interface{})  { imp.logf(WARN, template, args) }
func (imp *impl) Warnw(msg string, kvs ...interface{})        { imp.logw(WARN, msg, kvs) }
func (imp *impl) Error(args ...interface{})                   { imp.log(ERROR, args) }
func (imp *impl) Errorf(template string, args ...interface{}) { imp.logf(ERROR, template, args) }
func (imp *impl) Errorw(msg string, kvs ...interface{})       { imp.logw(ERROR, msg, kvs) }

// Fatal logs at error level regardless of the configured level, then exits.
func (imp *impl) Fatal(args ...interface{}) {
	imp.emit(imp.newEntry(ERROR, fmt.Sprint(args...)), nil)
	os.Exit(1)
}

// Fatalf is Fatal with a format string.
func (imp *impl) Fatalf(template string, args ...interface{}) {
	imp.emit(imp.newEntry(ERROR, fmt.Sprintf(template, args...)), nil)
	os.Exit(1)
}

// Fatalw is Fatal with key value pairs.
func (imp *impl) Fatalw(msg string, keysAndValues ...interface{}) {
	imp.emit(imp.newEntry(ERROR, msg), pairsToFields(keysAndValues))
	os.Exit(1)
}

// appenderCore adapts an impl to a zapcore.Core.
type appenderCore struct {
	imp    *impl
	fields []zapcore.Field
}

func (c *appenderCore) Enabled(level zapcore.Level) bool {
	return c.imp.enabled(levelFromZap(level))
}

func (c *appenderCore) With(fields []zapcore.Field) zapcore.Core {
	return &appenderCore{imp: c.imp, fields: append(slices.Clip(c.fields), fields...)}
}

func (c *appenderCore) Check(entry zapcore.Entry, checked *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(entry.Level) {
		return checked.AddCore(entry, c)
	}
	return checked
}

func (c *appenderCore) Write(entry zapcore.Entry, fields []zapcore.Field) error {
	if entry.LoggerName == "" {
		entry.LoggerName = c.imp.name
	} else if c.imp.name != "" {
		entry.LoggerName = c.imp.name + "." + entry.LoggerName
	}
	c.imp.emit(entry, append(slices.Clip(c.fields), fields...))
	return nil
}

func (c *appenderCore) Sync() error {
	return c.imp.Sync()
}
