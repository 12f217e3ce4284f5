package logging

import (
	"context"
	"io"
	"log/slog"
	"path"
	"strings"
	"sync"

	gometrics "github.com/rcrowley/go-metrics"
)

type Level int

const (
	LevelAll Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNone
)

var logLevelNames = []string{"ALL", "TRACE", "DEBUG", "INFO", "WARN", "ERROR", "NONE"}

func (lvl Level) String() string {
	if lvl >= 0 && int(lvl) < len(logLevelNames) {
		return logLevelNames[lvl]
	}
	return "UNKNOWN"
}

func (lvl *Level) UnmarshalText(b []byte) error {
	*lvl = ParseLogLevel(string(b))
	return nil
}

// ParseLogLevel returns LevelAll for names it does not know.
func ParseLogLevel(name string) Level {
	lvl, _ := ParseLogLevelP(name)
	return lvl
}

func ParseLogLevelP(name string) (Level, bool) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "TRACE":
		return LevelTrace, true
	case "DEBUG":
		return LevelDebug, true
	case "INFO":
		return LevelInfo, true
	case "WARN", "WARNING":
		return LevelWarn, true
	case "ERROR":
		return LevelError, true
	case "NONE", "OFF":
		return LevelNone, true
	default:
		return LevelAll, false
	}
}

type Log interface {
	io.Writer

	TraceEnabled() bool
	Trace(...any)
	Tracef(format string, args ...any)
	DebugEnabled() bool
	Debug(...any)
	Debugf(format string, args ...any)
	InfoEnabled() bool
	Info(...any)
	Infof(format string, args ...any)
	WarnEnabled() bool
	Warn(...any)
	Warnf(format string, args ...any)
	ErrorEnabled() bool
	Error(...any)
	Errorf(format string, args ...any)

	LogEnabled(level Level) bool
	Logf(level Level, format string, args ...any)

	SetLevel(level Level)
	Level() Level
	Name() string
}

type levelLogger struct {
	name        string
	level       Level
	underlying  []*logWriter
	prefixWidth int
	// slog compat
	attrs  []slog.Attr
	filter func(string, context.Context, slog.Record) bool
}

var _ Log = (*levelLogger)(nil)

func (l *levelLogger) Name() string              { return l.name }
func (l *levelLogger) SetLevel(level Level)      { l.level = level }
func (l *levelLogger) Level() Level              { return l.level }
func (l *levelLogger) LogEnabled(lvl Level) bool { return l.level <= lvl }

func (l *levelLogger) TraceEnabled() bool { return l.level <= LevelTrace }
func (l *levelLogger) DebugEnabled() bool { return l.level <= LevelDebug }
func (l *levelLogger) InfoEnabled() bool  { return l.level <= LevelInfo }
func (l *levelLogger) WarnEnabled() bool  { return l.level <= LevelWarn }
func (l *levelLogger) ErrorEnabled() bool { return l.level <= LevelError }

func (l *levelLogger) Trace(m ...any) { l._log(LevelTrace, m) }
func (l *levelLogger) Debug(m ...any) { l._log(LevelDebug, m) }
func (l *levelLogger) Info(m ...any)  { l._log(LevelInfo, m) }
func (l *levelLogger) Warn(m ...any)  { l._log(LevelWarn, m) }
func (l *levelLogger) Error(m ...any) { l._log(LevelError, m) }

func (l *levelLogger) Tracef(format string, args ...any)          { l._logf(LevelTrace, format, args) }
func (l *levelLogger) Debugf(format string, args ...any)          { l._logf(LevelDebug, format, args) }
func (l *levelLogger) Infof(format string, args ...any)           { l._logf(LevelInfo, format, args) }
func (l *levelLogger) Warnf(format string, args ...any)           { l._logf(LevelWarn, format, args) }
func (l *levelLogger) Errorf(format string, args ...any)          { l._logf(LevelError, format, args) }
func (l *levelLogger) Logf(lvl Level, format string, args ...any) { l._logf(lvl, format, args) }

var (
	warnCounter  gometrics.Counter
	errorCounter gometrics.Counter
	totalCounter gometrics.Counter
)

func init() {
	totalCounter = gometrics.NewRegisteredCounter("log.total", gometrics.DefaultRegistry)
	warnCounter = gometrics.NewRegisteredCounter("log.warns", gometrics.DefaultRegistry)
	errorCounter = gometrics.NewRegisteredCounter("log.errors", gometrics.DefaultRegistry)
}

var (
	levelMutex         sync.RWMutex
	levelConfig        = make(map[string]Level)
	levelDefault       = LevelInfo
	prefixWidthDefault = 18
)

func SetDefaultLevel(lvl Level) {
	levelMutex.Lock()
	levelDefault = lvl
	levelMutex.Unlock()
}

func DefaultLevel() Level {
	levelMutex.RLock()
	defer levelMutex.RUnlock()
	return levelDefault
}

func SetDefaultPrefixWidth(width int) {
	levelMutex.Lock()
	defer levelMutex.Unlock()
	if width > 0 {
		prefixWidthDefault = width
	} else {
		prefixWidthDefault = 18
	}
}

// SetLevel assigns a level to every logger whose name matches pattern,
// e.g. "viewer" or "mapview/*".
func SetLevel(pattern string, lvl Level) {
	levelMutex.Lock()
	levelConfig[pattern] = lvl
	levelMutex.Unlock()
}

// GetLevel returns the level of the longest pattern matching name.
func GetLevel(name string) Level {
	levelMutex.RLock()
	defer levelMutex.RUnlock()

	var matchedPattern string
	var matchedLevel Level
	for pattern, level := range levelConfig {
		if match, err := path.Match(pattern, name); match && err == nil {
			if len(matchedPattern) < len(pattern) {
				matchedPattern = pattern
				matchedLevel = level
			}
		}
	}
	if matchedPattern != "" {
		return matchedLevel
	}
	return levelDefault
}
