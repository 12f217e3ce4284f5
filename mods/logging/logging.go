package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/robfig/cron/v3"
	"gopkg.in/natefinch/lumberjack.v2"
)

/*
	Log rotation schedule

	"0 30 * * * *"             Every hour on the half hour
	"@hourly"                  Every hour
	"@every 1h30m"             Every hour thirty
	"@midnight"                Every day
*/

type Config struct {
	Console        bool          `json:"console"`
	Filename       string        `json:"filename"`
	Append         bool          `json:"append"`
	RotateSchedule string        `json:"rotateSchedule"`
	MaxSize        int           `json:"maxSize"`
	MaxBackups     int           `json:"maxBackups"`
	MaxAge         int           `json:"maxAge"`
	Compress       bool          `json:"compress"`
	UTC            bool          `json:"utc"`
	PrefixWidth    int           `json:"prefixWidth"`
	DefaultLevel   string        `json:"defaultLevel"`
	Levels         []LevelConfig `json:"levels"`
}

type LevelConfig struct {
	Pattern string `json:"pattern"`
	Level   string `json:"level"`
}

// PresetConfigStdout writes every level to stdout.
var PresetConfigStdout = Config{
	Filename:     "-",
	Append:       true,
	PrefixWidth:  18,
	DefaultLevel: "TRACE",
}

// PresetConfigDiscard drops all output.
var PresetConfigDiscard = Config{
	Filename:     ".",
	PrefixWidth:  18,
	DefaultLevel: "TRACE",
}

type logWriter struct {
	io.Writer
	isTerm bool
}

var (
	writerMutex   sync.RWMutex
	defaultWriter = []*logWriter{{Writer: os.Stdout, isTerm: true}}
	rotateCron    *cron.Cron
	utcTime       bool
)

// Configure replaces the process-wide log output. Loggers obtained
// before the call keep their writers.
func Configure(cfg *Config) error {
	for _, c := range cfg.Levels {
		lvl, ok := ParseLogLevelP(c.Level)
		if !ok {
			return fmt.Errorf("invalid log level %q for %q", c.Level, c.Pattern)
		}
		SetLevel(c.Pattern, lvl)
	}
	SetDefaultPrefixWidth(cfg.PrefixWidth)
	if cfg.DefaultLevel != "" {
		lvl, ok := ParseLogLevelP(cfg.DefaultLevel)
		if !ok {
			return fmt.Errorf("invalid default log level %q", cfg.DefaultLevel)
		}
		SetDefaultLevel(lvl)
	}

	writerMutex.Lock()
	defer writerMutex.Unlock()
	utcTime = cfg.UTC

	switch cfg.Filename {
	case ".":
		defaultWriter = []*logWriter{}
	case "", "-":
		defaultWriter = []*logWriter{{Writer: os.Stdout, isTerm: true}}
	default:
		lj := &lumberjack.Logger{
			Filename:   cfg.Filename,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
			LocalTime:  !cfg.UTC,
		}
		if !cfg.Append {
			lj.Rotate()
		}
		if cfg.RotateSchedule != "" {
			if rotateCron != nil {
				rotateCron.Stop()
			}
			rotateCron = cron.New()
			if _, err := rotateCron.AddFunc(cfg.RotateSchedule, func() { lj.Rotate() }); err != nil {
				return fmt.Errorf("log rotate schedule %q, %w", cfg.RotateSchedule, err)
			}
			rotateCron.Start()
		}
		defaultWriter = []*logWriter{{Writer: lj, isTerm: false}}
		if cfg.Console {
			defaultWriter = append(defaultWriter, &logWriter{Writer: os.Stdout, isTerm: true})
		}
	}
	return nil
}

// Shutdown stops the rotation scheduler if one is running.
func Shutdown() {
	writerMutex.Lock()
	defer writerMutex.Unlock()
	if rotateCron != nil {
		<-rotateCron.Stop().Done()
		rotateCron = nil
	}
}

func GetLog(name string) Log {
	writerMutex.RLock()
	underlying := defaultWriter
	writerMutex.RUnlock()
	return &levelLogger{
		name:        name,
		level:       GetLevel(name),
		underlying:  underlying,
		prefixWidth: currentPrefixWidth(),
	}
}

// NewLog returns a logger writing only to writer.
func NewLog(name string, writer io.Writer) Log {
	return &levelLogger{
		name:        name,
		level:       GetLevel(name),
		underlying:  []*logWriter{{Writer: writer, isTerm: false}},
		prefixWidth: currentPrefixWidth(),
	}
}

func currentPrefixWidth() int {
	levelMutex.RLock()
	defer levelMutex.RUnlock()
	return prefixWidthDefault
}
