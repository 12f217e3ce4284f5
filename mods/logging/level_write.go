package logging

import (
	"fmt"
	"strings"
	"time"
)

const (
	yellow = "\033[90;43m"
	red    = "\033[97;41m"
	reset  = "\033[0m"
)

const timeFormat = "2006/01/02 15:04:05.000"

func (l *levelLogger) _log(lvl Level, args []any) {
	l._logf(lvl, "", args)
}

func (l *levelLogger) _logf(lvl Level, format string, args []any) {
	if lvl < l.level || lvl >= LevelNone {
		return
	}

	totalCounter.Inc(1)
	if lvl == LevelWarn {
		warnCounter.Inc(1)
	} else if lvl == LevelError {
		errorCounter.Inc(1)
	}

	var msg string
	if format == "" {
		toks := make([]string, 0, len(args)+len(l.attrs))
		for _, a := range args {
			if s, ok := a.(string); ok {
				toks = append(toks, s)
			} else {
				toks = append(toks, fmt.Sprintf("%v", a))
			}
		}
		msg = strings.Join(toks, " ")
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	for _, a := range l.attrs {
		msg = msg + fmt.Sprintf(" %s=%v", a.Key, a.Value)
	}

	name := fmt.Sprintf("%-*s", l.prefixWidth, l.name)
	levelName := fmt.Sprintf("%-5s", lvl.String())
	ts := time.Now()
	if utcTime {
		ts = ts.UTC()
	}

	for _, w := range l.underlying {
		if w.isTerm {
			colorBegin, colorEnd := "", ""
			if lvl == LevelWarn {
				colorBegin, colorEnd = yellow, reset
			} else if lvl == LevelError {
				colorBegin, colorEnd = red, reset
			}
			fmt.Fprintf(w, "%s %s%s%s %s %s\n", ts.Format(timeFormat), colorBegin, levelName, colorEnd, name, msg)
		} else {
			fmt.Fprintf(w, "%s %s %s %s\n", ts.Format(timeFormat), levelName, name, msg)
		}
	}
}

// Write lets a Log serve as the output of other loggers (gin, net/http).
func (l *levelLogger) Write(buff []byte) (n int, err error) {
	ts := fmt.Sprintf("%s -     ", time.Now().Format(timeFormat))
	for _, w := range l.underlying {
		w.Write([]byte(ts))
		n, err = w.Write(buff)
	}
	return len(buff), err
}
