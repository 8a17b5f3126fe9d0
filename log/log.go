package log

import (
	"fmt"
	"io/ioutil"
	stdlog "log"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

const (
	DEBUG = iota
	INFO
	IMPORTANT
	WARNING
	ERROR
	FATAL
	SUCCESS
)

var (
	debugEnabled = false
	mtx_log      sync.Mutex

	stdout       = color.Output
	g            = color.New(color.FgGreen)
	y            = color.New(color.FgYellow)
	r            = color.New(color.FgRed)
	c            = color.New(color.FgCyan)
	w            = color.New(color.FgWhite)
	d            = color.New(color.FgHiBlack)
	isTerm       = isatty.IsTerminal(os.Stdout.Fd())
	nullLogger   *stdlog.Logger
	nullInitOnce sync.Once
)

func DebugEnable(enable bool) {
	debugEnabled = enable
	color.NoColor = !isTerm
}

func Debug(format string, args ...interface{}) {
	if debugEnabled {
		logMessage(DEBUG, format, args...)
	}
}

func Info(format string, args ...interface{}) {
	logMessage(INFO, format, args...)
}

func Important(format string, args ...interface{}) {
	logMessage(IMPORTANT, format, args...)
}

func Warning(format string, args ...interface{}) {
	logMessage(WARNING, format, args...)
}

func Error(format string, args ...interface{}) {
	logMessage(ERROR, format, args...)
}

func Fatal(format string, args ...interface{}) {
	logMessage(FATAL, format, args...)
}

func Success(format string, args ...interface{}) {
	logMessage(SUCCESS, format, args...)
}

func Printf(format string, args ...interface{}) {
	mtx_log.Lock()
	defer mtx_log.Unlock()
	fmt.Fprintf(stdout, format, args...)
}

// NullLogger returns a *log.Logger that discards everything written to it.
// Used to silence third-party packages that log through the standard logger.
func NullLogger() *stdlog.Logger {
	nullInitOnce.Do(func() {
		nullLogger = stdlog.New(ioutil.Discard, "", 0)
	})
	return nullLogger
}

func logMessage(lvl int, format string, args ...interface{}) {
	mtx_log.Lock()
	defer mtx_log.Unlock()

	d.Fprint(stdout, time.Now().Format("15:04:05"))
	fmt.Fprint(stdout, " ")
	switch lvl {
	case DEBUG:
		d.Fprint(stdout, "[dbg] ")
	case INFO:
		c.Fprint(stdout, "[inf] ")
	case IMPORTANT:
		y.Fprint(stdout, "[imp] ")
	case WARNING:
		y.Fprint(stdout, "[war] ")
	case ERROR:
		r.Fprint(stdout, "[err] ")
	case FATAL:
		r.Fprint(stdout, "[!!!] ")
	case SUCCESS:
		g.Fprint(stdout, "[+++] ")
	}
	w.Fprintf(stdout, format, args...)
	fmt.Fprint(stdout, "\n")
}
