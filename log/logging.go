// SPDX-License-Identifier: GPL-3.0-or-later
package log

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

var loggers map[string]*logrus.Logger

func NewPrefixLogger(prefix string) *PrefixLogger {
	stringPrefix := fmt.Sprintf("%s:\t", prefix)

	formatter := &logrus.TextFormatter{}
	formatter.FullTimestamp = true
	formatter.TimestampFormat = "15:04:05"
	formatter.DisableColors = strings.Contains(runtime.GOOS, "windows")
	return &PrefixLogger{
		formatter,
		[]byte(stringPrefix),
	}
}

type PrefixLogger struct {
	formatter logrus.Formatter
	prefix    []byte
}

func (f *PrefixLogger) Format(entry *logrus.Entry) ([]byte, error) {
	text, err := f.formatter.Format(entry)
	if err != nil {
		return nil, err
	}
	return append(f.prefix, text...), nil
}

const (
	LOG_MAIN        = "MA"
	LOG_TRANSFER    = "TR"
	LOG_SCHEDULER   = "SC"
	LOG_PERSISTENCE = "PI"
	LOG_IMAP        = "IM"
	LOG_POP3        = "PO"
)

var prefixes = []string{
	LOG_MAIN,
	LOG_TRANSFER,
	LOG_SCHEDULER,
	LOG_PERSISTENCE,
	LOG_IMAP,
	LOG_POP3,
}

func getLevel(loglevel string) logrus.Level {
	switch strings.ToLower(loglevel) {
	case "trace":
		return logrus.TraceLevel
	case "debug":
		return logrus.DebugLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "panic":
		return logrus.PanicLevel
	case "fatal":
		return logrus.FatalLevel
	}

	// Info is default
	return logrus.InfoLevel
}

// ValidLevel reports whether loglevel names a level known to getLevel.
func ValidLevel(loglevel string) bool {
	switch strings.ToLower(loglevel) {
	case "trace", "debug", "info", "warn", "warning", "error", "panic", "fatal":
		return true
	}
	return false
}

func initLogger(prefix, loglevel string) {
	loggers[prefix] = logrus.New()
	loggers[prefix].Level = getLevel(loglevel)
	loggers[prefix].Formatter = NewPrefixLogger(prefix)
}

func InitLogging(loglevel string) {
	loggers = make(map[string]*logrus.Logger)
	for _, prefix := range prefixes {
		initLogger(prefix, loglevel)
	}
}

func SetLogLevel(loglevel string) {
	for _, v := range loggers {
		v.Level = getLevel(loglevel)
	}
}

func SetOutput(w io.Writer) {
	for _, v := range loggers {
		v.SetOutput(w)
	}
}

// Logger returns the logger registered for prefix. Packages used without
// InitLogging (tests, library use) get a logger that discards everything.
func Logger(logger string) *logrus.Logger {
	if loggers == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		return l
	}

	l, ok := loggers[logger]
	if !ok {
		panic("Logger " + logger + " unknown")
	}

	return l
}
