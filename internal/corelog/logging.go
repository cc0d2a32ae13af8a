/*************************************************************************
* Copyright 2017 Gravwell, Inc. All rights reserved.
* Contact: <legal@gravwell.io>
*
* This software may be modified and distributed under the terms of the
* BSD 2-clause license. See the LICENSE file for details.
**************************************************************************/

// Package corelog is a small leveled, structured logger used throughout
// the supervisor. It supports both printf-style and key/value style
// logging, fanning each line out to one or more writers.
package corelog

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/crewjam/rfc5424"
)

const (
	OFF      Level = 0
	DEBUG    Level = 1
	INFO     Level = 2
	WARN     Level = 3
	ERROR    Level = 4
	CRITICAL Level = 5
	FATAL    Level = 6
)

const (
	defaultDepth = 3

	defaultID = `catsuper@1`

	maxAppname  = 48
	maxHostname = 255
)

var (
	ErrNotOpen      = errors.New("logger is not open")
	ErrInvalidLevel = errors.New("invalid log level")
)

type Level int

func (l Level) String() string {
	switch l {
	case OFF:
		return `OFF`
	case DEBUG:
		return `DEBUG`
	case INFO:
		return `INFO`
	case WARN:
		return `WARN`
	case ERROR:
		return `ERROR`
	case CRITICAL:
		return `CRITICAL`
	case FATAL:
		return `FATAL`
	}
	return `UNKNOWN`
}

func (l Level) Valid() bool {
	return l >= OFF && l <= FATAL
}

func (l Level) priority() rfc5424.Priority {
	switch l {
	case DEBUG:
		return rfc5424.User | rfc5424.Debug
	case INFO:
		return rfc5424.User | rfc5424.Info
	case WARN:
		return rfc5424.User | rfc5424.Warning
	case ERROR:
		return rfc5424.User | rfc5424.Error
	case CRITICAL:
		return rfc5424.User | rfc5424.Crit
	case FATAL:
		return rfc5424.User | rfc5424.Emergency
	}
	return rfc5424.User | rfc5424.Debug
}

func LevelFromString(s string) (l Level, err error) {
	switch strings.ToUpper(s) {
	case `OFF`:
		l = OFF
	case `DEBUG`:
		l = DEBUG
	case `INFO`:
		l = INFO
	case `WARN`:
		l = WARN
	case `ERROR`:
		l = ERROR
	case `CRITICAL`:
		l = CRITICAL
	case `FATAL`:
		l = FATAL
	default:
		err = ErrInvalidLevel
	}
	return
}

// Logger is a leveled, structured logger fanning out to one or more
// writers. The zero value is not usable; construct with New or NewFile.
type Logger struct {
	hostname string
	appname  string
	wtrs     []io.WriteCloser
	mtx      sync.Mutex
	lvl      Level
	hot      bool
}

// NewFile creates a logger appending to a file, creating it if absent.
func NewFile(p string) (*Logger, error) {
	fout, err := os.OpenFile(p, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, err
	}
	return New(fout), nil
}

// New creates a logger at level INFO writing to wtr.
func New(wtr io.WriteCloser) (l *Logger) {
	l = &Logger{
		wtrs: []io.WriteCloser{wtr},
		lvl:  INFO,
		hot:  true,
	}
	l.guessIdentity()
	return
}

// NewDiscardLogger returns a logger that throws away everything written
// to it; useful as a default when no logger is configured.
func NewDiscardLogger() *Logger {
	return New(discardCloser{})
}

func (l *Logger) guessIdentity() {
	if h, err := os.Hostname(); err == nil {
		l.hostname = trimLength(maxHostname, h)
	}
	if len(os.Args) > 0 {
		exe := filepath.Base(os.Args[0])
		if ext := filepath.Ext(exe); len(ext) > 0 && len(ext) < len(exe) {
			exe = strings.TrimSuffix(exe, ext)
		}
		l.appname = trimLength(maxAppname, exe)
	}
}

func (l *Logger) ready() error {
	if !l.hot || len(l.wtrs) == 0 {
		return ErrNotOpen
	}
	return nil
}

// AddWriter adds another writer that will receive every logged line.
func (l *Logger) AddWriter(wtr io.WriteCloser) error {
	if wtr == nil {
		return errors.New("nil writer")
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err := l.ready(); err != nil {
		return err
	}
	l.wtrs = append(l.wtrs, wtr)
	return nil
}

// Close closes the logger and every writer it owns.
func (l *Logger) Close() (err error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return
	}
	l.hot = false
	for _, w := range l.wtrs {
		if lerr := w.Close(); lerr != nil {
			err = lerr
		}
	}
	return
}

// SetLevel sets the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) error {
	if !lvl.Valid() {
		return ErrInvalidLevel
	}
	l.mtx.Lock()
	l.lvl = lvl
	l.mtx.Unlock()
	return nil
}

// SetLevelString is a convenience wrapper so a config value can be
// handed straight in.
func (l *Logger) SetLevelString(s string) error {
	lvl, err := LevelFromString(s)
	if err != nil {
		return err
	}
	return l.SetLevel(lvl)
}

func (l *Logger) GetLevel() Level {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.lvl
}

func (l *Logger) Debugf(f string, args ...interface{}) error {
	return l.outputf(defaultDepth, DEBUG, f, args...)
}
func (l *Logger) Infof(f string, args ...interface{}) error {
	return l.outputf(defaultDepth, INFO, f, args...)
}
func (l *Logger) Warnf(f string, args ...interface{}) error {
	return l.outputf(defaultDepth, WARN, f, args...)
}
func (l *Logger) Errorf(f string, args ...interface{}) error {
	return l.outputf(defaultDepth, ERROR, f, args...)
}

// Debug writes a structured DEBUG line.
func (l *Logger) Debug(msg string, kvs ...rfc5424.SDParam) error {
	return l.outputStructured(defaultDepth, DEBUG, msg, kvs...)
}
func (l *Logger) Info(msg string, kvs ...rfc5424.SDParam) error {
	return l.outputStructured(defaultDepth, INFO, msg, kvs...)
}
func (l *Logger) Warn(msg string, kvs ...rfc5424.SDParam) error {
	return l.outputStructured(defaultDepth, WARN, msg, kvs...)
}
func (l *Logger) Error(msg string, kvs ...rfc5424.SDParam) error {
	return l.outputStructured(defaultDepth, ERROR, msg, kvs...)
}
func (l *Logger) Critical(msg string, kvs ...rfc5424.SDParam) error {
	return l.outputStructured(defaultDepth, CRITICAL, msg, kvs...)
}

// Fatal writes a FATAL line then exits the process with status 1.
func (l *Logger) Fatal(msg string, kvs ...rfc5424.SDParam) {
	l.outputStructured(defaultDepth, FATAL, msg, kvs...)
	os.Exit(1)
}

func (l *Logger) outputf(depth int, lvl Level, f string, args ...interface{}) error {
	if l.lvl == OFF || lvl < l.lvl {
		return nil
	}
	return l.write(time.Now(), lvl, callLoc(depth), fmt.Sprintf(f, args...))
}

func (l *Logger) outputStructured(depth int, lvl Level, msg string, kvs ...rfc5424.SDParam) error {
	if l.lvl == OFF || lvl < l.lvl {
		return nil
	}
	return l.write(time.Now(), lvl, callLoc(depth), msg, kvs...)
}

func (l *Logger) write(ts time.Time, lvl Level, loc, msg string, kvs ...rfc5424.SDParam) (err error) {
	b, err := genMessage(ts, lvl.priority(), l.hostname, l.appname, loc, msg, kvs...)
	if err != nil {
		return err
	}
	line := strings.TrimRight(string(b), "\n\t\r")

	l.mtx.Lock()
	defer l.mtx.Unlock()
	if err = l.ready(); err != nil {
		return
	}
	for _, w := range l.wtrs {
		if _, lerr := io.WriteString(w, line+"\n"); lerr != nil {
			err = lerr
		}
	}
	return
}

func genMessage(ts time.Time, prio rfc5424.Priority, hostname, appname, msgid, msg string, kvs ...rfc5424.SDParam) ([]byte, error) {
	m := rfc5424.Message{
		Priority:  prio,
		Timestamp: ts,
		Hostname:  trimLength(maxHostname, hostname),
		AppName:   trimLength(maxAppname, appname),
		MessageID: trimPathLength(32, msgid),
		Message:   []byte(msg),
	}
	if len(kvs) > 0 {
		m.StructuredData = []rfc5424.StructuredData{{ID: defaultID, Parameters: kvs}}
	}
	return m.MarshalBinary()
}

func callLoc(depth int) (s string) {
	if _, file, line, ok := runtime.Caller(depth); ok {
		dir, file := filepath.Split(file)
		file = filepath.Join(filepath.Base(dir), file)
		s = fmt.Sprintf("%s:%d", file, line)
	}
	return
}

func trimPathLength(i int, input string) string {
	if len(input) <= i {
		return input
	}
	return trimLength(i, filepath.Base(input))
}

func trimLength(i int, input string) string {
	if len(input) <= i {
		return input
	}
	return input[:i]
}

type discardCloser struct{}

func (discardCloser) Write(b []byte) (int, error) { return len(b), nil }
func (discardCloser) Close() error                { return nil }
