// SPDX-FileCopyrightText: 2025 Intel Corporation
// SPDX-License-Identifier: Apache-2.0

// Package tracing records duration and instant events into a Chrome trace
// JSON file. The file writer and the run epoch are process wide.
package tracing

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lestrrat-go/strftime"
	"github.com/omec-project/gnb/logger"
	"github.com/omec-project/gnb/util"
	"github.com/pkg/errors"
)

const writerQueueSize = 2048

// Scope of an instant event.
type Scope int

const (
	ScopeGlobal Scope = iota
	ScopeProcess
	ScopeThread
)

var scopeStr = [...]string{"g", "p", "t"}

var (
	runEpoch = time.Now()

	writerMu sync.RWMutex
	writer   *traceWriter
)

// RunEpoch returns the process start reference all timestamps are relative to.
func RunEpoch() time.Time {
	return runEpoch
}

type traceWriter struct {
	f          *os.File
	buf        *bufio.Writer
	events     chan string
	done       chan struct{}
	firstEntry bool
	warnLogged atomic.Bool
}

// OpenTraceFile opens the process trace file. The name may contain strftime
// conversion specifications. Opening a second file while one is open fails.
func OpenTraceFile(name string) error {
	writerMu.Lock()
	defer writerMu.Unlock()
	if writer != nil {
		return errors.Errorf("trace file %q already open", name)
	}
	path, err := strftime.Format(name, time.Now())
	if err != nil {
		return errors.Wrapf(err, "expand trace file name %q", name)
	}
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "open trace file")
	}
	w := &traceWriter{
		f:          f,
		buf:        bufio.NewWriter(f),
		events:     make(chan string, writerQueueSize),
		done:       make(chan struct{}),
		firstEntry: true,
	}
	if _, err := w.buf.WriteString("["); err != nil {
		_ = f.Close()
		return errors.Wrap(err, "write trace file")
	}
	go w.run()
	writer = w
	logger.TraceLog.Infof("trace file %s opened", path)
	return nil
}

// CloseTraceFile flushes pending events and closes the trace file.
func CloseTraceFile() {
	writerMu.Lock()
	w := writer
	writer = nil
	writerMu.Unlock()
	if w == nil {
		return
	}
	close(w.events)
	<-w.done
}

// IsTraceFileOpen reports whether events are currently recorded.
func IsTraceFileOpen() bool {
	writerMu.RLock()
	defer writerMu.RUnlock()
	return writer != nil
}

func (w *traceWriter) run() {
	defer util.RecoverWithLog(logger.TraceLog)
	defer close(w.done)
	for ev := range w.events {
		if w.firstEntry {
			w.firstEntry = false
			_, _ = w.buf.WriteString("\n")
		} else {
			_, _ = w.buf.WriteString(",\n")
		}
		_, _ = w.buf.WriteString(ev)
	}
	_, _ = w.buf.WriteString("\n]")
	if err := w.buf.Flush(); err != nil {
		logger.TraceLog.Errorf("flush trace file: %+v", err)
	}
	if err := w.f.Close(); err != nil {
		logger.TraceLog.Errorf("close trace file: %+v", err)
	}
}

func (w *traceWriter) write(ev string) {
	select {
	case w.events <- ev:
	default:
		if !w.warnLogged.Swap(true) {
			logger.TraceLog.Warnln("tracing writer cannot keep up with the number of events")
		}
	}
}

func emit(ev string) {
	writerMu.RLock()
	defer writerMu.RUnlock()
	if writer != nil {
		writer.write(ev)
	}
}

func sinceEpochUs(t time.Time) int64 {
	return t.Sub(runEpoch).Microseconds()
}

func formatDate(t time.Time) string {
	return t.UTC().Format("15:04:05.000000")
}

// Tracer records events. The zero value of FileTracer writes to the process
// trace file when one is open.
type Tracer interface {
	Enabled() bool
	Now() time.Time
	Event(name string, start time.Time)
	Instant(name string, scope Scope)
}

// FileTracer writes events to the process trace file. Tid names the track the
// events are shown on.
type FileTracer struct {
	Tid string
}

func (t FileTracer) Enabled() bool { return IsTraceFileOpen() }

func (t FileTracer) Now() time.Time {
	if !t.Enabled() {
		return time.Time{}
	}
	return time.Now()
}

// Event records a duration event that started at start and ends now.
func (t FileTracer) Event(name string, start time.Time) {
	if !t.Enabled() || start.IsZero() {
		return
	}
	dur := time.Since(start).Microseconds()
	emit(fmt.Sprintf(`{"args": {}, "pid": %d, "tid": %s, "dur": %d, "ts": %d, "cat": "process", "ph": "X", "name": %s}`,
		os.Getpid(), strconv.Quote(t.tid()), dur, sinceEpochUs(start), strconv.Quote(name)))
}

// Instant records a point event.
func (t FileTracer) Instant(name string, scope Scope) {
	if !t.Enabled() {
		return
	}
	now := time.Now()
	emit(fmt.Sprintf(`{"args": {"tstamp": %s}, "pid": %d, "tid": %s, "ts": %d, "cat": "process", "ph": "i", "s": "%s", "name": %s}`,
		strconv.Quote(formatDate(now)), os.Getpid(), strconv.Quote(t.tid()), sinceEpochUs(now), scopeStr[scope], strconv.Quote(name)))
}

func (t FileTracer) tid() string {
	if t.Tid == "" {
		return "main"
	}
	return t.Tid
}

// LogTracer writes events as debug log lines.
type LogTracer struct {
	Tid string
}

func (t LogTracer) Enabled() bool { return logger.DebugEnabled() }

func (t LogTracer) Now() time.Time { return time.Now() }

func (t LogTracer) Event(name string, start time.Time) {
	if !t.Enabled() {
		return
	}
	logger.TraceLog.Debugf("event=%q: tid=%q tstamp=%s ts=%d_usec dur=%d_usec",
		name, t.Tid, formatDate(start), sinceEpochUs(start), time.Since(start).Microseconds())
}

func (t LogTracer) Instant(name string, _ Scope) {
	if !t.Enabled() {
		return
	}
	now := time.Now()
	logger.TraceLog.Debugf("instant_event=%q: tid=%q tstamp=%s ts=%d_usec", name, t.Tid, formatDate(now), sinceEpochUs(now))
}

// Null discards every event.
type Null struct{}

func (Null) Enabled() bool           { return false }
func (Null) Now() time.Time          { return time.Time{} }
func (Null) Event(string, time.Time) {}
func (Null) Instant(string, Scope)   {}
