// Package kfmt provides the loader's logging plumbing: a logrus logger whose
// output is buffered until the firmware console is attached, a formatter
// that mimics the "[module] message" style of the early console and the
// diagnostic banner shown when the boot process is aborted.
package kfmt

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/sirupsen/logrus"
)

// moduleField is the logrus field holding the name of the logging module.
const moduleField = "module"

// Sink is the io.Writer used as the logger output. Writes are buffered into
// a backlog until a real output device is attached with SetOutputSink.
type Sink struct {
	backlog backlog
	out     io.Writer
}

// Write implements io.Writer.
func (s *Sink) Write(p []byte) (int, error) {
	if s.out == nil {
		return s.backlog.Write(p)
	}

	return s.out.Write(p)
}

// Pending returns the number of buffered bytes that have not yet been
// flushed to an output device.
func (s *Sink) Pending() int {
	return s.backlog.Len()
}

// NewLogger returns a logger that writes to a fresh Sink using Formatter.
func NewLogger(level logrus.Level) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(&Sink{})
	l.SetFormatter(&Formatter{})
	l.SetLevel(level)
	return l
}

// SetOutputSink sets the output device for l to w and copies any data
// accumulated in the backlog to it. Passing a nil w switches l back to
// buffering mode.
func SetOutputSink(l *logrus.Logger, w io.Writer) error {
	sink, ok := l.Out.(*Sink)
	if !ok {
		l.SetOutput(w)
		return nil
	}

	sink.out = w
	if w == nil {
		return nil
	}

	_, err := sink.backlog.WriteTo(w)
	return err
}

// Module returns a log entry tagged with the given module name.
func Module(l logrus.FieldLogger, name string) *logrus.Entry {
	return l.WithField(moduleField, name)
}

// Formatter renders log entries as "[module] message key=value" lines.
type Formatter struct{}

// Format implements logrus.Formatter.
func (f *Formatter) Format(e *logrus.Entry) ([]byte, error) {
	var buf *bytes.Buffer
	if e.Buffer != nil {
		buf = e.Buffer
	} else {
		buf = &bytes.Buffer{}
	}

	module, ok := e.Data[moduleField]
	if !ok {
		module = "loader"
	}

	fmt.Fprintf(buf, "[%v] ", module)
	switch e.Level {
	case logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel:
		buf.WriteString("error: ")
	case logrus.WarnLevel:
		buf.WriteString("warning: ")
	}
	buf.WriteString(e.Message)

	keys := make([]string, 0, len(e.Data))
	for k := range e.Data {
		if k != moduleField {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := e.Data[k].(type) {
		case uint64:
			fmt.Fprintf(buf, " %s=0x%x", k, v)
		case error:
			fmt.Fprintf(buf, " %s=%q", k, v.Error())
		default:
			fmt.Fprintf(buf, " %s=%v", k, v)
		}
	}
	buf.WriteByte('\n')

	return buf.Bytes(), nil
}
