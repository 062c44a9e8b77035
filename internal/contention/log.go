// Package contention implements the CSV utilization sink of spec §4.10 and
// the alternative fluid bandwidth-sharing model of spec §4.9.
package contention

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Sink receives one row per link-active-set-mutating event. Header is
// called once, before the first Row, with the number of links in the
// topology.
type Sink interface {
	Header(linkCount int) error
	Row(time float64, active []int) error
}

// Log is an append-only CSV Sink: first row "time,0,1,...,N-1", each
// subsequent row the simulated time followed by the active-message count on
// each link. The writer flushes after every row, matching spec §4.10's
// "append-only... flushes per row."
type Log struct {
	w      *csv.Writer
	wrote  bool
	closer io.Closer
}

// NewLog wraps w (typically an *os.File opened for edge-contention.csv) as a
// Sink. If w also implements io.Closer, Close will close it.
func NewLog(w io.Writer) *Log {
	l := &Log{w: csv.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		l.closer = c
	}
	return l
}

// Header writes the "time,0,1,...,N-1" row. Must be called exactly once,
// before any Row.
func (l *Log) Header(linkCount int) error {
	if l.wrote {
		return errors.New("contention: Header called after rows were written")
	}
	row := make([]string, linkCount+1)
	row[0] = "time"
	for i := 0; i < linkCount; i++ {
		row[i+1] = strconv.Itoa(i)
	}
	if err := l.w.Write(row); err != nil {
		return errors.Wrap(err, "contention: write header")
	}
	l.w.Flush()
	l.wrote = true
	return l.w.Error()
}

// Row appends one utilization snapshot and flushes immediately.
func (l *Log) Row(time float64, active []int) error {
	row := make([]string, len(active)+1)
	row[0] = strconv.FormatFloat(time, 'g', -1, 64)
	for i, c := range active {
		row[i+1] = strconv.Itoa(c)
	}
	if err := l.w.Write(row); err != nil {
		return errors.Wrap(err, "contention: write row")
	}
	l.w.Flush()
	logrus.Debugf("contention: wrote row @%v: %v", time, active)
	return l.w.Error()
}

// Close flushes and closes the underlying writer, if it supports closing.
func (l *Log) Close() error {
	l.w.Flush()
	if l.closer != nil {
		return l.closer.Close()
	}
	return nil
}

// NullSink discards every row — the default when no CSV path is configured.
type NullSink struct{}

func (NullSink) Header(int) error         { return nil }
func (NullSink) Row(float64, []int) error { return nil }
