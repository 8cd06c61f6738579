// Package dlevent defines the abstract event hooks a loader emits at the
// boundary of a Run, and a logrus-backed sink that never blocks the run
// engine, grounded on the structured-logging discipline UnAfraid-wg-ui
// applies throughout its server and dataloader-middleware code.
package dlevent

import (
	"time"

	"github.com/sirupsen/logrus"
)

// OutcomeCounts summarises the outcomes produced by one Run for one
// source.
type OutcomeCounts struct {
	OK       int
	NotFound int
	Error    int
}

// RunStart is emitted when a source begins dispatching its pending
// batches.
type RunStart struct {
	Source string
}

// RunStop is emitted when a source finishes dispatching, successfully or
// otherwise.
type RunStop struct {
	Source   string
	Duration time.Duration
	Outcomes OutcomeCounts
}

// RunException is emitted, in addition to RunStop, when a source's
// dispatch raised an exception (panic or returned error) rather than
// completing normally.
type RunException struct {
	Source string
	Cause  error
}

// Hook receives loader events. Implementations must not block: delivery
// happens on a fire-and-forget basis and a slow hook must never stall the
// run engine.
type Hook interface {
	OnRunStart(RunStart)
	OnRunStop(RunStop)
	OnRunException(RunException)
}

// Recorder fans out events to a set of Hooks, delivering each event to
// each hook on its own goroutine so that a wedged subscriber can never
// stall Run. This mirrors the "never block the run" requirement in
// spec §6.3.
type Recorder struct {
	hooks []Hook
}

// NewRecorder builds a Recorder over the given hooks. A nil or empty
// hooks slice is valid: the recorder then delivers nothing.
func NewRecorder(hooks ...Hook) *Recorder {
	return &Recorder{hooks: hooks}
}

func (r *Recorder) RunStart(ev RunStart) {
	for _, h := range r.hooks {
		h := h
		go h.OnRunStart(ev)
	}
}

func (r *Recorder) RunStop(ev RunStop) {
	for _, h := range r.hooks {
		h := h
		go h.OnRunStop(ev)
	}
}

func (r *Recorder) RunException(ev RunException) {
	for _, h := range r.hooks {
		h := h
		go h.OnRunException(ev)
	}
}

// LogSink is a Hook that writes events as structured logrus fields. It is
// the default subscriber cmd/loaderdemo installs.
type LogSink struct {
	Logger *logrus.Logger
}

// NewLogSink builds a LogSink over the given logger, or the logrus
// standard logger if logger is nil.
func NewLogSink(logger *logrus.Logger) *LogSink {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &LogSink{Logger: logger}
}

func (s *LogSink) OnRunStart(ev RunStart) {
	s.Logger.WithField("source", ev.Source).Debug("run.start")
}

func (s *LogSink) OnRunStop(ev RunStop) {
	s.Logger.WithFields(logrus.Fields{
		"source":   ev.Source,
		"duration": ev.Duration,
		"ok":       ev.Outcomes.OK,
		"notFound": ev.Outcomes.NotFound,
		"error":    ev.Outcomes.Error,
	}).Debug("run.stop")
}

func (s *LogSink) OnRunException(ev RunException) {
	s.Logger.WithFields(logrus.Fields{
		"source": ev.Source,
		"cause":  ev.Cause,
	}).Error("run.exception")
}
