package ytdlp

import (
	"context"
	"sync"
	"time"
)

// Event is one item of a download's event stream.
// The set of implementations is closed: Started, Progress, Log,
// NetworkProblem, Error, Cancelled and Completed.
type Event interface {
	isEvent()
}

// EventFunc receives events for a single handle. It is called from a
// background goroutine and never concurrently with itself for the same handle.
type EventFunc func(Event)

// Started is emitted once the subprocess exists
type Started struct {
	Attempt int
}

// Progress is emitted for every output line that carries a percentage
type Progress struct {
	Percent          float64
	SpeedBytesPerSec int64 // 0 when the line has no rate
	ETA              time.Duration
	RawLine          string
}

// Log is emitted for every other output line
type Log struct {
	Line string
}

// NetworkProblem is emitted when preflight checks fail
type NetworkProblem struct {
	Detail string
}

// Error describes a failure. Cause may be nil.
type Error struct {
	Message string
	Cause   error
}

// Cancelled is emitted right before Completed when the caller cancelled
type Cancelled struct{}

// Completed is always the last event of a stream
type Completed struct {
	ExitCode int
	Success  bool
}

func (Started) isEvent()        {}
func (Progress) isEvent()       {}
func (Log) isEvent()            {}
func (NetworkProblem) isEvent() {}
func (Error) isEvent()          {}
func (Cancelled) isEvent()      {}
func (Completed) isEvent()      {}

// IsTerminal reports whether ev ends a stream
func IsTerminal(ev Event) bool {
	_, ok := ev.(Completed)
	return ok
}

// emitter serialises delivery for one handle and drops everything after
// the terminal event.
type emitter struct {
	mu     sync.Mutex
	fn     EventFunc
	closed bool
	onDone func()
}

func newEmitter(fn EventFunc, onDone func()) *emitter {
	if fn == nil {
		fn = func(Event) {}
	}
	return &emitter{fn: fn, onDone: onDone}
}

func (e *emitter) emit(ev Event) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return
	}
	e.fn(ev)
	if IsTerminal(ev) {
		e.closed = true
		if e.onDone != nil {
			e.onDone()
		}
	}
}

// Handle is the cancellation token of one logical download.
type Handle struct {
	cancel   context.CancelFunc
	once     sync.Once
	doneOnce sync.Once
	done     chan struct{}
}

// NewHandle returns a handle whose Cancel calls cancel once.
// The engine uses it internally; test doubles can use it to hand out handles.
func NewHandle(cancel context.CancelFunc) *Handle {
	if cancel == nil {
		cancel = func() {}
	}
	return &Handle{cancel: cancel, done: make(chan struct{})}
}

// Cancel requests cancellation. Safe to call many times and after completion.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.once.Do(h.cancel)
}

// Done is closed once the terminal event has been delivered
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the terminal event has been delivered
func (h *Handle) Wait() {
	<-h.done
}

// Finish marks the handle done. Idempotent.
func (h *Handle) Finish() {
	h.doneOnce.Do(func() { close(h.done) })
}
