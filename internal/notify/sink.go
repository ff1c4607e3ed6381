package notify

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Sink receives events. Report must not block.
type Sink interface {
	Report(ev Event)
}

// Discard is a Sink that drops every event.
var Discard Sink = discard{}

type discard struct{}

func (discard) Report(Event) {}

// Reporter is a delivery backend. It may block and may fail.
type Reporter interface {
	Report(ev Event) error
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ev Event) error

// Report calls f.
func (f ReporterFunc) Report(ev Event) error { return f(ev) }

type backend struct {
	name string
	r    Reporter
}

// Dispatcher queues events and delivers them to every backend from its own
// goroutine. When the queue is full new events are dropped rather than
// stalling the caller. Backends must be added before Run.
type Dispatcher struct {
	ch       chan Event
	backends []backend
	log      *zap.SugaredLogger
	dropped  atomic.Int64
	done     chan struct{}
}

// NewDispatcher creates a Dispatcher with a queue of size events.
func NewDispatcher(size int, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{ch: make(chan Event, size), log: log, done: make(chan struct{})}
}

// Add registers a backend.
func (d *Dispatcher) Add(name string, r Reporter) {
	d.backends = append(d.backends, backend{name: name, r: r})
}

// Report enqueues ev without blocking.
func (d *Dispatcher) Report(ev Event) {
	select {
	case d.ch <- ev:
	default:
		n := d.dropped.Add(1)
		d.log.Warnw("notification queue full, dropping event", "kind", ev.Kind, "dropped", n)
	}
}

// Dropped returns how many events were discarded.
func (d *Dispatcher) Dropped() int64 {
	return d.dropped.Load()
}

// Run delivers events until ctx is done, then drains what is queued.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case ev := <-d.ch:
			d.deliver(ev)
		case <-ctx.Done():
			for {
				select {
				case ev := <-d.ch:
					d.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run returns.
func (d *Dispatcher) Done() <-chan struct{} {
	return d.done
}

func (d *Dispatcher) deliver(ev Event) {
	for _, b := range d.backends {
		if err := b.r.Report(ev); err != nil {
			d.log.Warnw("notification delivery failed", "backend", b.name, "kind", ev.Kind, "err", err)
		}
	}
}

// Recorder is a Sink that keeps every event, for tests.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Report records ev.
func (r *Recorder) Report(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Kinds returns the recorded kinds in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Kind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// Find returns the first event of kind k.
func (r *Recorder) Find(k Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.Kind == k {
			return e, true
		}
	}
	return Event{}, false
}

// LogReporter writes events to the structured log.
func LogReporter(log *zap.SugaredLogger) Reporter {
	return ReporterFunc(func(ev Event) error {
		log.Infow(ev.Text(), "kind", ev.Kind, "program", ev.Program, "stage", ev.Stage, "run_id", ev.RunID)
		return nil
	})
}
