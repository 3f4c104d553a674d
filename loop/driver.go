package loop

import (
	"errors"
	"sync"
	"time"

	"github.com/tsawler/go-mlplayground/logging"
)

var (
	// ErrExhausted indicates the simulation has used its iteration budget and needs a reset
	ErrExhausted = errors.New("loop: iteration budget exhausted")
	// ErrClosed indicates the driver was closed and cannot run again
	ErrClosed = errors.New("loop: driver closed")
)

// State is the run state of a driver
type State int

const (
	Idle State = iota
	Running
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON payloads
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// StopReason tells why a driver left the Running state
type StopReason int

const (
	StopPaused StopReason = iota
	StopExhausted
	StopReset
	StopClosed
)

func (r StopReason) String() string {
	switch r {
	case StopPaused:
		return "paused"
	case StopExhausted:
		return "exhausted"
	case StopReset:
		return "reset"
	case StopClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Simulation is a widget's state container driven one tick at a time
type Simulation[S any] interface {
	// Step advances one tick. It returns false, leaving state untouched, when no budget remains.
	Step() bool
	// Snapshot returns an independent copy of the current state for publishing
	Snapshot() S
	// Reset restores the initial model state and clears run metrics
	Reset()
}

// Budgeted is implemented by simulations with an iteration budget
type Budgeted interface {
	Exhausted() bool
}

// Publisher receives every published snapshot. Publish runs while the driver holds its lock,
// so implementations must not call back into the driver.
type Publisher[S any] interface {
	Publish(snapshot S)
}

// PublisherFunc adapts a function into a Publisher
type PublisherFunc[S any] func(S)

// Publish calls f
func (f PublisherFunc[S]) Publish(snapshot S) {
	if f != nil {
		f(snapshot)
	}
}

// Publishers fans a snapshot out to several publishers in order
type Publishers[S any] []Publisher[S]

// Publish forwards snapshot to every publisher
func (ps Publishers[S]) Publish(snapshot S) {
	for _, p := range ps {
		if p != nil {
			p.Publish(snapshot)
		}
	}
}

// Options configures a Driver
type Options[S any] struct {
	Name       string             // Used in log lines
	Interval   time.Duration      // Delay between ticks
	DelayFirst bool               // Wait one Interval before the first tick instead of ticking at once
	Publisher  Publisher[S]       // Receives snapshots after every tick and every reset
	OnStop     func(r StopReason) // Called outside the lock whenever the driver stops running
	Logger     *logging.Logger
}

// Driver repeatedly invokes a simulation's step on a scheduler. At most one tick is
// pending at any time and ticks never overlap.
type Driver[S any] struct {
	mu sync.Mutex

	sim        Simulation[S]
	sched      Scheduler
	name       string
	interval   time.Duration
	delayFirst bool
	pub        Publisher[S]
	onStop     func(StopReason)
	log        *logging.Logger

	state   State
	pending Handle
	gen     uint64
	ticks   int
	closed  bool
}

// NewDriver creates an idle driver for sim
func NewDriver[S any](sim Simulation[S], sched Scheduler, opts Options[S]) *Driver[S] {
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Name == "" {
		opts.Name = "simulation"
	}
	return &Driver[S]{
		sim:        sim,
		sched:      sched,
		name:       opts.Name,
		interval:   opts.Interval,
		delayFirst: opts.DelayFirst,
		pub:        opts.Publisher,
		onStop:     opts.OnStop,
		log:        opts.Logger,
	}
}

// Name returns the driver name
func (d *Driver[S]) Name() string {
	return d.name
}

// Start moves an idle or paused driver to Running. Starting a running driver is a no-op.
func (d *Driver[S]) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrClosed
	}
	if d.state == Running {
		return nil
	}
	if b, ok := d.sim.(Budgeted); ok && b.Exhausted() {
		return ErrExhausted
	}

	d.state = Running
	delay := time.Duration(0)
	if d.delayFirst {
		delay = d.interval
	}
	d.schedule(delay)
	d.log.Debugf("%s: started after %d ticks", d.name, d.ticks)
	return nil
}

// Pause halts future ticks and keeps all state
func (d *Driver[S]) Pause() {
	d.mu.Lock()
	if d.state != Running {
		d.mu.Unlock()
		return
	}
	d.halt()
	d.state = Paused
	d.mu.Unlock()

	d.log.Debugf("%s: paused", d.name)
	d.stopped(StopPaused)
}

// Toggle starts a stopped driver or pauses a running one
func (d *Driver[S]) Toggle() error {
	if d.State() == Running {
		d.Pause()
		return nil
	}
	return d.Start()
}

// Reset halts the driver and restores the simulation's initial state
func (d *Driver[S]) Reset() {
	d.Reload(d.sim.Reset)
}

// Reload halts the driver and runs fn under the driver lock, typically to swap in new data.
// The driver ends Idle with a zero tick count and publishes the resulting state.
func (d *Driver[S]) Reload(fn func()) {
	d.mu.Lock()
	prev := d.state
	d.halt()
	if fn != nil {
		fn()
	}
	d.ticks = 0
	d.state = Idle
	d.publish()
	d.mu.Unlock()

	if prev != Idle {
		d.stopped(StopReset)
	}
}

// Adjust runs fn under the driver lock without touching the run state, then publishes
func (d *Driver[S]) Adjust(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if fn != nil {
		fn()
	}
	d.publish()
}

// Close cancels the pending tick for good
func (d *Driver[S]) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	prev := d.state
	d.halt()
	d.closed = true
	d.state = Idle
	d.mu.Unlock()

	if prev != Idle {
		d.stopped(StopClosed)
	}
}

// State returns the current run state
func (d *Driver[S]) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Ticks returns the number of ticks run since the last reset
func (d *Driver[S]) Ticks() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.ticks
}

// Snapshot returns the simulation state
func (d *Driver[S]) Snapshot() S {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sim.Snapshot()
}

// schedule queues the next tick. Caller holds mu.
func (d *Driver[S]) schedule(delay time.Duration) {
	d.gen++
	gen := d.gen
	d.pending = d.sched.Schedule(func() { d.tick(gen) }, delay)
}

// halt cancels the pending tick and invalidates any callback already in flight. Caller holds mu.
func (d *Driver[S]) halt() {
	if d.pending != 0 {
		d.sched.Cancel(d.pending)
		d.pending = 0
	}
	d.gen++
}

func (d *Driver[S]) tick(gen uint64) {
	d.mu.Lock()
	if d.closed || d.state != Running || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.pending = 0

	if !d.sim.Step() {
		d.state = Idle
		ticks := d.ticks
		d.mu.Unlock()
		d.log.Infof("%s: iteration budget reached after %d ticks", d.name, ticks)
		d.stopped(StopExhausted)
		return
	}
	d.ticks++
	d.publish()

	if b, ok := d.sim.(Budgeted); ok && b.Exhausted() {
		d.state = Idle
		ticks := d.ticks
		d.mu.Unlock()
		d.log.Infof("%s: iteration budget reached after %d ticks", d.name, ticks)
		d.stopped(StopExhausted)
		return
	}

	d.schedule(d.interval)
	d.mu.Unlock()
}

// publish sends the current snapshot. Caller holds mu.
func (d *Driver[S]) publish() {
	if d.pub == nil {
		return
	}
	d.pub.Publish(d.sim.Snapshot())
}

func (d *Driver[S]) stopped(r StopReason) {
	if d.onStop != nil {
		d.onStop(r)
	}
}
