package loop

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/tsawler/go-mlplayground/logging"
)

// counterSim counts ticks and optionally stops at a budget
type counterSim struct {
	count  int
	budget int // 0 means unlimited
}

func (c *counterSim) Step() bool {
	if c.budget > 0 && c.count >= c.budget {
		return false
	}
	c.count++
	return true
}

func (c *counterSim) Snapshot() int { return c.count }
func (c *counterSim) Reset()        { c.count = 0 }

type budgetedSim struct{ counterSim }

func (b *budgetedSim) Exhausted() bool { return b.budget > 0 && b.count >= b.budget }

// leakyScheduler ignores Cancel so callbacks of halted runs still fire
type leakyScheduler struct{ *ManualScheduler }

func (leakyScheduler) Cancel(Handle) {}

type DriverSuite struct {
	suite.Suite
	sched     *ManualScheduler
	published []int
	stops     []StopReason
}

func (s *DriverSuite) SetupTest() {
	s.sched = NewManualScheduler()
	s.published = nil
	s.stops = nil
}

func (s *DriverSuite) newDriver(sim Simulation[int], interval time.Duration) *Driver[int] {
	return NewDriver[int](sim, s.sched, Options[int]{
		Name:      "counter",
		Interval:  interval,
		Publisher: PublisherFunc[int](func(v int) { s.published = append(s.published, v) }),
		OnStop:    func(r StopReason) { s.stops = append(s.stops, r) },
		Logger:    logging.Discard(),
	})
}

// TestTicksOnCadence: first tick is immediate, later ticks follow the interval.
func (s *DriverSuite) TestTicksOnCadence() {
	sim := &counterSim{}
	d := s.newDriver(sim, 500*time.Millisecond)

	require.Equal(s.T(), Idle, d.State())
	require.NoError(s.T(), d.Start())
	require.Equal(s.T(), Running, d.State())
	require.Equal(s.T(), 1, s.sched.Pending())

	s.sched.Advance(0)
	require.Equal(s.T(), 1, sim.count)

	s.sched.Advance(499 * time.Millisecond)
	require.Equal(s.T(), 1, sim.count)

	s.sched.Advance(time.Millisecond)
	require.Equal(s.T(), 2, sim.count)

	s.sched.Advance(time.Second)
	require.Equal(s.T(), 4, sim.count)
	require.Equal(s.T(), []int{1, 2, 3, 4}, s.published)
	require.Equal(s.T(), 4, d.Ticks())
	require.Equal(s.T(), 1, s.sched.Pending(), "exactly one tick pending")
}

// TestPauseKeepsState: pause cancels the pending tick and resuming continues.
func (s *DriverSuite) TestPauseKeepsState() {
	sim := &counterSim{}
	d := s.newDriver(sim, time.Second)

	require.NoError(s.T(), d.Start())
	s.sched.Advance(2 * time.Second)
	require.Equal(s.T(), 3, sim.count)

	d.Pause()
	require.Equal(s.T(), Paused, d.State())
	require.Equal(s.T(), 0, s.sched.Pending())
	require.Equal(s.T(), []StopReason{StopPaused}, s.stops)

	s.sched.Advance(10 * time.Second)
	require.Equal(s.T(), 3, sim.count)

	require.NoError(s.T(), d.Toggle())
	require.Equal(s.T(), Running, d.State())
	s.sched.Advance(0)
	require.Equal(s.T(), 4, sim.count)

	require.NoError(s.T(), d.Toggle())
	require.Equal(s.T(), Paused, d.State())
}

// TestStartTwiceKeepsOnePendingTick: a second Start while running does not double the cadence.
func (s *DriverSuite) TestStartTwiceKeepsOnePendingTick() {
	d := s.newDriver(&counterSim{}, time.Second)

	require.NoError(s.T(), d.Start())
	require.NoError(s.T(), d.Start())
	require.Equal(s.T(), 1, s.sched.Pending())

	d.Pause()
	require.NoError(s.T(), d.Start())
	d.Pause()
	require.NoError(s.T(), d.Start())
	require.Equal(s.T(), 1, s.sched.Pending())
}

// TestBudgetStopsDriver: a budgeted simulation goes Idle on its last tick.
func (s *DriverSuite) TestBudgetStopsDriver() {
	sim := &budgetedSim{counterSim{budget: 3}}
	d := s.newDriver(sim, FrameInterval)

	require.NoError(s.T(), d.Start())
	s.sched.Advance(time.Second)

	require.Equal(s.T(), 3, sim.count)
	require.Equal(s.T(), Idle, d.State())
	require.Equal(s.T(), []StopReason{StopExhausted}, s.stops)
	require.Equal(s.T(), 0, s.sched.Pending())
	require.ErrorIs(s.T(), d.Start(), ErrExhausted)

	d.Reset()
	require.Equal(s.T(), 0, sim.count)
	require.NoError(s.T(), d.Start())
}

// TestBudgetWithoutExhausted: a simulation that only signals through Step still stops.
func (s *DriverSuite) TestBudgetWithoutExhausted() {
	sim := &counterSim{budget: 2}
	d := s.newDriver(sim, FrameInterval)

	require.NoError(s.T(), d.Start())
	s.sched.Advance(time.Second)

	require.Equal(s.T(), 2, sim.count)
	require.Equal(s.T(), Idle, d.State())
	require.Equal(s.T(), []StopReason{StopExhausted}, s.stops)
}

// TestResetClearsEverything regardless of how long the run was.
func (s *DriverSuite) TestResetClearsEverything() {
	sim := &counterSim{}
	d := s.newDriver(sim, time.Millisecond)

	require.NoError(s.T(), d.Start())
	s.sched.Advance(time.Second)
	require.Greater(s.T(), sim.count, 500)

	d.Reset()
	require.Equal(s.T(), Idle, d.State())
	require.Equal(s.T(), 0, d.Ticks())
	require.Equal(s.T(), 0, d.Snapshot())
	require.Equal(s.T(), 0, s.published[len(s.published)-1], "reset publishes the fresh state")
	require.Equal(s.T(), []StopReason{StopReset}, s.stops)
	require.Equal(s.T(), 0, s.sched.Pending())
}

// TestReloadAndAdjust run mutations under the lock.
func (s *DriverSuite) TestReloadAndAdjust() {
	sim := &counterSim{}
	d := s.newDriver(sim, time.Second)

	require.NoError(s.T(), d.Start())
	s.sched.Advance(0)

	d.Adjust(func() { sim.count += 10 })
	require.Equal(s.T(), Running, d.State())
	require.Equal(s.T(), 11, s.published[len(s.published)-1])

	d.Reload(func() { sim.count = 100 })
	require.Equal(s.T(), Idle, d.State())
	require.Equal(s.T(), 100, d.Snapshot())
	require.Equal(s.T(), 0, d.Ticks())
}

// TestDelayFirst waits one interval before the first tick.
func (s *DriverSuite) TestDelayFirst() {
	sim := &counterSim{}
	d := NewDriver[int](sim, s.sched, Options[int]{Interval: time.Second, DelayFirst: true, Logger: logging.Discard()})

	require.NoError(s.T(), d.Start())
	s.sched.Advance(999 * time.Millisecond)
	require.Equal(s.T(), 0, sim.count)
	s.sched.Advance(time.Millisecond)
	require.Equal(s.T(), 1, sim.count)
}

// TestStaleCallbackDropped: a callback from a halted run never steps the simulation.
func (s *DriverSuite) TestStaleCallbackDropped() {
	sim := &counterSim{}
	leaky := leakyScheduler{s.sched}
	d := NewDriver[int](sim, leaky, Options[int]{Interval: time.Second, Logger: logging.Discard()})

	require.NoError(s.T(), d.Start())
	d.Pause()
	require.NoError(s.T(), d.Start())
	require.Equal(s.T(), 2, s.sched.Pending())

	s.sched.Advance(0)
	require.Equal(s.T(), 1, sim.count, "only the live callback ticks")
}

// TestClose stops the driver for good.
func (s *DriverSuite) TestClose() {
	sim := &counterSim{}
	d := s.newDriver(sim, time.Second)

	require.NoError(s.T(), d.Start())
	d.Close()
	d.Close()
	require.Equal(s.T(), []StopReason{StopClosed}, s.stops)
	require.ErrorIs(s.T(), d.Start(), ErrClosed)
	s.sched.Advance(time.Minute)
	require.Equal(s.T(), 0, sim.count)
}

func TestDriverSuite(t *testing.T) {
	suite.Run(t, new(DriverSuite))
}

func TestTimerSchedulerDrivesToBudget(t *testing.T) {
	sim := &budgetedSim{counterSim{budget: 5}}
	done := make(chan StopReason, 1)

	var mu sync.Mutex
	var seen []int
	d := NewDriver[int](sim, NewTimerScheduler(), Options[int]{
		Interval: time.Millisecond,
		Publisher: PublisherFunc[int](func(v int) {
			mu.Lock()
			seen = append(seen, v)
			mu.Unlock()
		}),
		OnStop: func(r StopReason) { done <- r },
		Logger: logging.Discard(),
	})

	require.NoError(t, d.Start())
	select {
	case r := <-done:
		require.Equal(t, StopExhausted, r)
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not reach its budget")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{1, 2, 3, 4, 5}, seen)
	require.Equal(t, 5, d.Snapshot())
}

func TestTimerSchedulerCancel(t *testing.T) {
	s := NewTimerScheduler()
	fired := make(chan struct{}, 1)

	h := s.Schedule(func() { fired <- struct{}{} }, time.Hour)
	require.Equal(t, 1, s.Pending())
	s.Cancel(h)
	s.Cancel(h)
	require.Equal(t, 0, s.Pending())

	s.Schedule(func() { fired <- struct{}{} }, 0)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer never fired")
	}
}

func TestManualSchedulerOrdering(t *testing.T) {
	s := NewManualScheduler()
	var order []string

	s.Schedule(func() { order = append(order, "b") }, 2*time.Second)
	s.Schedule(func() { order = append(order, "a") }, time.Second)
	h := s.Schedule(func() { order = append(order, "x") }, time.Second)
	s.Schedule(func() { order = append(order, "a2") }, time.Second)
	s.Cancel(h)

	require.Equal(t, 3, s.Advance(5*time.Second))
	require.Equal(t, []string{"a", "a2", "b"}, order)
	require.Equal(t, 5*time.Second, s.Now())
	require.False(t, s.RunNext())
}
