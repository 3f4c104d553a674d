package loop

import (
	"sort"
	"sync"
	"time"
)

// FrameInterval approximates one animation frame
const FrameInterval = time.Second / 60

// Handle identifies a scheduled callback. The zero Handle is never issued.
type Handle uint64

// Scheduler runs callbacks after a delay. Cancel on an already fired or unknown handle is a no-op.
type Scheduler interface {
	Schedule(fn func(), delay time.Duration) Handle
	Cancel(h Handle)
}

// TimerScheduler schedules callbacks on wall-clock timers
type TimerScheduler struct {
	mu     sync.Mutex
	next   Handle
	timers map[Handle]*time.Timer
}

// NewTimerScheduler creates a wall-clock scheduler
func NewTimerScheduler() *TimerScheduler {
	return &TimerScheduler{timers: make(map[Handle]*time.Timer)}
}

// Schedule arranges for fn to run on its own goroutine after delay
func (s *TimerScheduler) Schedule(fn func(), delay time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.next++
	h := s.next
	s.timers[h] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, h)
		s.mu.Unlock()
		fn()
	})
	return h
}

// Cancel stops the timer behind h if it has not fired yet
func (s *TimerScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[h]; ok {
		t.Stop()
		delete(s.timers, h)
	}
}

// Pending returns the number of timers that have not fired
func (s *TimerScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type manualTask struct {
	handle Handle
	due    time.Duration
	fn     func()
}

// ManualScheduler is a virtual-clock scheduler for tests. Callbacks only run when the
// caller advances the clock, on the caller's goroutine.
type ManualScheduler struct {
	mu    sync.Mutex
	now   time.Duration
	next  Handle
	tasks []manualTask
}

// NewManualScheduler creates a scheduler whose clock starts at zero
func NewManualScheduler() *ManualScheduler {
	return &ManualScheduler{}
}

// Schedule queues fn to run once the virtual clock reaches now+delay
func (s *ManualScheduler) Schedule(fn func(), delay time.Duration) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if delay < 0 {
		delay = 0
	}
	s.next++
	s.tasks = append(s.tasks, manualTask{handle: s.next, due: s.now + delay, fn: fn})
	// Stable sort keeps FIFO order among equal due times
	sort.SliceStable(s.tasks, func(i, j int) bool { return s.tasks[i].due < s.tasks[j].due })
	return s.next
}

// Cancel drops the task behind h
func (s *ManualScheduler) Cancel(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, t := range s.tasks {
		if t.handle == h {
			s.tasks = append(s.tasks[:i], s.tasks[i+1:]...)
			return
		}
	}
}

// Now returns the virtual clock
func (s *ManualScheduler) Now() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now
}

// Pending returns the number of queued tasks
func (s *ManualScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// RunNext jumps the clock to the earliest task and runs it. It reports false when nothing is queued.
func (s *ManualScheduler) RunNext() bool {
	s.mu.Lock()
	if len(s.tasks) == 0 {
		s.mu.Unlock()
		return false
	}
	task := s.tasks[0]
	s.tasks = s.tasks[1:]
	if task.due > s.now {
		s.now = task.due
	}
	s.mu.Unlock()

	task.fn()
	return true
}

// Advance moves the clock forward by d, running every task that falls due, including tasks
// scheduled by callbacks during the advance. It returns the number of callbacks run.
func (s *ManualScheduler) Advance(d time.Duration) int {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	ran := 0
	for {
		s.mu.Lock()
		if len(s.tasks) == 0 || s.tasks[0].due > target {
			s.now = target
			s.mu.Unlock()
			return ran
		}
		s.mu.Unlock()
		s.RunNext()
		ran++
	}
}

// RunN runs up to n queued tasks in due order and returns how many ran
func (s *ManualScheduler) RunN(n int) int {
	ran := 0
	for ran < n && s.RunNext() {
		ran++
	}
	return ran
}
