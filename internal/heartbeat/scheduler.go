package heartbeat

import (
	"log/slog"
	"sync"
	"time"
)

// Scheduler sends heartbeats at a fixed interval while active.
//
// Deadlines are absolute: every firing re-arms at the previous deadline plus
// the interval, so processing delays do not accumulate.
type Scheduler struct {
	beat   func()
	clock  Clock
	logger *slog.Logger

	mu       sync.Mutex
	active   bool
	interval time.Duration
	deadline time.Time
	timer    Timer
	gen      uint64
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the real clock.
func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		s.clock = c
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = l
	}
}

// New creates an inactive scheduler calling beat on every tick.
func New(beat func(), opts ...Option) *Scheduler {
	s := &Scheduler{
		beat:   beat,
		clock:  RealClock(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start activates the scheduler. It does nothing when already active or when
// interval is not positive (heartbeats disabled by the server).
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active || interval <= 0 {
		return
	}

	s.active = true
	s.interval = interval
	s.gen++
	s.deadline = s.clock.Now().Add(interval)
	s.armLocked(s.gen)

	s.logger.Debug("sending heartbeats", "interval", interval)
}

// Stop cancels the pending tick. It is safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return
	}

	s.active = false
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}

	s.logger.Debug("stopped sending heartbeats")
}

// Active reports whether heartbeats are scheduled.
func (s *Scheduler) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Deadline returns the absolute time of the next tick, zero when inactive.
func (s *Scheduler) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return time.Time{}
	}
	return s.deadline
}

func (s *Scheduler) armLocked(gen uint64) {
	delay := s.deadline.Sub(s.clock.Now())
	if delay < 0 {
		delay = 0
	}
	s.timer = s.clock.AfterFunc(delay, func() { s.fire(gen) })
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if !s.active || gen != s.gen {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.beat()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Stop or a restart may have happened while beat was running.
	if !s.active || gen != s.gen {
		return
	}
	s.deadline = s.deadline.Add(s.interval)
	s.armLocked(gen)
}
