package duration

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultInterval is the sampling cadence while recording.
const DefaultInterval = time.Second

// Sampler invokes a tick callback at a fixed cadence between Start and Stop.
// The callback is held in an indirection cell: Subscribe swaps it without
// touching the running ticker, and every tick reads the latest value.
type Sampler struct {
	clock    Clock
	interval time.Duration

	onTick atomic.Pointer[func(time.Time)]

	mu   sync.Mutex
	stop chan struct{}
}

// NewSampler creates a stopped sampler. A zero interval means DefaultInterval.
func NewSampler(clock Clock, interval time.Duration) *Sampler {
	if clock == nil {
		clock = SystemClock{}
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Sampler{clock: clock, interval: interval}
}

// Subscribe replaces the tick callback. Safe while running.
func (s *Sampler) Subscribe(fn func(now time.Time)) {
	if fn == nil {
		s.onTick.Store(nil)
		return
	}
	s.onTick.Store(&fn)
}

// Start begins ticking. Calling Start while running is a no-op.
func (s *Sampler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return
	}
	stop := make(chan struct{})
	s.stop = stop
	ticker := s.clock.NewTicker(s.interval)
	go s.run(ticker, stop)
}

// Stop halts ticking. It does not wait for an in-flight tick callback, so it
// may be called from code holding locks the callback also takes. Calling Stop
// while stopped is a no-op.
func (s *Sampler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	s.stop = nil
}

// Running reports whether the sampler is ticking.
func (s *Sampler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stop != nil
}

func (s *Sampler) run(ticker Ticker, stop <-chan struct{}) {
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C():
			select {
			case <-stop:
				return
			default:
			}
			if fn := s.onTick.Load(); fn != nil {
				(*fn)(now)
			}
		}
	}
}
