package audio

import (
	"encoding/binary"
	"math"
	"sync"
	"time"
)

// DefaultLevelInterval is the monitor tick: 50 samples per second.
const DefaultLevelInterval = 20 * time.Millisecond

// RMSLevel returns the loudness of a 16-bit PCM buffer on the [Level] scale.
// Returns 0 for buffers shorter than one sample.
func RMSLevel(pcm []byte) Level {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := range n {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2:i*2+2]))) / 32768.0
		sum += v * v
	}
	return Level(math.Sqrt(sum/float64(n)) * 1000)
}

// LevelMonitor turns the most recent audio frame into one [Level] per tick.
//
// Only the latest frame matters: frames observed between two ticks overwrite
// each other and a tick that finds no new frame reports nothing. Observers are
// called on the monitor goroutine and must not block.
type LevelMonitor struct {
	interval time.Duration

	mu        sync.Mutex
	latest    []byte
	fresh     bool
	observers []func(Level)

	// lifecycle, guarded by mu
	stop chan struct{}
	done chan struct{}
}

// NewLevelMonitor returns a stopped monitor ticking every interval.
// A non-positive interval selects [DefaultLevelInterval].
func NewLevelMonitor(interval time.Duration) *LevelMonitor {
	if interval <= 0 {
		interval = DefaultLevelInterval
	}
	return &LevelMonitor{interval: interval}
}

// Interval returns the tick period.
func (m *LevelMonitor) Interval() time.Duration { return m.interval }

// OnLevel registers fn to be called once per tick with the current loudness.
func (m *LevelMonitor) OnLevel(fn func(Level)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// Observe records frame as the latest sample source. Safe to call from the
// capture goroutine while the monitor ticks.
func (m *LevelMonitor) Observe(frame AudioFrame) {
	m.mu.Lock()
	m.latest = frame.Data
	m.fresh = true
	m.mu.Unlock()
}

// Start launches the tick loop. Calling Start on a running monitor is a no-op.
func (m *LevelMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})
	m.fresh = false
	m.latest = nil
	go m.loop(m.stop, m.done)
}

// Stop halts the tick loop and waits for it to exit. After Stop returns no
// observer is invoked. Stop is idempotent.
func (m *LevelMonitor) Stop() {
	m.mu.Lock()
	stop, done := m.stop, m.done
	m.stop, m.done = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// Tick computes the level of the latest frame and notifies observers. It is
// exported so that callers driving their own clock can step the monitor.
// Returns false when no new frame arrived since the previous tick.
func (m *LevelMonitor) Tick() (Level, bool) {
	m.mu.Lock()
	if !m.fresh {
		m.mu.Unlock()
		return 0, false
	}
	pcm := m.latest
	m.fresh = false
	observers := m.observers
	m.mu.Unlock()

	level := RMSLevel(pcm)
	for _, fn := range observers {
		fn(level)
	}
	return level, true
}

func (m *LevelMonitor) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			select {
			case <-stop:
				return
			default:
			}
			m.Tick()
		}
	}
}
