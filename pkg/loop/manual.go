package loop

import (
	"context"
	"sort"
	"time"
)

// Manual is a Scheduler driven by hand with a virtual clock. Tests use it to
// step through timer and listener interleavings deterministically.
type Manual struct {
	now    time.Duration
	queue  []func()
	timers []*manualTimer
	seq    int
}

type manualTimer struct {
	at       time.Duration
	seq      int
	fn       func()
	canceled bool
}

// NewManual creates a Manual scheduler at virtual time zero.
func NewManual() *Manual {
	return &Manual{}
}

// Post queues fn until the next Drain.
func (m *Manual) Post(fn func()) {
	m.queue = append(m.queue, fn)
}

// AfterFunc registers fn to run when virtual time reaches now+d.
func (m *Manual) AfterFunc(d time.Duration, fn func()) Disposer {
	m.seq++
	t := &manualTimer{at: m.now + d, seq: m.seq, fn: fn}
	m.timers = append(m.timers, t)
	return func() { t.canceled = true }
}

// Call runs fn immediately; a Manual scheduler has no other thread to wait on.
func (m *Manual) Call(_ context.Context, fn func()) error {
	fn()
	return nil
}

// Drain runs queued closures, including any they post, until none remain.
func (m *Manual) Drain() {
	for len(m.queue) > 0 {
		fn := m.queue[0]
		m.queue = m.queue[1:]
		fn()
	}
}

// Advance moves virtual time forward by d, firing due timers in order and
// draining the queue after each.
func (m *Manual) Advance(d time.Duration) {
	target := m.now + d
	m.Drain()
	for {
		t := m.nextDue(target)
		if t == nil {
			break
		}
		m.now = t.at
		t.fn()
		m.Drain()
	}
	m.now = target
}

func (m *Manual) nextDue(target time.Duration) *manualTimer {
	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.canceled {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].at != m.timers[j].at {
			return m.timers[i].at < m.timers[j].at
		}
		return m.timers[i].seq < m.timers[j].seq
	})
	if len(m.timers) == 0 || m.timers[0].at > target {
		return nil
	}
	t := m.timers[0]
	m.timers = m.timers[1:]
	return t
}

// Now returns the elapsed virtual time.
func (m *Manual) Now() time.Duration {
	return m.now
}

// Pending returns the number of queued closures plus live timers.
func (m *Manual) Pending() int {
	n := len(m.queue)
	for _, t := range m.timers {
		if !t.canceled {
			n++
		}
	}
	return n
}
