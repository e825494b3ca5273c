// Package sched provides tick driven timers for the world loop.
//
// A Scheduler is not safe for concurrent use. It is owned by the world loop
// goroutine, which advances it once per tick; callbacks run on that goroutine,
// one at a time, in (due tick, arm order) order.
package sched

import "sort"

// Handle identifies an armed timer. The zero Handle is never armed.
type Handle uint64

type timer struct {
	id    Handle
	due   uint64
	every uint64 // 0 for one-shot timers
	fn    func()
}

type Scheduler struct {
	now    uint64
	nextID Handle
	timers map[Handle]*timer
}

func New() *Scheduler {
	return &Scheduler{timers: map[Handle]*timer{}}
}

// Now is the last tick passed to Advance.
func (s *Scheduler) Now() uint64 { return s.now }

// Pending is the number of armed timers.
func (s *Scheduler) Pending() int { return len(s.timers) }

// After arms a one-shot timer that fires d ticks from now (at least one).
func (s *Scheduler) After(d uint64, fn func()) Handle {
	return s.arm(d, 0, fn)
}

// Every arms a repeating timer that first fires d ticks from now and then every d ticks.
func (s *Scheduler) Every(d uint64, fn func()) Handle {
	if d == 0 {
		d = 1
	}
	return s.arm(d, d, fn)
}

func (s *Scheduler) arm(d, every uint64, fn func()) Handle {
	if fn == nil {
		return 0
	}
	if d == 0 {
		d = 1
	}
	s.nextID++
	t := &timer{id: s.nextID, due: s.now + d, every: every, fn: fn}
	s.timers[t.id] = t
	return t.id
}

// Cancel disarms h. It reports whether the timer was still armed.
// Cancelling from inside a callback (including the timer's own) is allowed.
func (s *Scheduler) Cancel(h Handle) bool {
	if _, ok := s.timers[h]; !ok {
		return false
	}
	delete(s.timers, h)
	return true
}

// Advance moves the clock to tick `to` and runs every timer due at or before it.
// Timers armed by callbacks run in the same call if they fall due. It returns
// the number of callbacks run.
func (s *Scheduler) Advance(to uint64) int {
	if to < s.now {
		return 0
	}
	ran := 0
	for {
		next := s.due(to)
		if next == nil {
			break
		}
		if next.due > s.now {
			s.now = next.due
		}
		if next.every > 0 {
			next.due += next.every
		} else {
			delete(s.timers, next.id)
		}
		next.fn()
		ran++
	}
	s.now = to
	return ran
}

// due returns the earliest timer due at or before `to`, ties broken by arm order.
func (s *Scheduler) due(to uint64) *timer {
	var best *timer
	for _, t := range s.timers {
		if t.due > to {
			continue
		}
		if best == nil || t.due < best.due || (t.due == best.due && t.id < best.id) {
			best = t
		}
	}
	return best
}

// Group tracks the timers armed on behalf of one owner so they can be released together.
type Group struct {
	s      *Scheduler
	owned  map[Handle]struct{}
	closed bool
}

func (s *Scheduler) NewGroup() *Group {
	return &Group{s: s, owned: map[Handle]struct{}{}}
}

func (g *Group) After(d uint64, fn func()) Handle {
	if g == nil || g.closed {
		return 0
	}
	h := g.s.After(d, fn)
	g.owned[h] = struct{}{}
	return h
}

func (g *Group) Every(d uint64, fn func()) Handle {
	if g == nil || g.closed {
		return 0
	}
	h := g.s.Every(d, fn)
	g.owned[h] = struct{}{}
	return h
}

// Cancel disarms one timer of the group.
func (g *Group) Cancel(h Handle) bool {
	if g == nil {
		return false
	}
	delete(g.owned, h)
	return g.s.Cancel(h)
}

// Release disarms every timer of the group. A released group arms nothing.
func (g *Group) Release() {
	if g == nil || g.closed {
		return
	}
	g.closed = true
	hs := make([]Handle, 0, len(g.owned))
	for h := range g.owned {
		hs = append(hs, h)
	}
	sort.Slice(hs, func(i, j int) bool { return hs[i] < hs[j] })
	for _, h := range hs {
		g.s.Cancel(h)
	}
	g.owned = nil
}

// Active is the number of timers of the group that are still armed.
func (g *Group) Active() int {
	if g == nil {
		return 0
	}
	n := 0
	for h := range g.owned {
		if _, ok := g.s.timers[h]; ok {
			n++
		}
	}
	return n
}
