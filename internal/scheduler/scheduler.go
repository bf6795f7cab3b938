/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package scheduler is a recurring/one-shot timer list, grounded in
// solanum/librb/src/event.c's rb_event_add/rb_event_addish/rb_event_addonce
// (see _examples/original_source/_INDEX.md). The teacher has no equivalent
// (its Conn uses raw time.Timer for keepalive/ping only); this generalizes
// that into a named, introspectable event list the way the original's
// EventEntry linked list works, but driven by a single background
// goroutine with a min-heap-free "sleep until next" loop instead of being
// polled from a cooperative main loop.
package scheduler

import (
	"math/rand"
	"sync"
	"time"
)

// Func is invoked when a scheduled event fires.
type Func func()

// entry mirrors the original's EventEntry: name, callback, frequency and
// a deferred "dead" flag so a Cancel mid-sweep doesn't disturb iteration.
type entry struct {
	name      string
	fn        Func
	when      time.Time
	frequency time.Duration
	jitter    bool
	once      bool
	dead      bool
}

// Scheduler runs recurring and one-shot events on a single background
// goroutine, waking only when the earliest entry is due.
type Scheduler struct {
	mu      sync.Mutex
	entries map[string]*entry
	wake    chan struct{}
	stop    chan struct{}
	stopped bool
}

// New returns a Scheduler; call Run in its own goroutine to start it.
func New() *Scheduler {
	return &Scheduler{
		entries: make(map[string]*entry),
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
}

// Add schedules a recurring event firing every frequency, jittered by
// ±1/3 on each reschedule like rb_event_addish. name must be unique;
// re-adding the same name replaces the prior entry.
func (s *Scheduler) Add(name string, frequency time.Duration, jitter bool, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := &entry{name: name, fn: fn, frequency: frequency, jitter: jitter}
	e.when = time.Now().Add(nextDelay(frequency, jitter))
	s.entries[name] = e
	s.poke()
}

// AddOnce schedules a single-shot event after delay, equivalent to
// rb_event_addonce.
func (s *Scheduler) AddOnce(name string, delay time.Duration, fn Func) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[name] = &entry{name: name, fn: fn, when: time.Now().Add(delay), once: true}
	s.poke()
}

// Cancel marks name dead; it is swept on the scheduler's next pass rather
// than removed synchronously, mirroring the original's deferred deletion.
func (s *Scheduler) Cancel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[name]; ok {
		e.dead = true
	}
}

func (s *Scheduler) poke() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Run drives the scheduler until Stop is called. Intended to run in its
// own goroutine for the life of the server.
func (s *Scheduler) Run() {
	for {
		s.mu.Lock()
		next, ok := s.earliest()
		s.mu.Unlock()

		var timer <-chan time.Time
		if ok {
			d := time.Until(next)
			if d < 0 {
				d = 0
			}
			t := time.NewTimer(d)
			defer t.Stop()
			timer = t.C
		}

		select {
		case <-s.stop:
			return
		case <-s.wake:
			continue
		case <-timer:
			s.sweep()
		}
	}
}

// Stop halts the background goroutine started by Run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()
	close(s.stop)
}

func (s *Scheduler) earliest() (time.Time, bool) {
	var best time.Time
	found := false
	for _, e := range s.entries {
		if e.dead {
			continue
		}
		if !found || e.when.Before(best) {
			best = e.when
			found = true
		}
	}
	return best, found
}

// sweep fires every due entry, rescheduling recurring ones and removing
// dead or completed one-shots, re-deriving the next wake time (the
// original's event_time_min) as a side effect of the next Run loop pass.
func (s *Scheduler) sweep() {
	now := time.Now()

	s.mu.Lock()
	var due []*entry
	for name, e := range s.entries {
		if e.dead {
			delete(s.entries, name)
			continue
		}
		if !e.when.After(now) {
			due = append(due, e)
		}
	}
	for _, e := range due {
		if e.once {
			delete(s.entries, e.name)
		} else {
			e.when = now.Add(nextDelay(e.frequency, e.jitter))
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		e.fn()
	}
}

// nextDelay jitters frequency by up to ±1/3, matching rb_event_addish.
func nextDelay(frequency time.Duration, jitter bool) time.Duration {
	if !jitter || frequency <= 0 {
		return frequency
	}
	third := int64(frequency) / 3
	offset := rand.Int63n(2*third+1) - third
	return time.Duration(int64(frequency) + offset)
}
