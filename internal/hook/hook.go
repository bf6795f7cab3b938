/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package hook is the cross-cutting event bus that modules and extensions
// attach to (new client, nick change, channel join, mode change, server
// burst...), generalized from the teacher's router.go HandlersChain
// middleware idea in dircd/router.go: ordered handlers that can veto or
// short-circuit, but keyed by named event points rather than IRC command
// verbs so non-command state transitions (TS collisions, SAVE, rehash)
// can also be observed.
package hook

import (
	"fmt"
	"sort"
	"sync"
)

// Point names a place in the core where hooks may attach.
type Point string

// Func observes or vetoes an event. Returning a non-nil error aborts
// remaining handlers in the chain; the caller decides what an abort means
// for that particular Point (e.g. a pre-join veto sends a numeric back to
// the client instead of completing the join).
type Func func(*Event) error

// Event carries the payload passed to hooks for the given Point. Data is
// a Point-specific struct; callers type-assert it (mirrors the teacher's
// MessageContext carrying an untyped *Conn/*Message pair per command).
type Event struct {
	Point   Point
	Data    any
	aborted bool
	err     error
}

// Abort stops remaining handlers in the chain for this dispatch, recording
// why so the originator can react (reject the command, roll back state).
func (e *Event) Abort(err error) {
	e.aborted = true
	e.err = err
}

// Aborted reports whether a prior handler called Abort.
func (e *Event) Aborted() bool {
	return e.aborted
}

// Err returns the error passed to Abort, if any.
func (e *Event) Err() error {
	return e.err
}

type registration struct {
	name     string
	priority int
	fn       Func
}

// Bus is a concurrency-safe registry of ordered hook handlers per Point.
type Bus struct {
	mu    sync.RWMutex
	hooks map[Point][]registration
}

// New returns an empty Bus.
func New() *Bus {
	return &Bus{hooks: make(map[Point][]registration)}
}

// Attach registers fn under name at the given Point. Lower priority values
// run first; handlers at equal priority run in registration order. name
// must be unique per Point so a later Detach call can target it.
func (b *Bus) Attach(point Point, name string, priority int, fn Func) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, reg := range b.hooks[point] {
		if reg.name == name {
			return fmt.Errorf("hook: %q already attached at %s", name, point)
		}
	}

	b.hooks[point] = append(b.hooks[point], registration{name: name, priority: priority, fn: fn})
	sort.SliceStable(b.hooks[point], func(i, j int) bool {
		return b.hooks[point][i].priority < b.hooks[point][j].priority
	})

	return nil
}

// Detach removes a previously attached hook by name.
func (b *Bus) Detach(point Point, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	regs := b.hooks[point]
	for i, reg := range regs {
		if reg.name == name {
			b.hooks[point] = append(regs[:i:i], regs[i+1:]...)
			return true
		}
	}
	return false
}

// Fire runs every handler attached at point in priority order, stopping
// early if one calls Event.Abort. It returns the Event so the caller can
// inspect Aborted()/Err() after the walk.
func (b *Bus) Fire(point Point, data any) *Event {
	b.mu.RLock()
	regs := make([]registration, len(b.hooks[point]))
	copy(regs, b.hooks[point])
	b.mu.RUnlock()

	ev := &Event{Point: point, Data: data}

	for _, reg := range regs {
		if err := reg.fn(ev); err != nil {
			ev.Abort(err)
		}
		if ev.aborted {
			break
		}
	}

	return ev
}

// Count reports how many handlers are attached at point, mainly for tests
// and STATS-style introspection.
func (b *Bus) Count(point Point) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.hooks[point])
}
