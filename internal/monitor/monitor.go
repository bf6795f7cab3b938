/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package monitor implements MONITOR (+/-/C/L/S): per-nickname watch
// records carrying the set of watching clients, generalized from the
// teacher's *UserMap (chan_map.go/conn_map.go pattern, held here in plain
// maps under an RWMutex) keyed by casefolded nickname instead of by client.
package monitor

import (
	"strings"
	"sync"
)

// Service tracks, per casefolded nickname, the set of watcher IDs
// observing it, plus the reverse index so a client's QUIT/disconnect can
// remove every subscription in one pass.
type Service[W comparable] struct {
	mu         sync.RWMutex
	byNick     map[string]map[W]struct{}
	byWatcher  map[W]map[string]struct{}
	maxPerUser int
}

// New returns an empty Service capped at maxPerUser monitored nicknames
// per watcher.
func New[W comparable](maxPerUser int) *Service[W] {
	return &Service[W]{
		byNick:     make(map[string]map[W]struct{}),
		byWatcher:  make(map[W]map[string]struct{}),
		maxPerUser: maxPerUser,
	}
}

// Add subscribes watcher to nick. ok is false if the watcher's monitor
// list is already at capacity; the caller sends the "monitor list is
// full" numeric in that case.
func (s *Service[W]) Add(watcher W, nick string) (ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	folded := strings.ToLower(nick)

	if set := s.byWatcher[watcher]; set != nil {
		if _, already := set[folded]; already {
			return true
		}
		if len(set) >= s.maxPerUser {
			return false
		}
	}

	if s.byWatcher[watcher] == nil {
		s.byWatcher[watcher] = make(map[string]struct{})
	}
	s.byWatcher[watcher][folded] = struct{}{}

	if s.byNick[folded] == nil {
		s.byNick[folded] = make(map[W]struct{})
	}
	s.byNick[folded][watcher] = struct{}{}

	return true
}

// Remove unsubscribes watcher from nick.
func (s *Service[W]) Remove(watcher W, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(watcher, strings.ToLower(nick))
}

func (s *Service[W]) remove(watcher W, folded string) {
	if set := s.byWatcher[watcher]; set != nil {
		delete(set, folded)
		if len(set) == 0 {
			delete(s.byWatcher, watcher)
		}
	}
	if set := s.byNick[folded]; set != nil {
		delete(set, watcher)
		if len(set) == 0 {
			delete(s.byNick, folded)
		}
	}
}

// Clear removes every subscription for watcher (MONITOR C, or client exit).
func (s *Service[W]) Clear(watcher W) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for folded := range s.byWatcher[watcher] {
		if set := s.byNick[folded]; set != nil {
			delete(set, watcher)
			if len(set) == 0 {
				delete(s.byNick, folded)
			}
		}
	}
	delete(s.byWatcher, watcher)
}

// List returns the nicknames watcher currently monitors (MONITOR L).
func (s *Service[W]) List(watcher W) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.byWatcher[watcher]))
	for nick := range s.byWatcher[watcher] {
		out = append(out, nick)
	}
	return out
}

// Watchers returns every watcher currently monitoring nick, used by the
// nick-signon/signoff hooks to notify them.
func (s *Service[W]) Watchers(nick string) []W {
	s.mu.RLock()
	defer s.mu.RUnlock()

	folded := strings.ToLower(nick)
	out := make([]W, 0, len(s.byNick[folded]))
	for w := range s.byNick[folded] {
		out = append(out, w)
	}
	return out
}
