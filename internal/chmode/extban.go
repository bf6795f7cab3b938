/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package chmode

import "sync"

// Result is the three-valued outcome of an extban predicate.
type Result int

const (
	NoMatch Result = iota
	Match
	Invalid
)

// ModeType distinguishes which list mode invoked the extban (a $-ban can
// behave differently depending on whether it's being evaluated as a ban,
// except, or quiet).
type ModeType int

const (
	ModeBan ModeType = iota
	ModeExcept
	ModeQuiet
)

// ExtbanContext is the subset of client/channel state an extban predicate
// needs, supplied by the caller so this package stays independent of the
// root package's concrete Client/Channel types.
type ExtbanContext struct {
	ClientAccount string
	ClientHost    string
	ClientIP      string
	ClientGecos   string
	ChannelName   string
	IsSecure      bool
	IsOper        bool
}

// ExtbanFunc evaluates one ext-ban's data argument against ctx.
type ExtbanFunc func(data string, ctx ExtbanContext, mtype ModeType) Result

// ExtbanTable is the registry of "$x" extended-ban predicates, keyed by
// their single-character type.
type ExtbanTable struct {
	mu    sync.RWMutex
	funcs map[rune]ExtbanFunc

	recursionGuard map[rune]bool // prevents e.g. $j evaluating itself inside itself
	guardMu        sync.Mutex
}

// NewExtbanTable returns an empty ExtbanTable.
func NewExtbanTable() *ExtbanTable {
	return &ExtbanTable{
		funcs:          make(map[rune]ExtbanFunc),
		recursionGuard: make(map[rune]bool),
	}
}

// Register installs fn for extban character c (e.g. 'a' for $a:account).
func (t *ExtbanTable) Register(c rune, fn ExtbanFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.funcs[c] = fn
}

// Eval parses a "$c:data" or "$~c:data" token (the '~' negates) and
// evaluates it, guarding against a predicate recursively invoking itself
// (e.g. $j evaluating can-join, which itself consults ban lists).
func (t *ExtbanTable) Eval(token string, ctx ExtbanContext, mtype ModeType) Result {
	if len(token) < 2 || token[0] != '$' {
		return Invalid
	}

	rest := token[1:]
	negate := false
	if len(rest) > 0 && rest[0] == '~' {
		negate = true
		rest = rest[1:]
	}
	if rest == "" {
		return Invalid
	}

	c := rune(rest[0])
	data := ""
	if len(rest) > 1 {
		if rest[1] != ':' {
			return Invalid
		}
		data = rest[2:]
	}

	t.mu.RLock()
	fn, ok := t.funcs[c]
	t.mu.RUnlock()
	if !ok {
		return Invalid
	}

	t.guardMu.Lock()
	if t.recursionGuard[c] {
		t.guardMu.Unlock()
		return Invalid
	}
	t.recursionGuard[c] = true
	t.guardMu.Unlock()

	result := fn(data, ctx, mtype)

	t.guardMu.Lock()
	delete(t.recursionGuard, c)
	t.guardMu.Unlock()

	if negate && result != Invalid {
		if result == Match {
			return NoMatch
		}
		return Match
	}
	return result
}

// IsExtban reports whether mask looks like an extended ban token.
func IsExtban(mask string) bool {
	return len(mask) > 1 && mask[0] == '$'
}
