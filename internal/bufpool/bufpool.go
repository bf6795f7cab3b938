/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package bufpool is a generic wrapper around sync.Pool for any type that
// knows how to reset itself, adapted from the teacher's shared/pool so it
// can hold both *bytes.Buffer (wire output) and *MsgBuf (C1 parse/unparse).
package bufpool

import "sync"

// Resettable clears an item's state before it is returned to the pool.
type Resettable interface {
	Reset()
}

// Pool is a generic sync.Pool wrapper.
type Pool[T Resettable] struct {
	pool sync.Pool
}

// New creates a new Pool backed by the given factory.
func New[T Resettable](factory func() T) *Pool[T] {
	return &Pool[T]{
		pool: sync.Pool{New: func() any { return factory() }},
	}
}

// Get takes an item from the pool, allocating one if empty.
func (p *Pool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put resets the item and returns it to the pool.
func (p *Pool[T]) Put(item T) {
	item.Reset()
	p.pool.Put(item)
}
