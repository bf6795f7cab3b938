/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package batch implements the IRCv3 client-initiated BATCH mechanism:
// nested batches identified by a reference tag, a type-handler registry,
// and a 15-second open-batch timeout. There is no teacher equivalent; the
// queueing/finalization order (abort incomplete children, recurse into
// completed ones, invoke the handler) is grounded directly in the
// solanum modules/m_batch.c flow referenced by _examples/original_source.
package batch

import (
	"errors"
	"time"
)

// Flag controls how a batch type's children are finalized.
type Flag int

const (
	// AllowAll lets nested batches of any type attach as children.
	AllowAll Flag = iota
	// SkipChildren finalizes the batch without recursing into children
	// (their lines are dropped from this handler's perspective, but each
	// child still finalizes independently beforehand).
	SkipChildren
)

var (
	ErrInvalidRefTag  = errors.New("batch: reference tag already open")
	ErrUnknownType    = errors.New("batch: unknown batch type")
	ErrInvalidNesting = errors.New("batch: parent does not allow this child type")
	ErrNotOpen        = errors.New("batch: reference tag not open")
)

// TypeHandler describes one registered BATCH type.
type TypeHandler struct {
	Flag         Flag
	ChildAllowed func(childType string) bool
	Invoke       func(*Batch)
}

// Registry maps batch type names to their handler, shared across all
// clients on the server.
type Registry struct {
	handlers map[string]TypeHandler
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]TypeHandler)}
}

// Register adds or replaces the handler for typeName.
func (r *Registry) Register(typeName string, h TypeHandler) {
	r.handlers[typeName] = h
}

// Lookup returns the handler for typeName, if registered.
func (r *Registry) Lookup(typeName string) (TypeHandler, bool) {
	h, ok := r.handlers[typeName]
	return h, ok
}

// Line is one queued message attached to an open batch: a deep copy of
// tags/params/origin/command/target so the original message's buffer can
// be recycled immediately, matching batch_add_msgbuf's copy-into-allocation
// behavior.
type Line struct {
	Tags    map[string]string
	Origin  string
	Command string
	Params  []string
}

// Batch is one open (or finalizing) BATCH block.
type Batch struct {
	Ref      string
	Type     string
	Args     []string
	Parent   *Batch
	Children []*Batch
	Lines    []Line
	Expiry   time.Time
	complete bool
}

// Open tracks the batches currently open for one local client (the
// per-local-client open-batch list plus pending_batch_lines counter).
type Open struct {
	registry *Registry
	byRef    map[string]*Batch
	top      []*Batch // root-level batches (no parent)
}

// NewOpen returns an empty Open batch set bound to registry.
func NewOpen(registry *Registry) *Open {
	return &Open{registry: registry, byRef: make(map[string]*Batch)}
}

// PendingLines reports the total queued line count across every open
// batch for this client.
func (o *Open) PendingLines() int {
	n := 0
	for _, b := range o.byRef {
		n += len(b.Lines)
	}
	return n
}

// Start opens a new batch, nesting it under parentRef's batch if that ref
// is itself open and not yet closed.
func (o *Open) Start(ref, typeName string, args []string, parentRef string) (*Batch, error) {
	if _, exists := o.byRef[ref]; exists {
		return nil, ErrInvalidRefTag
	}

	handler, ok := o.registry.Lookup(typeName)
	if !ok {
		return nil, ErrUnknownType
	}

	b := &Batch{Ref: ref, Type: typeName, Args: args, Expiry: time.Now().Add(15 * time.Second)}

	if parentRef != "" {
		parent, ok := o.byRef[parentRef]
		if !ok {
			return nil, ErrInvalidNesting
		}
		parentHandler, _ := o.registry.Lookup(parent.Type)
		if parentHandler.ChildAllowed != nil && !parentHandler.ChildAllowed(typeName) {
			return nil, ErrInvalidNesting
		}
		b.Parent = parent
		parent.Children = append(parent.Children, b)
	} else {
		o.top = append(o.top, b)
	}

	o.byRef[ref] = b
	_ = handler
	return b, nil
}

// Add queues line onto the batch identified by ref.
func (o *Open) Add(ref string, line Line) error {
	b, ok := o.byRef[ref]
	if !ok {
		return ErrNotOpen
	}
	b.Lines = append(b.Lines, line)
	return nil
}

// Close finalizes the batch identified by ref: abort unfinished children
// (the caller supplies onIncomplete to emit FAIL BATCH INCOMPLETE),
// recurse into already-completed children first unless the type is
// SkipChildren, then invoke the handler on the batch if it has any lines
// or children, and free it.
func (o *Open) Close(ref string, onIncomplete func(*Batch)) error {
	b, ok := o.byRef[ref]
	if !ok {
		return ErrNotOpen
	}

	b.complete = true
	o.finalize(b, onIncomplete)
	return nil
}

func (o *Open) finalize(b *Batch, onIncomplete func(*Batch)) {
	for _, child := range b.Children {
		if !child.complete {
			if onIncomplete != nil {
				onIncomplete(child)
			}
			o.abort(child)
			continue
		}
	}

	handler, _ := o.registry.Lookup(b.Type)

	if handler.Flag != SkipChildren {
		for _, child := range b.Children {
			if child.complete {
				o.invokeAndFree(child, handler.Flag == SkipChildren)
			}
		}
	}

	if len(b.Lines) > 0 || len(b.Children) > 0 {
		if handler.Invoke != nil {
			handler.Invoke(b)
		}
	}

	o.free(b)
}

func (o *Open) invokeAndFree(b *Batch, skipChildren bool) {
	handler, _ := o.registry.Lookup(b.Type)
	if !skipChildren {
		for _, child := range b.Children {
			if child.complete {
				o.invokeAndFree(child, false)
			}
		}
	}
	if handler.Invoke != nil {
		handler.Invoke(b)
	}
	o.free(b)
}

func (o *Open) abort(b *Batch) {
	for _, child := range b.Children {
		o.abort(child)
	}
	o.free(b)
}

func (o *Open) free(b *Batch) {
	delete(o.byRef, b.Ref)
	if b.Parent == nil {
		for i, t := range o.top {
			if t == b {
				o.top = append(o.top[:i], o.top[i+1:]...)
				break
			}
		}
	}
}

// Sweep frees every batch open past its expiry, invoking onTimeout for
// each (so the caller can emit FAIL BATCH TIMEOUT) before discarding it.
// Nothing in the server schedules Sweep; it runs only when a caller
// invokes it.
func (o *Open) Sweep(onTimeout func(*Batch)) {
	now := time.Now()
	var expired []*Batch
	for _, b := range o.byRef {
		if b.Parent == nil && now.After(b.Expiry) {
			expired = append(expired, b)
		}
	}
	for _, b := range expired {
		if onTimeout != nil {
			onTimeout(b)
		}
		o.abort(b)
	}
}

// FreeAll discards every open batch for this client, as happens on exit.
func (o *Open) FreeAll() {
	for _, b := range append([]*Batch(nil), o.top...) {
		o.abort(b)
	}
}
