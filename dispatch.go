/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"fmt"
	"path"
	"reflect"
	"runtime"

	"github.com/sirupsen/logrus"

	"github.com/solanum-go/ircd/internal/hook"
)

// HandlerClass identifies the origin class a command is being dispatched
// for, generalizing the teacher's single Conn-addressed MessageHandler
// into the six origin classes a TS6 server actually has to distinguish.
type HandlerClass int

const (
	ClassUnregistered HandlerClass = iota
	ClassClient
	ClassRemoteClient
	ClassServer
	ClassEncap
	ClassOper
	numHandlerClasses
)

// HandlerFunc processes one parsed message for a given origin.
type HandlerFunc func(ctx *MessageContext)

// HandlerEntry pairs a class's handler with its minimum parameter count;
// a nil Fn means the command is not valid for that origin class.
type HandlerEntry struct {
	Fn        HandlerFunc
	MinParams int
}

// CommandSpec is a command's full set of per-class entry points, mirroring
// the teacher's HandlersChain but keyed by origin class instead of being
// one global middleware chain.
type CommandSpec struct {
	Name     string
	Handlers [numHandlerClasses]HandlerEntry
}

// Registry is the global name->CommandSpec map (case-insensitive on
// lookup, since command names are upper-cased by Parse).
type Registry struct {
	commands map[string]*CommandSpec
	hooks    *hook.Bus
	logger   *logrus.Entry
}

// NewRegistry builds an empty command registry bound to a hook bus for
// the message_tag/message_handler policy points.
func NewRegistry(hooks *hook.Bus, logger *logrus.Entry) *Registry {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Registry{
		commands: make(map[string]*CommandSpec),
		hooks:    hooks,
		logger:   logger.WithField("component", "dispatch"),
	}
}

// Register adds (or replaces) a command's spec.
func (r *Registry) Register(spec *CommandSpec) {
	if spec.Name == "" {
		panic("dispatch: command spec must have a name")
	}
	r.commands[spec.Name] = spec
}

// Lookup returns the registered spec for a command name, if any.
func (r *Registry) Lookup(name string) (*CommandSpec, bool) {
	spec, ok := r.commands[name]
	return spec, ok
}

// MessageContext carries one in-flight dispatch's mutable state: which
// client/peer originated it, the parsed message, and the abort/handled
// signaling the teacher's router.go established.
type MessageContext struct {
	Client  *Client
	Msg     *MsgBuf
	Class   HandlerClass
	handled bool
	abort   bool
	err     error
}

// Handled marks the message as fully processed.
func (c *MessageContext) Handled() { c.handled = true }

// AbortWithError aborts further processing and records the error for
// the dispatcher to log.
func (c *MessageContext) AbortWithError(err error) {
	c.abort = true
	c.err = err
}

// TagAction is a message_tag hook subscriber's verdict for one tag key.
type TagAction int

const (
	TagAllow TagAction = iota
	TagRemove
	TagDrop
)

// HookMessageTag is the point fired once per non-empty tag key before a
// handler runs; subscribers return one of TagAllow/TagRemove/TagDrop via
// Event.Data (a *TagVerdict), letting e.g. the batch engine or an
// account-tag policy veto or strip individual tags.
const HookMessageTag hook.Point = "message_tag"

// TagVerdict is the mutable payload passed through HookMessageTag.
type TagVerdict struct {
	Key    string
	Action TagAction
}

// HookMessageHandler fires with the currently-selected HandlerEntry,
// letting a policy (the batch engine rebinding BATCH-wrapped commands,
// for instance) swap in a different effective handler before invocation.
const HookMessageHandler hook.Point = "message_handler"

// HandlerRebind is the mutable payload passed through HookMessageHandler.
type HandlerRebind struct {
	Command string
	Class   HandlerClass
	Entry   HandlerEntry
}

// classFor determines a client's current handler class for dispatch
// purposes: unregistered clients always get ClassUnregistered regardless
// of link type, oper-flagged clients get ClassOper (there is no fallback
// to ClassClient; regAny registers commands open to both under each), and
// remote peers split by whether they represent a server link or a
// propagated remote user.
func classFor(c *Client) HandlerClass {
	switch {
	case !c.Registered():
		return ClassUnregistered
	case c.IsServer():
		return ClassServer
	case c.IsRemoteUser():
		return ClassRemoteClient
	case c.IsOper():
		return ClassOper
	default:
		return ClassClient
	}
}

// Dispatch implements the seven-step pipeline: numeric-vs-named command
// routing, parameter-count enforcement, the message_tag and
// message_handler hook fan-outs, and handler invocation.
func (r *Registry) Dispatch(client *Client, msg *MsgBuf) {
	defer msgbufPool.Recycle(msg)

	if msg.Code > 0 {
		r.dispatchNumeric(client, msg)
		return
	}

	class := classFor(client)
	log := r.logger.WithField("command", msg.Command)

	spec, exists := r.commands[msg.Command]
	if !exists {
		client.ReplyUnknownCommand(msg.Command)
		log.Debug("no handler registered for command")
		return
	}

	entry := spec.Handlers[class]
	if entry.Fn == nil {
		client.ReplyUnknownCommand(msg.Command)
		log.WithField("class", class).Debug("command not valid for origin class")
		return
	}

	if len(msg.Params) < entry.MinParams ||
		(entry.MinParams > 0 && msg.Params[entry.MinParams-1] == EMPTY) {
		if class == ClassServer {
			client.Squit(fmt.Sprintf(
				"Insufficient parameters (%d < %d) for command '%s'",
				len(msg.Params), entry.MinParams, msg.Command))
		} else {
			client.ReplyNeedMoreParams(msg.Command)
		}
		return
	}

	r.fireMessageTag(msg)

	rebind := &HandlerRebind{Command: msg.Command, Class: class, Entry: entry}
	if r.hooks != nil {
		r.hooks.Fire(HookMessageHandler, rebind)
	}

	ctx := &MessageContext{Client: client, Msg: msg, Class: class}
	rebind.Entry.Fn(ctx)

	if ctx.err != nil {
		log.WithError(ctx.err).Warn("handler reported an error")
	}
}

// fireMessageTag runs the message_tag hook once per tag key, iterating in
// reverse so that a later ALLOW/REMOVE for a duplicate key (which Tags.Set
// already collapses via last-write-wins, but subscribers may still act on
// positional order) takes precedence, then applies REMOVE/DROP verdicts.
func (r *Registry) fireMessageTag(msg *MsgBuf) {
	if r.hooks == nil || msg.Tags == nil || msg.Tags.Len() == 0 {
		return
	}

	keys := append([]string(nil), msg.Tags.keys...)
	var toRemove []string

	for i := len(keys) - 1; i >= 0; i-- {
		key := keys[i]
		if key == EMPTY {
			continue
		}
		verdict := &TagVerdict{Key: key, Action: TagAllow}
		ev := r.hooks.Fire(HookMessageTag, verdict)
		if ev.Aborted() {
			msg.Tags = NewTags()
			return
		}
		if verdict.Action == TagDrop {
			msg.Tags = NewTags()
			return
		}
		if verdict.Action == TagRemove {
			toRemove = append(toRemove, key)
		}
	}

	if len(toRemove) == 0 {
		return
	}
	filtered := NewTags()
	removeSet := make(map[string]bool, len(toRemove))
	for _, k := range toRemove {
		removeSet[k] = true
	}
	for _, k := range msg.Tags.keys {
		if removeSet[k] {
			continue
		}
		v, _ := msg.Tags.Get(k)
		filtered.Set(k, v)
	}
	msg.Tags = filtered
}

// dispatchNumeric implements step 3: numeric commands addressed to this
// server are ignored, otherwise rerouted by target lookup. ERR_NOSUCHNICK
// and ERR_NOSUCHSERVER are explicitly swallowed rather than forwarded,
// since they arise naturally during nick/server collision races and would
// otherwise bounce around the mesh.
func (r *Registry) dispatchNumeric(client *Client, msg *MsgBuf) {
	const (
		errNoSuchNick   = 401
		errNoSuchServer = 402
	)
	if msg.Code == errNoSuchNick || msg.Code == errNoSuchServer {
		return
	}
	if len(msg.Params) == 0 {
		return
	}
	target := msg.Params[0]
	if client.server != nil && target == client.server.Name() {
		return
	}
	client.server.RerouteNumeric(client, msg, target)
}

// nameOfFunction recovers a handler's symbol name for diagnostic logging.
func nameOfFunction(f HandlerFunc) string {
	return path.Base(runtime.FuncForPC(reflect.ValueOf(f).Pointer()).Name())
}
