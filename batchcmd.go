/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strings"
	"sync"

	"github.com/solanum-go/ircd/internal/batch"
	"github.com/solanum-go/ircd/internal/hook"
)

// batchOwners tracks which client opened each outstanding batch reference,
// since batch.Batch itself carries no client identity and srv.Batches is
// one server-wide Open rather than a per-client instance.
var (
	batchOwnersMu sync.Mutex
	batchOwners   = make(map[string]string) // ref -> owning client UID
)

// registerBatchEngine wires the BATCH command, registers the one
// supported batch type (draft/multiline message concatenation), and
// attaches the message_handler hook that redirects batch-tagged lines
// into the queue instead of running them immediately, per
// HookMessageHandler's documented purpose in dispatch.go.
func registerBatchEngine(srv *Server, r *Registry) {
	regAny(r, CmdBatch, 1, userClasses, handleBatch)

	batchRegistry.Register("draft/multiline", batch.TypeHandler{
		Flag:   batch.AllowAll,
		Invoke: func(b *batch.Batch) { invokeMultilineBatch(srv, b) },
	})

	srv.Hooks.Attach(HookMessageHandler, "batch-queue", 0, func(ev *hook.Event) error {
		rebind, ok := ev.Data.(*HandlerRebind)
		if !ok || rebind.Entry.Fn == nil {
			return nil
		}
		rebind.Entry.Fn = wrapBatchQueue(srv, rebind.Entry.Fn)
		return nil
	})
}

func handleBatch(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	ref := ctx.Msg.Params[0]
	if ref == EMPTY {
		ctx.Handled()
		return
	}

	switch ref[0] {
	case '+':
		tag := ref[1:]
		if len(ctx.Msg.Params) < 2 {
			c.ReplyNeedMoreParams(CmdBatch)
			ctx.Handled()
			return
		}
		typeName := ctx.Msg.Params[1]
		var args []string
		if len(ctx.Msg.Params) > 2 {
			args = ctx.Msg.Params[2:]
		}
		if _, err := srv.Batches.Start(tag, typeName, args, EMPTY); err != nil {
			c.ReplyError(err.Error())
			ctx.Handled()
			return
		}
		batchOwnersMu.Lock()
		batchOwners[tag] = c.UID()
		batchOwnersMu.Unlock()
	case '-':
		tag := ref[1:]
		err := srv.Batches.Close(tag, func(b *batch.Batch) {
			c.ReplyError("BATCH " + b.Ref + " closed with an incomplete child")
		})
		batchOwnersMu.Lock()
		delete(batchOwners, tag)
		batchOwnersMu.Unlock()
		if err != nil {
			c.ReplyError(err.Error())
		}
	default:
		c.ReplyError("Invalid BATCH reference tag")
	}
	ctx.Handled()
}

// wrapBatchQueue intercepts any command carrying a "batch" tag naming a
// reference this client currently has open, queuing it as a Line instead
// of invoking the handler. Everything else passes through untouched.
func wrapBatchQueue(srv *Server, orig HandlerFunc) HandlerFunc {
	return func(ctx *MessageContext) {
		ref, ok := ctx.Msg.Tags.Get("batch")
		if !ok || ref == EMPTY {
			orig(ctx)
			return
		}

		batchOwnersMu.Lock()
		owner, tracked := batchOwners[ref]
		batchOwnersMu.Unlock()
		if !tracked || owner != ctx.Client.UID() {
			orig(ctx)
			return
		}

		line := batch.Line{
			Tags:    ctx.Msg.Tags.All(),
			Origin:  ctx.Msg.Origin,
			Command: ctx.Msg.Command,
			Params:  append([]string(nil), ctx.Msg.Params...),
		}
		if err := srv.Batches.Add(ref, line); err != nil {
			orig(ctx)
			return
		}
		ctx.Handled()
	}
}

// invokeMultilineBatch joins every queued line's trailing parameter with
// newlines and relays the result as one message to the batch's target
// (Args[0]), draft/multiline's concatenation behavior.
func invokeMultilineBatch(srv *Server, b *batch.Batch) {
	if len(b.Args) == 0 || len(b.Lines) == 0 {
		return
	}
	target := b.Args[0]

	batchOwnersMu.Lock()
	ownerUID := batchOwners[b.Ref]
	batchOwnersMu.Unlock()
	source, ok := srv.Clients.ByUID(ownerUID)
	if !ok {
		return
	}

	command := CmdPrivMsg
	parts := make([]string, 0, len(b.Lines))
	for _, ln := range b.Lines {
		if ln.Command == CmdNotice {
			command = CmdNotice
		}
		if len(ln.Params) > 1 {
			parts = append(parts, ln.Params[1])
		}
	}
	text := strings.Join(parts, "\n")

	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = source.Hostmask()
	msg.Command = command
	msg.Params = []string{target, text}

	if target != EMPTY && (target[0] == '#' || target[0] == '&') {
		ch, ok := srv.Channels.Get(target)
		if !ok {
			return
		}
		ch.ForEachLocalMember(func(m *Membership) {
			if m.Client.UID() == source.UID() {
				return
			}
			m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
		})
		return
	}

	if dest, ok := srv.Clients.ByNick(target); ok {
		dest.WriteLine(msg.Render(dest.caps.Acked))
	}
}
