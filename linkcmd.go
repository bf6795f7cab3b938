/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

// registerLinkEngine wires the KILL/SQUIT teardown commands and the
// tag-only TAGMSG relay, the remaining local-client-facing surface that
// squit.go's Client.Squit and commands_register.go's relayMessage
// already have primitives for.
func registerLinkEngine(r *Registry) {
	regAny(r, CmdKill, 2, userClasses, handleKill)
	regAny(r, CmdSquit, 1, []HandlerClass{ClassOper, ClassServer}, handleSquit)
	regAny(r, CmdTagMsg, 1, userClasses, handleTagMsg)
}

// handleKill implements KILL <nick> <reason>: opers only, per
// spec §4.10's privilege model. Local targets are torn down directly;
// remote targets are relayed to their owning peer, which is expected to
// exit its own client and flood the KILL onward.
func handleKill(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	if !c.IsOper() || !c.Privileges().Has("kill") {
		c.sendNumeric(ReplyNoPrivileges, []string{c.replyNick()}, "Permission Denied- You're not an IRC operator")
		ctx.Handled()
		return
	}

	target := ctx.Msg.Params[0]
	reason := ctx.Msg.Params[1]

	tc, ok := srv.Clients.ByNick(target)
	if !ok {
		c.ReplyNoSuchNick(target)
		ctx.Handled()
		return
	}

	full := fmtReason(reason, c.Nick())
	if tc.IsLocal() {
		tc.ReplyError("Killed (" + full + ")")
		srv.exitClient(tc, "Killed: "+full)
		ctx.Handled()
		return
	}

	if peer, ok := srv.Servers.ByUID(tc.SID()); ok {
		msg := msgbufPool.New()
		defer msgbufPool.Recycle(msg)
		msg.Tags = NewTags()
		msg.Origin = c.UID()
		msg.Command = CmdKill
		msg.Params = []string{tc.UID(), full}
		peer.WriteLine(msg.Render(^CapMask(0)))
	}
	ctx.Handled()
}

// handleSquit implements SQUIT <server> <reason>, tearing down the named
// peer link via Client.Squit.
func handleSquit(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	if c.IsOper() && !c.Privileges().Has("rehash") {
		c.sendNumeric(ReplyNoPrivileges, []string{c.replyNick()}, "Permission Denied- You're not an IRC operator")
		ctx.Handled()
		return
	}

	target := ctx.Msg.Params[0]
	reason := EMPTY
	if len(ctx.Msg.Params) > 1 {
		reason = ctx.Msg.Params[1]
	}

	peer, ok := srv.Servers.ByUID(target)
	if !ok {
		peer, ok = srv.Servers.ByUID(ctx.Msg.Origin)
	}
	if !ok {
		ctx.Handled()
		return
	}

	if link, exists := srv.Clients.ByUID(peer.SID()); exists {
		link.Squit(reason)
	}
	ctx.Handled()
}

// handleTagMsg relays a tag-only message (no text parameter) to a
// nick or channel target, mirroring relayMessage's routing but never
// triggering ERR_NOSUCHNICK/ERR_NOSUCHCHANNEL the way PRIVMSG does,
// since TAGMSG delivery failure is silent per IRCv3's message-tags spec.
func handleTagMsg(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	target := ctx.Msg.Params[0]

	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = ctx.Msg.Tags
	msg.Origin = c.Hostmask()
	msg.Command = CmdTagMsg
	msg.Params = []string{target}

	if target != EMPTY && (target[0] == '#' || target[0] == '&') {
		ch, ok := srv.Channels.Get(target)
		if !ok {
			ctx.Handled()
			return
		}
		ch.ForEachLocalMember(func(m *Membership) {
			if m.Client.UID() == c.UID() {
				return
			}
			if m.Client.caps.Acked.Has(CapMessageTags) {
				m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
			}
		})
		ctx.Handled()
		return
	}

	if tc, ok := srv.Clients.ByNick(target); ok {
		srv.deliver(tc, msg)
	}
	ctx.Handled()
}
