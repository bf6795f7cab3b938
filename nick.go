/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strconv"
)

// registerNickEngine wires the TS6 UID/EUID/SAVE burst commands and the
// server-relayed NICK path for an already-registered remote user, the
// server-to-server counterpart of handleNick/handleUser in
// commands_register.go. All four only ever arrive over a peer link, so
// every entry lives under ClassServer.
func registerNickEngine(r *Registry) {
	regAny(r, CmdUID, 9, []HandlerClass{ClassServer}, handleUID)
	regAny(r, CmdEUID, 11, []HandlerClass{ClassServer}, handleEUID)
	regAny(r, CmdSave, 2, []HandlerClass{ClassServer}, handleSave)
	regAny(r, CmdNick, 2, []HandlerClass{ClassServer}, handleServerNick)
}

func handleUID(ctx *MessageContext) {
	applyUIDBurst(ctx, false)
	ctx.Handled()
}

func handleEUID(ctx *MessageContext) {
	applyUIDBurst(ctx, true)
	ctx.Handled()
}

// applyUIDBurst parses one UID/EUID burst line, builds the remote user it
// describes, resolves any nick collision against the existing table by
// comparing TS (spec §4.6), and indexes and propagates the winner.
func applyUIDBurst(ctx *MessageContext, extended bool) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params

	nick := p[0]
	ts, err := strconv.ParseInt(p[2], 10, 64)
	if err != nil {
		link.Squit("Invalid TS in " + ctx.Msg.Command)
		return
	}
	umodeStr := p[3]
	user := p[4]
	host := p[5]
	uid := p[7]

	var realname string
	if extended {
		// p[8] account, p[9] real host: both TS6 fields exist on the wire
		// but this server does not yet track remote services accounts, so
		// only the real hostname is applied.
		if realHost := p[9]; realHost != EMPTY && realHost != "*" {
			host = realHost
		}
		realname = p[10]
	} else {
		realname = p[8]
	}

	if len(uid) < 3 {
		link.Squit("Malformed UID " + uid)
		return
	}
	sid := uid[:3]

	if _, exists := srv.Clients.ByUID(uid); exists {
		// A desynced peer resending a UID we already have; drop it rather
		// than clobbering the existing entry.
		return
	}

	remote := NewRemoteUser(uid, sid, nick, user, host, realname, srv)
	remote.SetTSInfo(ts)

	for _, r := range umodeStr {
		if bit, ok := userModeChars[r]; ok {
			remote.AddUserMode(bit)
		}
	}

	if resolveNickCollision(srv, remote) {
		srv.Clients.Add(remote)
		srv.Hooks.Fire(hookClientRegister, remote)
		propagateToPeers(srv, link, ctx.Msg)
	}
}

// handleSave implements SAVE <uid> <ts>: TS6's nick-collision fallback,
// forcing the named UID's displayed nick to its own UID when the sending
// server lost a collision race on ts. Per spec §4.6, SAVE is accepted only
// when the target's current TSInfo matches (or predates) the argument TS;
// a newer local TS means the collision was already resolved here and the
// SAVE is stale and ignored.
func handleSave(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params
	targetUID := p[0]

	ts, err := strconv.ParseInt(p[1], 10, 64)
	if err != nil {
		ctx.Handled()
		return
	}

	target, ok := srv.Clients.ByUID(targetUID)
	if !ok {
		ctx.Handled()
		return
	}
	if target.TSInfo() > ts {
		ctx.Handled()
		return
	}

	oldNick := target.Nick()
	if oldNick == target.UID() {
		ctx.Handled()
		return
	}

	srv.Clients.Rename(oldNick, target.UID())
	target.SetNick(target.UID())
	target.SetTSInfo(ts)

	if target.IsLocal() {
		announceNickChange(target, oldNick, target.Nick())
	}
	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}

// handleServerNick implements the server-relayed rename of an already
// registered remote user: ":<uid> NICK <newnick> <ts>". The acting client
// is resolved from the message origin, since ctx.Client is the peer link
// itself under ClassServer, not the renaming user.
func handleServerNick(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params
	newNick, tsStr := p[0], p[1]

	origin, ok := srv.Clients.ByUID(ctx.Msg.Origin)
	if !ok {
		ctx.Handled()
		return
	}

	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		ts = origin.TSInfo()
	}

	if existing, conflict := srv.Clients.ByNick(newNick); conflict && existing.UID() != origin.UID() {
		if existing.TSInfo() <= ts {
			// The existing holder is older or tied: this rename loses,
			// SAVE the renaming client back to its own UID instead.
			srv.Clients.Rename(origin.Nick(), origin.UID())
			origin.SetNick(origin.UID())
			origin.SetTSInfo(ts)
			if origin.IsLocal() {
				announceNickChange(origin, origin.Nick(), origin.UID())
			}
			ctx.Handled()
			return
		}
	}

	oldNick := origin.Nick()
	srv.Clients.Rename(oldNick, newNick)
	origin.SetNick(newNick)
	origin.SetTSInfo(ts)

	if origin.IsLocal() {
		announceNickChange(origin, oldNick, newNick)
	}
	srv.Hooks.Fire(hookNickChange, &NickChangeEvent{Client: origin, OldNick: oldNick, NewNick: newNick})
	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}

// resolveNickCollision indexes incoming against the client table, applying
// the TS6 win/lose/tie rules from spec §4.6: older TS (smaller value)
// wins outright and the loser is renamed to its own UID (a local
// SAVE-equivalent; remote losers are expected to receive their own SAVE
// from their home server separately); on a tie both sides are renamed to
// their UIDs. Always reports true: incoming is then indexed under
// whichever nick it holds after the collision is resolved.
func resolveNickCollision(srv *Server, incoming *Client) bool {
	existing, conflict := srv.Clients.ByNick(incoming.Nick())
	if !conflict {
		return true
	}
	if existing.UID() == incoming.UID() {
		return true
	}

	switch {
	case incoming.TSInfo() < existing.TSInfo():
		// incoming is older: it wins, existing is saved to its own UID.
		saveToUID(srv, existing)
		return true
	case incoming.TSInfo() > existing.TSInfo():
		// existing is older: it keeps the nick, incoming is saved.
		saveToUID(srv, incoming)
		return true
	default:
		// Exact tie: both sides lose the nick and fall back to their UID.
		saveToUID(srv, existing)
		saveToUID(srv, incoming)
		return true
	}
}

// saveToUID forces c's displayed nick to its own UID, as a local SAVE.
func saveToUID(srv *Server, c *Client) {
	if c.Nick() == c.UID() {
		return
	}
	oldNick := c.Nick()
	if oldNick != EMPTY {
		// Only move the index entry if c is the one holding it; an incoming
		// client that lost is not indexed yet and the nick stays with the winner.
		if held, ok := srv.Clients.ByNick(oldNick); ok && held == c {
			srv.Clients.Rename(oldNick, c.UID())
		}
	}
	c.SetNick(c.UID())
	if c.IsLocal() {
		announceNickChange(c, oldNick, c.Nick())
	}
}

// propagateToPeers forwards msg verbatim to every linked peer except the
// one it arrived from, the standard TS6 flood-to-mesh behavior for
// burst/relay commands.
func propagateToPeers(srv *Server, from *Client, msg *MsgBuf) {
	line := msg.Render(^CapMask(0))
	srv.Servers.ForEach(func(p *Peer) {
		if p.SID() == from.SID() {
			return
		}
		p.WriteLine(line)
	})
}
