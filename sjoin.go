/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strconv"
	"strings"

	"github.com/solanum-go/ircd/internal/chmode"
)

// registerSjoinEngine wires the TS6 channel-burst and channel-mode relay
// commands: SJOIN reconciliation, TMODE relay, BMASK/EBMASK list burst,
// and MLOCK propagation. All arrive only over a peer link.
func registerSjoinEngine(r *Registry) {
	regAny(r, CmdSJoin, 4, []HandlerClass{ClassServer}, handleSJoin)
	regAny(r, CmdTMode, 3, []HandlerClass{ClassServer}, handleTMode)
	regAny(r, CmdBMask, 3, []HandlerClass{ClassServer}, handleBMask)
	regAny(r, CmdEBMask, 3, []HandlerClass{ClassServer}, handleEBMask)
	regAny(r, CmdMLock, 2, []HandlerClass{ClassServer}, handleMLock)
}

// handleSJoin implements channel-burst reconciliation: "<ts> <chan>
// <modes> [args...] :<uid list>". Per spec §4.7, the side with the lower
// (older) TS wins outright — the newer side's simple modes and member
// status prefixes are discarded — a tie merges both sides' modes, and an
// explicit TS-0 on either side always forces a merge.
func handleSJoin(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params

	ts, err := strconv.ParseInt(p[0], 10, 64)
	if err != nil {
		link.Squit("Invalid TS in SJOIN")
		return
	}
	name := p[1]
	modeStr := p[2]
	var modeArgs []string
	if len(p) > 4 {
		modeArgs = p[3 : len(p)-1]
	}
	nickList := strings.Fields(p[len(p)-1])

	ch, existed := srv.Channels.Get(name)
	if !existed {
		ch = NewChannel(name, ts, srv.ModeTable, srv.Config().Limits.MaxListItems)
		srv.Channels.Add(ch)
	}

	mergeModes := true
	if existed {
		switch {
		case ts == 0 || ch.TS() == 0:
			ch.SetTS(0)
		case ts < ch.TS():
			wipeChannelModes(ch)
			ch.SetTS(ts)
		case ts > ch.TS():
			mergeModes = false
		}
	}

	if mergeModes && modeStr != EMPTY {
		applyChannelModes(ch, srv.ModeTable, link, modeStr, modeArgs, false)
	}

	for _, tok := range nickList {
		joinBurstMember(srv, ch, tok, mergeModes)
	}

	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}

// wipeChannelModes clears every simple mode, the argument-carrying modes,
// and every member's status flags, the fallout of losing an SJOIN TS race.
func wipeChannelModes(ch *Channel) {
	ch.DelModes(ch.Modes())
	ch.SetLimit(0)
	ch.SetKey(EMPTY)
	ch.SetForward(EMPTY)
	ch.ForEachMember(func(m *Membership) {
		m.SetFlags(0)
	})
}

// joinBurstMember parses one SJOIN nick token (a UID optionally prefixed
// with one or more status characters: ~ owner, @ op, % halfop, + voice)
// and joins the named client if it is not already a member.
func joinBurstMember(srv *Server, ch *Channel, tok string, applyStatus bool) {
	var flags MemberFlag
	i := 0
prefix:
	for i < len(tok) {
		switch tok[i] {
		case '~':
			flags |= MemberOwner
		case '@':
			flags |= MemberOp
		case '%':
			flags |= MemberHalfop
		case '+':
			flags |= MemberVoice
		default:
			break prefix
		}
		i++
	}
	uid := tok[i:]
	if uid == EMPTY {
		return
	}

	client, ok := srv.Clients.ByUID(uid)
	if !ok {
		return
	}
	if _, already := ch.Member(uid); already {
		return
	}
	if !applyStatus {
		flags = 0
	}

	m := &Membership{Client: client, Channel: ch}
	m.SetFlags(flags)
	ch.AddMember(m)
	client.AddMembership(ch.Name(), m)
	srv.Hooks.Fire(hookChannelJoin, &JoinEvent{Channel: ch, Member: m})

	if client.IsLocal() {
		client.ReplyChannelTopic(ch)
		client.ReplyChannelNames(ch)
	}
	announceJoin(client, ch)
}

// handleTMode relays a channel mode change from a peer: "<ts> <channel>
// <modestring> [args...]". A TMODE whose TS is newer (greater) than the
// channel's current TS is stale and dropped.
func handleTMode(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params

	ts, err := strconv.ParseInt(p[0], 10, 64)
	if err != nil {
		ctx.Handled()
		return
	}
	name := p[1]
	ch, ok := srv.Channels.Get(name)
	if !ok || ts > ch.TS() {
		ctx.Handled()
		return
	}

	modeStr := p[2]
	var args []string
	if len(p) > 3 {
		args = p[3:]
	}

	actor, ok := srv.Clients.ByUID(ctx.Msg.Origin)
	if !ok {
		actor = link
	}

	rendered, renderedArgs, _ := applyChannelModes(ch, srv.ModeTable, actor, modeStr, args, false)
	if rendered != EMPTY {
		announceMode(actor, ch, rendered, renderedArgs)
	}
	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}

func handleBMask(ctx *MessageContext) {
	applyBMaskBurst(ctx)
}

func handleEBMask(ctx *MessageContext) {
	// Extended ban masks carry the same wire shape as BMASK in this
	// implementation; the "$"-prefixed extban grammar is matched the same
	// way regardless of which command introduced the mask.
	applyBMaskBurst(ctx)
}

// applyBMaskBurst implements BMASK/EBMASK: "<ts> <channel> <type> :<mask
// list>", bulk-loading one of the four mask lists during a channel burst.
func applyBMaskBurst(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params

	ts, err := strconv.ParseInt(p[0], 10, 64)
	if err != nil {
		ctx.Handled()
		return
	}
	name := p[1]
	ch, ok := srv.Channels.Get(name)
	if !ok || ts > ch.TS() {
		ctx.Handled()
		return
	}

	var list *chmode.MaskList
	switch p[2] {
	case "b":
		list = ch.Bans()
	case "e":
		list = ch.Excepts()
	case "I":
		list = ch.Invexes()
	case "q":
		list = ch.Quiets()
	default:
		ctx.Handled()
		return
	}

	if len(p) > 3 {
		for _, mask := range strings.Fields(p[3]) {
			if added, _ := list.Add(mask, EMPTY, link.SID(), ts); added {
				ch.BumpBants()
			}
		}
	}
	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}

// handleMLock implements MLOCK: "<ts> <channel> [:<lock string>]",
// propagating a services-administered mode lock. The lock string is
// stored per-channel only; it never mutates the network-wide mode table
// (see Channel.SetModeLock).
func handleMLock(ctx *MessageContext) {
	link, srv := ctx.Client, ctx.Client.server
	p := ctx.Msg.Params

	ts, err := strconv.ParseInt(p[0], 10, 64)
	if err != nil {
		ctx.Handled()
		return
	}
	name := p[1]
	ch, ok := srv.Channels.Get(name)
	if !ok || ts > ch.TS() {
		ctx.Handled()
		return
	}

	lock := EMPTY
	if len(p) > 2 {
		lock = p[2]
	}
	ch.SetModeLock(lock)
	propagateToPeers(srv, link, ctx.Msg)
	ctx.Handled()
}
