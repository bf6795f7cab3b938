/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strings"
	"time"

	"github.com/solanum-go/ircd/internal/chmode"
)

// regAny installs fn under every class listed in classes, the common case
// for commands any already-registered connection (user or oper) may send.
func regAny(r *Registry, name string, min int, classes []HandlerClass, fn HandlerFunc) {
	spec, ok := r.Lookup(name)
	if !ok {
		spec = &CommandSpec{Name: name}
	}
	for _, c := range classes {
		spec.Handlers[c] = HandlerEntry{Fn: fn, MinParams: min}
	}
	r.Register(spec)
}

var userClasses = []HandlerClass{ClassClient, ClassOper}
var userAndPreReg = []HandlerClass{ClassClient, ClassOper, ClassUnregistered}
var preRegClasses = []HandlerClass{ClassUnregistered}

// registerCommands wires the standard client-facing command surface into
// r. The TS6 burst/reconciliation surface (UID/EUID/SAVE/server-relayed
// NICK, SJOIN/TMODE/BMASK/EBMASK/MLOCK) is wired separately by
// registerNickEngine and registerSjoinEngine, and BATCH/MONITOR/the
// introspection numerics by registerBatchEngine, registerMonitorEngine,
// and registerIntrospectionEngine — all called from NewServer alongside
// this one. KILL/SQUIT/TAGMSG are wired by registerLinkEngine (linkcmd.go);
// the server-link handshake commands (SERVER/CAPAB/ENCAP) and the
// oper-auth surface (OPER/CHALLENGE/AUTHENTICATE) fall through
// dispatch.go's ERR_UNKNOWNCOMMAND path.
func registerCommands(r *Registry) {
	regAny(r, CmdPing, 0, userAndPreReg, handlePing)
	regAny(r, CmdPong, 0, userAndPreReg, handlePong)
	regAny(r, CmdCap, 1, userAndPreReg, handleCap)
	regAny(r, CmdPass, 1, preRegClasses, handlePass)
	regAny(r, CmdNick, 1, userAndPreReg, handleNick)
	regAny(r, CmdUser, 4, preRegClasses, handleUser)
	regAny(r, CmdQuit, 0, userAndPreReg, handleQuit)

	regAny(r, CmdJoin, 1, userClasses, handleJoin)
	regAny(r, CmdPart, 1, userClasses, handlePart)
	regAny(r, CmdTopic, 1, userClasses, handleTopic)
	regAny(r, CmdMode, 1, userClasses, handleMode)
	regAny(r, CmdKick, 2, userClasses, handleKick)
	regAny(r, CmdInvite, 2, userClasses, handleInvite)

	regAny(r, CmdPrivMsg, 2, userClasses, handlePrivmsg)
	regAny(r, CmdNotice, 2, userClasses, handleNotice)
	regAny(r, CmdAway, 0, userClasses, handleAway)
}

func handlePing(ctx *MessageContext) {
	c := ctx.Client
	token := EMPTY
	if len(ctx.Msg.Params) > 0 {
		token = ctx.Msg.Params[0]
	}
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.server.Name()
	msg.Command = CmdPong
	msg.Params = []string{c.server.Name(), token}
	c.WriteLine(msg.Render(c.caps.Acked))
	ctx.Handled()
}

func handlePong(ctx *MessageContext) {
	if lc := ctx.Client.lc; lc != nil && len(ctx.Msg.Params) > 0 {
		lc.lastPingRecv = ctx.Msg.Params[len(ctx.Msg.Params)-1]
	}
	ctx.Handled()
}

func handlePass(ctx *MessageContext) {
	ctx.Handled()
}

func handleCap(ctx *MessageContext) {
	c := ctx.Client
	sub := strings.ToUpper(ctx.Msg.Params[0])
	rest := EMPTY
	if len(ctx.Msg.Params) > 1 {
		rest = strings.Join(ctx.Msg.Params[1:], SPACE)
	}

	var reply string
	switch sub {
	case "LS":
		reply = c.caps.HandleLS(rest)
	case "LIST":
		reply = c.caps.HandleLIST()
	case "REQ":
		echo, ok := c.caps.HandleREQ(rest)
		verb := "ACK"
		if !ok {
			verb = "NAK"
		}
		reply = verb + " :" + echo
	case "END":
		c.caps.HandleEND()
		ctx.Handled()
		return
	default:
		c.ReplyInvalidCapCommand(sub)
		ctx.Handled()
		return
	}

	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.server.Name()
	msg.Command = CmdCap
	nick := c.replyNick()
	fields := strings.SplitN(reply, " :", 2)
	params := []string{nick, fields[0]}
	if len(fields) > 1 {
		params = append(params, fields[1])
	}
	msg.Params = params
	c.WriteLine(msg.Render(^CapMask(0)))
	ctx.Handled()
}

func handleNick(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	newNick := ctx.Msg.Params[0]

	if len(newNick) > srv.Config().Limits.MaxNickLength {
		newNick = newNick[:srv.Config().Limits.MaxNickLength]
	}

	if existing, ok := srv.Clients.ByNick(newNick); ok && existing != c {
		c.sendNumeric(ReplyNicknameInUse, []string{c.replyNick(), newNick}, ErrNickInUse.Error())
		ctx.Handled()
		return
	}

	oldNick := c.Nick()
	wasRegistered := c.Registered()

	if wasRegistered {
		srv.Clients.Rename(oldNick, newNick)
	}
	c.SetNick(newNick)
	c.SetTSInfo(time.Now().Unix())

	if wasRegistered {
		announceNickChange(c, oldNick, newNick)
		srv.Hooks.Fire(hookNickChange, &NickChangeEvent{Client: c, OldNick: oldNick, NewNick: newNick})
	} else if c.Name() != EMPTY {
		completeRegistration(c)
	}

	ctx.Handled()
}

func announceNickChange(c *Client, oldNick, newNick string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = oldNick + "!" + c.Name() + "@" + c.Host()
	msg.Command = CmdNick
	msg.Params = []string{newNick}

	seen := map[string]struct{}{c.UID(): {}}
	c.WriteLine(msg.Render(c.caps.Acked))
	for _, chname := range c.Channels() {
		ch, ok := c.server.Channels.Get(chname)
		if !ok {
			continue
		}
		ch.ForEachLocalMember(func(m *Membership) {
			if _, dup := seen[m.Client.UID()]; dup {
				return
			}
			seen[m.Client.UID()] = struct{}{}
			m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
		})
	}
}

func handleUser(ctx *MessageContext) {
	c := ctx.Client
	if c.Registered() {
		c.sendNumeric(ReplyAlreadyRegistered, []string{c.replyNick()}, ErrUserAreadySet.Error())
		ctx.Handled()
		return
	}
	params := ctx.Msg.Params
	c.SetName(params[0])
	c.SetRealname(params[len(params)-1])

	if c.Nick() != EMPTY {
		completeRegistration(c)
	}
	ctx.Handled()
}

// completeRegistration finishes NICK/USER registration: indexes the
// client, assigns its UID if this server didn't already, marks it
// registered, and sends the welcome burst.
func completeRegistration(c *Client) {
	srv := c.server
	if c.IsLocal() {
		if ok, reason := srv.checkAuth(c); !ok {
			c.ReplyError(reason)
			srv.exitClient(c, reason)
			return
		}
	}
	if c.UID() == EMPTY {
		c.uid = srv.SID() + c.Nick()
	}
	c.sid = srv.SID()
	c.SetRegistered(true)
	srv.Clients.Add(c)
	srv.Hooks.Fire(hookClientRegister, c)

	c.ReplyWelcome()
	c.ReplyISupport()
}

func handleQuit(ctx *MessageContext) {
	c := ctx.Client
	reason := "Client Quit"
	if len(ctx.Msg.Params) > 0 {
		reason = ctx.Msg.Params[0]
	}
	c.server.exitClient(c, reason)
	ctx.Handled()
}

func handleJoin(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	channels := strings.Split(ctx.Msg.Params[0], ",")
	var keys []string
	if len(ctx.Msg.Params) > 1 {
		keys = strings.Split(ctx.Msg.Params[1], ",")
	}

	for i, name := range channels {
		if name == EMPTY || (name[0] != '#' && name[0] != '&') {
			continue
		}
		key := EMPTY
		if i < len(keys) {
			key = keys[i]
		}
		joinOneChannel(c, srv, name, key)
	}
	ctx.Handled()
}

func joinOneChannel(c *Client, srv *Server, name, key string) {
	if c.ChannelCount() >= srv.Config().Limits.MaxJoinedChans {
		return
	}

	ch, existed := srv.Channels.Get(name)
	if !existed {
		ch = NewChannel(name, time.Now().Unix(), srv.ModeTable, srv.Config().Limits.MaxListItems)
		srv.Channels.Add(ch)
	}

	if _, already := ch.Member(c.UID()); already {
		return
	}

	if existed && ch.Key() != EMPTY && ch.Key() != key {
		c.sendNumeric(ReplyBadChannelPass, []string{c.replyNick(), name}, "Cannot join channel (+k)")
		return
	}
	if existed && ch.Limit() > 0 && ch.MemberCount() >= ch.Limit() {
		c.sendNumeric(ReplyChannelIsFull, []string{c.replyNick(), name}, "Cannot join channel (+l)")
		return
	}
	if existed && ch.HasMode(modeChanInviteOnly) && !ch.Invited(c.Nick()) {
		c.sendNumeric(ReplyInviteOnlyChan, []string{c.replyNick(), name}, "Cannot join channel (+i)")
		return
	}

	flags := MemberFlag(0)
	if !existed {
		flags = MemberOp
	}
	m := &Membership{Client: c, Channel: ch}
	m.SetFlags(flags)
	ch.AddMember(m)
	ch.ClearInvite(c.Nick())
	c.AddMembership(name, m)

	announceJoin(c, ch)
	c.ReplyChannelTopic(ch)
	c.ReplyChannelNames(ch)
	srv.Hooks.Fire(hookChannelJoin, &JoinEvent{Channel: ch, Member: m})
}

func announceJoin(c *Client, ch *Channel) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdJoin
	msg.Params = []string{ch.Name()}

	ch.ForEachLocalMember(func(m *Membership) {
		m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
	})
}

func handlePart(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	reason := EMPTY
	if len(ctx.Msg.Params) > 1 {
		reason = ctx.Msg.Params[1]
	}

	for _, name := range strings.Split(ctx.Msg.Params[0], ",") {
		ch, ok := srv.Channels.Get(name)
		if !ok {
			c.ReplyNoSuchChan(name)
			continue
		}
		if _, joined := ch.Member(c.UID()); !joined {
			continue
		}

		announcePart(c, ch, reason)
		srv.Hooks.Fire(hookChannelPart, &PartEvent{Channel: ch, Client: c, Reason: reason})
		ch.RemoveMember(c.UID())
		c.RemoveMembership(name)
		if ch.Empty() && !ch.HasMode(modeChanPermanent) {
			srv.Channels.Remove(name)
		}
	}
	ctx.Handled()
}

func announcePart(c *Client, ch *Channel, reason string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdPart
	if reason != EMPTY {
		msg.Params = []string{ch.Name(), reason}
	} else {
		msg.Params = []string{ch.Name()}
	}

	ch.ForEachLocalMember(func(m *Membership) {
		m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
	})
}

func handleTopic(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	name := ctx.Msg.Params[0]
	ch, ok := srv.Channels.Get(name)
	if !ok {
		c.ReplyNoSuchChan(name)
		ctx.Handled()
		return
	}

	if len(ctx.Msg.Params) < 2 {
		c.ReplyChannelTopic(ch)
		ctx.Handled()
		return
	}

	m, joined := ch.Member(c.UID())
	if !joined {
		ctx.Handled()
		return
	}
	if ch.HasMode(modeChanTopicLock) && m.AccessLevel() < chmode.AccessOp {
		c.sendNumeric(ReplyChanOpPrivsNeeded, []string{c.replyNick(), name}, ErrChanOpPrivsNeeded.Error())
		ctx.Handled()
		return
	}

	text := ctx.Msg.Params[1]
	ch.SetTopic(text, c.Hostmask(), time.Now().Unix())
	announceTopic(c, ch, text)
	ctx.Handled()
}

func announceTopic(c *Client, ch *Channel, text string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdTopic
	msg.Params = []string{ch.Name(), text}

	ch.ForEachLocalMember(func(m *Membership) {
		m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
	})
}

func handleMode(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	target := ctx.Msg.Params[0]

	if target[0] != '#' && target[0] != '&' {
		handleUserMode(ctx, target)
		return
	}

	ch, ok := srv.Channels.Get(target)
	if !ok {
		c.ReplyNoSuchChan(target)
		ctx.Handled()
		return
	}

	if len(ctx.Msg.Params) < 2 {
		c.sendNumeric(ReplyChannelModeIs, []string{c.replyNick(), target}, renderModeIs(ch))
		ctx.Handled()
		return
	}

	modeStr := ctx.Msg.Params[1]
	var args []string
	if len(ctx.Msg.Params) > 2 {
		args = ctx.Msg.Params[2:]
	}
	rendered, renderedArgs, errs := applyChannelModes(ch, srv.ModeTable, c, modeStr, args, c.IsLocal())
	for _, err := range errs {
		c.ReplyError(err.Error())
	}
	if rendered != EMPTY {
		announceMode(c, ch, rendered, renderedArgs)
	}
	ctx.Handled()
}

func renderModeIs(ch *Channel) string {
	var b strings.Builder
	b.WriteByte('+')
	for char, bit := range simpleModeBits {
		if ch.HasMode(bit) {
			b.WriteRune(char)
		}
	}
	return b.String()
}

func announceMode(c *Client, ch *Channel, modeStr string, args []string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdMode
	msg.Params = append([]string{ch.Name(), modeStr}, args...)

	ch.ForEachLocalMember(func(m *Membership) {
		m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
	})
}

// handleUserMode services MODE <nick> [+/-modes] against the umode
// bitset, reusing SetUserMode/UnsetUserMode for the per-mode rank checks.
func handleUserMode(ctx *MessageContext, targetNick string) {
	c, srv := ctx.Client, ctx.Client.server

	target, ok := srv.Clients.ByNick(targetNick)
	if !ok {
		c.ReplyNoSuchNick(targetNick)
		ctx.Handled()
		return
	}

	if len(ctx.Msg.Params) < 2 {
		c.sendNumeric(ReplyUserModeIs, []string{c.replyNick()}, renderUserModeIs(target))
		ctx.Handled()
		return
	}

	dir := chmode.Set
	var applied strings.Builder
	for _, r := range ctx.Msg.Params[1] {
		switch r {
		case '+':
			dir = chmode.Set
			continue
		case '-':
			dir = chmode.Unset
			continue
		}

		bit, known := userModeChars[r]
		if !known {
			c.sendNumeric(ReplyUnknownUserMode, []string{c.replyNick(), string(r)}, "is unknown mode char to me")
			continue
		}

		var err error
		if dir == chmode.Set {
			err = SetUserMode(bit, c, target)
		} else {
			err = UnsetUserMode(bit, c, target)
		}
		if err != nil {
			continue
		}
		applied.WriteByte(byte(dirChar(dir)))
		applied.WriteRune(r)
	}

	if applied.Len() > 0 {
		announceUserMode(c, target, applied.String())
	}
	ctx.Handled()
}

func dirChar(dir chmode.Direction) rune {
	if dir == chmode.Unset {
		return '-'
	}
	return '+'
}

func renderUserModeIs(c *Client) string {
	var b strings.Builder
	b.WriteByte('+')
	for char, bit := range userModeChars {
		if c.HasUserMode(bit) {
			b.WriteRune(char)
		}
	}
	return b.String()
}

func announceUserMode(setter, target *Client, modeStr string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = setter.Hostmask()
	msg.Command = CmdMode
	msg.Params = []string{target.Nick(), modeStr}
	target.WriteLine(msg.Render(target.caps.Acked))
}

func handleKick(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	name, targetNick := ctx.Msg.Params[0], ctx.Msg.Params[1]
	reason := c.Nick()
	if len(ctx.Msg.Params) > 2 {
		reason = ctx.Msg.Params[2]
	}

	ch, ok := srv.Channels.Get(name)
	if !ok {
		c.ReplyNoSuchChan(name)
		ctx.Handled()
		return
	}
	kicker, joined := ch.Member(c.UID())
	if !joined || kicker.AccessLevel() < chmode.AccessHalfop {
		c.sendNumeric(ReplyChanOpPrivsNeeded, []string{c.replyNick(), name}, ErrChanOpPrivsNeeded.Error())
		ctx.Handled()
		return
	}

	target, ok := srv.Clients.ByNick(targetNick)
	if !ok {
		c.ReplyNoSuchNick(targetNick)
		ctx.Handled()
		return
	}
	if _, joined := ch.Member(target.UID()); !joined {
		ctx.Handled()
		return
	}

	announceKick(c, ch, target, reason)
	ch.RemoveMember(target.UID())
	target.RemoveMembership(name)
	if ch.Empty() && !ch.HasMode(modeChanPermanent) {
		srv.Channels.Remove(name)
	}
	ctx.Handled()
}

func announceKick(c *Client, ch *Channel, target *Client, reason string) {
	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdKick
	msg.Params = []string{ch.Name(), target.Nick(), reason}

	ch.ForEachLocalMember(func(m *Membership) {
		m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
	})
}

func handleInvite(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	targetNick, name := ctx.Msg.Params[0], ctx.Msg.Params[1]

	ch, ok := srv.Channels.Get(name)
	if ok {
		if m, joined := ch.Member(c.UID()); !joined || m.AccessLevel() < chmode.AccessHalfop {
			c.sendNumeric(ReplyChanOpPrivsNeeded, []string{c.replyNick(), name}, ErrChanOpPrivsNeeded.Error())
			ctx.Handled()
			return
		}
		ch.Invite(targetNick)
	}

	target, ok := srv.Clients.ByNick(targetNick)
	if !ok {
		c.ReplyNoSuchNick(targetNick)
		ctx.Handled()
		return
	}

	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = CmdInvite
	msg.Params = []string{targetNick, name}
	target.WriteLine(msg.Render(target.caps.Acked))

	c.sendNumeric(ReplyInviting, []string{c.replyNick(), targetNick, name}, EMPTY)
	ctx.Handled()
}

func handlePrivmsg(ctx *MessageContext) { relayMessage(ctx, CmdPrivMsg) }
func handleNotice(ctx *MessageContext)  { relayMessage(ctx, CmdNotice) }

func relayMessage(ctx *MessageContext, command string) {
	c, srv := ctx.Client, ctx.Client.server
	target, text := ctx.Msg.Params[0], ctx.Msg.Params[1]

	msg := msgbufPool.New()
	defer msgbufPool.Recycle(msg)
	msg.Tags = NewTags()
	msg.Origin = c.Hostmask()
	msg.Command = command
	msg.Params = []string{target, text}

	if target[0] == '#' || target[0] == '&' {
		ch, ok := srv.Channels.Get(target)
		if !ok {
			if command == CmdPrivMsg {
				c.ReplyNoSuchChan(target)
			}
			ctx.Handled()
			return
		}
		ch.ForEachLocalMember(func(m *Membership) {
			if m.Client.UID() == c.UID() {
				return
			}
			m.Client.WriteLine(msg.Render(m.Client.caps.Acked))
		})
		ctx.Handled()
		return
	}

	tc, ok := srv.Clients.ByNick(target)
	if !ok {
		if command == CmdPrivMsg {
			c.ReplyNoSuchNick(target)
		}
		ctx.Handled()
		return
	}
	srv.deliver(tc, msg)
	ctx.Handled()
}

func handleAway(ctx *MessageContext) {
	c := ctx.Client
	msg := EMPTY
	if len(ctx.Msg.Params) > 0 {
		msg = ctx.Msg.Params[0]
	}
	c.SetAway(msg)
	if msg == EMPTY {
		c.sendNumeric(ReplyUnAway, []string{c.replyNick()}, "You are no longer marked as being away")
	} else {
		c.sendNumeric(ReplyNowAway, []string{c.replyNick()}, "You have been marked as being away")
	}
	ctx.Handled()
}
