/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"fmt"
	"path/filepath"
	"strings"
)

// registerIntrospectionEngine wires the read-only introspection surface:
// WHO, WHOIS, TRACE, VERSION, INFO, MOTD, ADMIN, STATS.
func registerIntrospectionEngine(r *Registry) {
	regAny(r, CmdWho, 0, userClasses, handleWho)
	regAny(r, CmdWhois, 1, userClasses, handleWhois)
	regAny(r, CmdTrace, 0, userClasses, handleTrace)
	regAny(r, CmdVersion, 0, userClasses, handleVersion)
	regAny(r, CmdInfo, 0, userClasses, handleInfo)
	regAny(r, CmdMotd, 0, userClasses, handleMotd)
	regAny(r, CmdAdmin, 0, userClasses, handleAdmin)
	regAny(r, CmdStats, 0, userClasses, handleStats)
}

// handleWho implements WHO <mask>: a channel name lists its members, any
// other mask glob-matches against nick, username, visible host, and
// realname.
func handleWho(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	mask := "*"
	if len(ctx.Msg.Params) > 0 && ctx.Msg.Params[0] != EMPTY {
		mask = ctx.Msg.Params[0]
	}

	if mask[0] == '#' || mask[0] == '&' {
		if ch, ok := srv.Channels.Get(mask); ok {
			ch.ForEachMember(func(m *Membership) {
				sendWhoLine(c, mask, m.Client, m.Prefix())
			})
		}
		c.sendNumeric(ReplyEndOfWho, []string{c.replyNick(), mask}, "End of /WHO list.")
		ctx.Handled()
		return
	}

	srv.Clients.ForEach(func(target *Client) {
		if target.IsServer() {
			return
		}
		if whoMaskMatches(mask, target) {
			sendWhoLine(c, "*", target, EMPTY)
		}
	})
	c.sendNumeric(ReplyEndOfWho, []string{c.replyNick(), mask}, "End of /WHO list.")
	ctx.Handled()
}

func whoMaskMatches(mask string, target *Client) bool {
	for _, field := range []string{target.Nick(), target.Name(), target.Host(), target.Realname()} {
		if ok, _ := filepath.Match(mask, field); ok {
			return true
		}
	}
	return mask == "*"
}

func sendWhoLine(c *Client, channel string, target *Client, prefix string) {
	flags := "H"
	if target.Away() != EMPTY {
		flags = "G"
	}
	if target.IsOper() {
		flags += "*"
	}
	flags += prefix

	c.sendNumeric(ReplyWho, []string{
		c.replyNick(), channel, target.Name(), target.Host(),
		target.server.Name(), target.Nick(), flags,
	}, "0 "+target.Realname())
}

// handleWhois implements WHOIS <nick>.
func handleWhois(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	nick := ctx.Msg.Params[0]

	target, ok := srv.Clients.ByNick(nick)
	if !ok {
		c.ReplyNoSuchNick(nick)
		ctx.Handled()
		return
	}

	c.sendNumeric(ReplyWhoisUser, []string{c.replyNick(), target.Nick(), target.Name(), target.Host(), "*"}, target.Realname())
	c.sendNumeric(ReplyWhoisServer, []string{c.replyNick(), target.Nick(), target.server.Name()}, srv.Network()+" server")
	if target.IsOper() {
		c.sendNumeric(ReplyWhoisOperator, []string{c.replyNick(), target.Nick()}, "is an IRC operator")
	}
	if away := target.Away(); away != EMPTY {
		c.sendNumeric(ReplyAway, []string{c.replyNick(), target.Nick()}, away)
	}
	if channels := target.Channels(); len(channels) > 0 {
		c.sendNumeric(ReplyWhoisChannels, []string{c.replyNick(), target.Nick()}, strings.Join(channels, " "))
	}
	c.sendNumeric(ReplyEndOfWhois, []string{c.replyNick(), target.Nick()}, "End of /WHOIS list.")
	ctx.Handled()
}

// handleTrace is a simplified TRACE: it only reports locally-connected
// clients, not a full link-path walk across peers.
func handleTrace(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	srv.Clients.ForEach(func(target *Client) {
		if !target.IsLocal() || target == c {
			return
		}
		class := ReplyTraceUser
		if target.IsOper() {
			class = ReplyTraceOperator
		}
		c.sendNumeric(uint16(class), []string{c.replyNick(), "User", "*"}, target.Nick()+" ["+target.Hostmask()+"]")
	})
	c.sendNumeric(ReplyEndOfTrace, []string{c.replyNick()}, "End of TRACE")
	ctx.Handled()
}

func handleVersion(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	c.sendNumeric(ReplyVersion, []string{c.replyNick(), "solanum-go-0.1", srv.Name()}, srv.Network())
	c.ReplyISupport()
	ctx.Handled()
}

func handleInfo(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	lines := []string{
		srv.Name() + " — " + srv.Network(),
		"Written in Go, grounded in the TS6 protocol family.",
	}
	for _, line := range lines {
		c.sendNumeric(ReplyInfo, []string{c.replyNick()}, line)
	}
	c.sendNumeric(ReplyEndOfInfo, []string{c.replyNick()}, "End of /INFO list.")
	ctx.Handled()
}

func handleMotd(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	motd := srv.Config().MOTD
	if len(motd) == 0 {
		c.sendNumeric(ReplyNoMOTD, []string{c.replyNick()}, "MOTD File is missing")
		ctx.Handled()
		return
	}
	c.sendNumeric(ReplyMOTDStart, []string{c.replyNick()}, "- "+srv.Name()+" Message of the Day -")
	for _, line := range motd {
		c.sendNumeric(ReplyMOTD, []string{c.replyNick()}, "- "+line)
	}
	c.sendNumeric(ReplyEndOFMOTD, []string{c.replyNick()}, "End of /MOTD command.")
	ctx.Handled()
}

func handleAdmin(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	cfg := srv.Config()
	c.sendNumeric(ReplyAdminInfoStart, []string{c.replyNick(), srv.Name()}, "Administrative info about "+srv.Name())
	c.sendNumeric(ReplyAdminInfo1, []string{c.replyNick()}, cfg.Description)
	c.sendNumeric(ReplyAdminInfo2, []string{c.replyNick()}, cfg.AdminName)
	c.sendNumeric(ReplyAdminEmail, []string{c.replyNick()}, cfg.AdminEmail)
	ctx.Handled()
}

// handleStats is a simplified STATS: only 'u' (uptime) and 'c' (connection
// count) queries are served; every other query letter returns immediately
// with just the end-of-stats numeric, since this server carries no
// link/class/kline tables yet.
func handleStats(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	query := "u"
	if len(ctx.Msg.Params) > 0 && ctx.Msg.Params[0] != EMPTY {
		query = ctx.Msg.Params[0]
	}

	switch query {
	case "u":
		up := srv.Uptime()
		days := int(up.Hours()) / 24
		hrs := int(up.Hours()) % 24
		mins := int(up.Minutes()) % 60
		secs := int(up.Seconds()) % 60
		c.sendNumeric(ReplyStatsUptime, []string{c.replyNick()},
			fmt.Sprintf("Server Up %d days, %02d:%02d:%02d", days, hrs, mins, secs))
	case "c":
		local := 0
		srv.Clients.ForEach(func(other *Client) {
			if other.IsLocal() && !other.IsServer() {
				local++
			}
		})
		c.sendNumeric(ReplyStatsCLine, []string{c.replyNick()}, fmt.Sprintf("%d local clients", local))
	}
	c.sendNumeric(ReplyEndOfStats, []string{c.replyNick(), query}, "End of /STATS report")
	ctx.Handled()
}
