/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strings"

	"github.com/solanum-go/ircd/internal/hook"
)

// registerMonitorEngine wires MONITOR and the signon/signoff notifications
// that drive it, keyed throughout by UID (not nick, since a nick can
// change across a session — see conn.go's exitClient).
func registerMonitorEngine(srv *Server, r *Registry) {
	regAny(r, CmdMonitor, 1, userClasses, handleMonitor)

	srv.Hooks.Attach(hookClientRegister, "monitor-signon", 0, func(ev *hook.Event) error {
		if c, ok := ev.Data.(*Client); ok {
			notifyMonitors(srv, c, true)
		}
		return nil
	})
	srv.Hooks.Attach(hookClientExit, "monitor-signoff", 0, func(ev *hook.Event) error {
		if c, ok := ev.Data.(*Client); ok {
			notifyMonitors(srv, c, false)
		}
		return nil
	})
}

func handleMonitor(ctx *MessageContext) {
	c, srv := ctx.Client, ctx.Client.server
	sub := strings.ToUpper(ctx.Msg.Params[0])

	switch sub {
	case "+":
		if len(ctx.Msg.Params) < 2 {
			c.ReplyNeedMoreParams(CmdMonitor)
			break
		}
		addMonitorTargets(c, srv, strings.Split(ctx.Msg.Params[1], ","))
	case "-":
		if len(ctx.Msg.Params) < 2 {
			c.ReplyNeedMoreParams(CmdMonitor)
			break
		}
		for _, nick := range strings.Split(ctx.Msg.Params[1], ",") {
			srv.Monitors.Remove(c.UID(), nick)
		}
	case "C":
		srv.Monitors.Clear(c.UID())
	case "L":
		listMonitorTargets(c, srv)
	case "S":
		statusMonitorTargets(c, srv)
	default:
		c.ReplyUnknownCommand(CmdMonitor)
	}
	ctx.Handled()
}

func addMonitorTargets(c *Client, srv *Server, nicks []string) {
	for _, nick := range nicks {
		if nick == EMPTY {
			continue
		}
		if !srv.Monitors.Add(c.UID(), nick) {
			c.sendNumeric(ReplyMonListIsFull, []string{c.replyNick(), nick}, "Monitor list is full")
			return
		}
		if target, online := srv.Clients.ByNick(nick); online {
			c.sendNumeric(ReplyMonOnline, []string{c.replyNick()}, target.Hostmask())
		} else {
			c.sendNumeric(ReplyMonOffline, []string{c.replyNick()}, nick)
		}
	}
}

func listMonitorTargets(c *Client, srv *Server) {
	for _, nick := range srv.Monitors.List(c.UID()) {
		c.sendNumeric(ReplyMonList, []string{c.replyNick()}, nick)
	}
	c.sendNumeric(ReplyEndOfMonList, []string{c.replyNick()}, "End of MONITOR list")
}

func statusMonitorTargets(c *Client, srv *Server) {
	for _, nick := range srv.Monitors.List(c.UID()) {
		if target, online := srv.Clients.ByNick(nick); online {
			c.sendNumeric(ReplyMonOnline, []string{c.replyNick()}, target.Hostmask())
		} else {
			c.sendNumeric(ReplyMonOffline, []string{c.replyNick()}, nick)
		}
	}
}

// notifyMonitors tells every local client watching nick that its owner
// just signed on or off, the consumer of monitor.Service.Watchers.
func notifyMonitors(srv *Server, c *Client, online bool) {
	nick := c.Nick()
	if nick == EMPTY {
		return
	}
	code := uint16(ReplyMonOffline)
	trailing := nick
	if online {
		code = ReplyMonOnline
		trailing = c.Hostmask()
	}
	for _, watcherUID := range srv.Monitors.Watchers(nick) {
		watcher, ok := srv.Clients.ByUID(watcherUID)
		if !ok || !watcher.IsLocal() {
			continue
		}
		watcher.sendNumeric(code, []string{watcher.replyNick()}, trailing)
	}
}
