/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"net"
	"net/netip"

	"github.com/solanum-go/ircd/internal/config"
	"github.com/solanum-go/ircd/internal/hostmask"
)

// populateHostIndex loads every configured auth{} block into the server's
// hostmask index, the piece HostIndex previously had no caller for. K-line
// and D-line file loading (cfg.KlinePath/DlinePath) is not yet implemented;
// only config-declared auth blocks are indexed.
func populateHostIndex(idx *hostmask.Index, cfg *config.Config) {
	for i := range cfg.Auths {
		block := &cfg.Auths[i]
		rec := &hostmask.Record{Type: hostmask.TypeAuth, Data: block}
		for _, pattern := range block.Hostmasks {
			if prefix, err := netip.ParsePrefix(pattern); err == nil {
				idx.AddCIDR(prefix, rec)
				continue
			}
			if addr, err := netip.ParseAddr(pattern); err == nil {
				idx.AddCIDR(netip.PrefixFrom(addr, addr.BitLen()), rec)
				continue
			}
			idx.AddHostname(pattern, rec)
		}
	}
}

// checkDline rejects a freshly-accepted connection against the D-line
// table before any client state is built for it, the insertion point
// spec §4.9 calls for at the top of the accept loop.
func (server *Server) checkDline(conn net.Conn) bool {
	tcp, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return false
	}
	addr, ok := netip.AddrFromSlice(tcp.IP)
	if !ok {
		return false
	}
	return server.HostIndex.ResolveDline(addr) != nil
}

// checkAuth resolves the auth{}/K-line verdict for a client completing
// registration, the post-NICK/USER insertion point spec §4.9 calls for.
// An absent auth block or a winning K-line both reject the connection.
func (server *Server) checkAuth(c *Client) (ok bool, reason string) {
	res := server.HostIndex.ResolveAuth(c.Addr(), c.Host(), c.Name(), c.Host(), false, false)
	if res.Auth == nil {
		return false, "No authorization block for your host"
	}
	if res.KlineWins {
		reason = "You are banned from this server"
		if res.Kline != nil && res.Kline.Reason != EMPTY {
			reason = res.Kline.Reason
		}
		return false, reason
	}
	if block, ok := res.Auth.Data.(*config.AuthBlock); ok {
		if block.Spoof != EMPTY {
			c.SetVanityHost(block.Spoof, true)
		}
	}
	return true, EMPTY
}
