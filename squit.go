/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

// Squit tears down a server-class client's peer link: it broadcasts
// SQUIT to remaining peers, drops every client whose SID matches the
// departing link (and the departing server entry itself) from the
// client index, removes the peer from the server index, and closes the
// underlying connection. Called either for a genuine SQUIT command or,
// per dispatch.go's step 4, when a server-class peer sends a message
// with too few parameters for its class.
func (c *Client) Squit(reason string) {
	srv := c.server
	if srv == nil {
		return
	}
	sid := c.SID()

	msg := msgbufPool.New()
	msg.Tags = NewTags()
	msg.Origin = srv.Name()
	msg.Command = CmdSquit
	msg.Params = []string{sid, reason}
	defer msgbufPool.Recycle(msg)

	var departing []*Client
	srv.Clients.ForEach(func(other *Client) {
		if other.SID() == sid {
			departing = append(departing, other)
		}
	})

	for _, dc := range departing {
		for _, chname := range dc.Channels() {
			if ch, ok := srv.Channels.Get(chname); ok {
				srv.broadcastQuit(dc, ch, reason)
				ch.RemoveMember(dc.UID())
				if ch.Empty() && !ch.HasMode(modeChanPermanent) {
					srv.Channels.Remove(chname)
				}
			}
		}
		srv.Clients.Remove(dc)
	}

	srv.Servers.ForEach(func(p *Peer) {
		if p.SID() != sid {
			p.WriteLine(msg.Render(^CapMask(0)))
		}
	})

	if peer, ok := srv.Servers.ByUID(sid); ok {
		peer.Close()
		srv.Servers.Remove(sid)
	}

	if c.lc != nil {
		select {
		case c.lc.kill <- true:
		default:
		}
	}
}
