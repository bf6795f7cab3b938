/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package dircd

import (
	"bytes"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/solanum-go/ircd/internal/privilege"
)

// Kind distinguishes the four client roles a UID/nick table entry may
// hold, generalizing the teacher's single User struct (which only ever
// modeled a local human user) across the full TS6 client space.
type Kind int

const (
	KindUnregistered Kind = iota
	KindUser
	KindServer
	KindService
)

// Locality distinguishes a directly-connected client/peer from one only
// known by propagation from another server.
type Locality int

const (
	Local Locality = iota
	Remote
)

// Client holds all state in the context of one network entity: a
// connecting socket before registration, a local or remote user, or a
// local or remote server link. Generalized from the teacher's User (see
// user.go) to the full TS6 Client data model (spec §3), keeping its
// sync.RWMutex-guarded getter/setter idiom throughout.
type Client struct {
	sync.RWMutex

	kind     Kind
	locality Locality

	uid  string
	sid  string
	nick string

	name       string
	host       string
	origHost   string
	addr       netip.Addr
	real       string
	vanityHost string
	vanityOn   bool

	userModes   uint64
	snomask     uint64
	serverCaps  uint32 // burst.Capability bitmask, peers only
	privileges  *privilege.Set
	away        string
	tsinfo      int64
	lastMsgTime time.Time

	registered bool

	acceptList   map[string]struct{} // nicks this user has silenced/accepted
	onAllowList  map[string]struct{} // reverse index: who has accepted this user
	channels     map[string]*Membership

	server *Server // owning Server instance; nil only in isolated tests

	// Local-only fields.
	conn           net.Conn
	sendq          *bytes.Buffer
	sendqMax       int
	floodLines     int
	floodWindow    time.Time
	pendingBatches []string
	saslMech       SASLMech
	saslInProgress bool
	certfp         string
	monitoring     []string
	lastNickChange time.Time
	nickChangeHits int
	caps           CapSession
	lc             *localConn
}

// NewLocalClient wraps an accepted connection as an unregistered local
// client, mirroring the teacher's Conn-at-accept-time construction.
func NewLocalClient(conn net.Conn, srv *Server, sendqMax int) *Client {
	c := &Client{
		kind:        KindUnregistered,
		locality:    Local,
		conn:        conn,
		server:      srv,
		sendq:       &bytes.Buffer{},
		sendqMax:    sendqMax,
		channels:    make(map[string]*Membership),
		acceptList:  make(map[string]struct{}),
		onAllowList: make(map[string]struct{}),
		tsinfo:      time.Now().Unix(),
	}
	if tcp, ok := conn.RemoteAddr().(*net.TCPAddr); ok {
		if a, ok2 := netip.AddrFromSlice(tcp.IP); ok2 {
			c.addr = a
		}
		c.host = tcp.IP.String()
		c.origHost = c.host
	}
	return c
}

// NewRemoteUser constructs a propagated remote user entry from a
// UID/EUID burst line, never owning a socket.
func NewRemoteUser(uid, sid, nick, name, host, real string, srv *Server) *Client {
	return &Client{
		kind:        KindUser,
		locality:    Remote,
		uid:         uid,
		sid:         sid,
		nick:        nick,
		name:        name,
		host:        host,
		origHost:    host,
		real:        real,
		server:      srv,
		channels:    make(map[string]*Membership),
		acceptList:  make(map[string]struct{}),
		onAllowList: make(map[string]struct{}),
		registered:  true,
		tsinfo:      time.Now().Unix(),
	}
}

// Registered reports whether the client has completed NICK/USER (or, for
// peers, the SERVER handshake).
func (c *Client) Registered() bool {
	c.RLock()
	defer c.RUnlock()
	return c.registered
}

// SetRegistered marks registration complete.
func (c *Client) SetRegistered(v bool) {
	c.Lock()
	defer c.Unlock()
	c.registered = v
}

// IsServer reports whether this Client represents a server link (local
// or remote), as opposed to a user.
func (c *Client) IsServer() bool {
	c.RLock()
	defer c.RUnlock()
	return c.kind == KindServer
}

// IsRemoteUser reports whether this Client is a user propagated from
// another server rather than directly connected here.
func (c *Client) IsRemoteUser() bool {
	c.RLock()
	defer c.RUnlock()
	return c.kind == KindUser && c.locality == Remote
}

// IsLocal reports whether this Client owns a direct connection.
func (c *Client) IsLocal() bool {
	c.RLock()
	defer c.RUnlock()
	return c.locality == Local
}

// IsOper reports whether the client holds any granted privileges.
func (c *Client) IsOper() bool {
	c.RLock()
	defer c.RUnlock()
	return c.privileges != nil && len(c.privileges.Names()) > 0
}

// Privileges returns the client's current privilege set, or an empty one
// if none has been granted.
func (c *Client) Privileges() *privilege.Set {
	c.RLock()
	defer c.RUnlock()
	if c.privileges == nil {
		return privilege.NewSet(nil)
	}
	return c.privileges
}

// SetPrivileges replaces the client's privilege set wholesale, used by
// the privilege registry's rehash diff path.
func (c *Client) SetPrivileges(set *privilege.Set) {
	c.Lock()
	defer c.Unlock()
	c.privileges = set
}

// UID returns the client's nine-byte network-unique identifier.
func (c *Client) UID() string {
	c.RLock()
	defer c.RUnlock()
	return c.uid
}

// SID returns the server ID the client is homed on.
func (c *Client) SID() string {
	c.RLock()
	defer c.RUnlock()
	return c.sid
}

// Nick returns the client's current nickname.
func (c *Client) Nick() string {
	c.RLock()
	defer c.RUnlock()
	return c.nick
}

// SetNick assigns a new nickname, called by handleNick
// (commands_register.go) and the nick engine (nick.go) after collision
// checks and index updates have already succeeded.
func (c *Client) SetNick(nick string) {
	c.Lock()
	defer c.Unlock()
	c.nick = nick
}

// Name returns the client's username (ident).
func (c *Client) Name() string {
	c.RLock()
	defer c.RUnlock()
	return c.name
}

// SetName sets the client's username.
func (c *Client) SetName(name string) {
	c.Lock()
	defer c.Unlock()
	c.name = name
}

// Host returns the client's currently visible hostname (post-cloak).
func (c *Client) Host() string {
	c.RLock()
	defer c.RUnlock()
	if c.vanityOn && c.vanityHost != EMPTY {
		return c.vanityHost
	}
	return c.host
}

// SetHost sets the client's visible hostname.
func (c *Client) SetHost(host string) {
	c.Lock()
	defer c.Unlock()
	c.host = host
}

// OrigHost returns the client's original (uncloaked) hostname.
func (c *Client) OrigHost() string {
	c.RLock()
	defer c.RUnlock()
	return c.origHost
}

// Addr returns the client's IP socket address.
func (c *Client) Addr() netip.Addr {
	c.RLock()
	defer c.RUnlock()
	return c.addr
}

// Realname returns the client's GECOS field.
func (c *Client) Realname() string {
	c.RLock()
	defer c.RUnlock()
	return c.real
}

// SetRealname sets the client's GECOS field.
func (c *Client) SetRealname(real string) {
	c.Lock()
	defer c.Unlock()
	c.real = real
}

// SetVanityHost sets the cloaked hostname and whether it is currently
// in effect.
func (c *Client) SetVanityHost(host string, enabled bool) {
	c.Lock()
	defer c.Unlock()
	c.vanityHost = host
	c.vanityOn = enabled
}

// Hostmask renders "nick!user@host" using the currently visible host.
func (c *Client) Hostmask() string {
	return c.Nick() + "!" + c.Name() + "@" + c.Host()
}

// RealHostmask renders "nick!user@host" using the uncloaked host,
// regardless of vanity-host state.
func (c *Client) RealHostmask() string {
	c.RLock()
	defer c.RUnlock()
	return c.nick + "!" + c.name + "@" + c.origHost
}

// UserModes returns the client's current user-mode bitset.
func (c *Client) UserModes() uint64 {
	c.RLock()
	defer c.RUnlock()
	return c.userModes
}

// AddUserMode sets the given user-mode bits.
func (c *Client) AddUserMode(mode uint64) {
	c.Lock()
	defer c.Unlock()
	c.userModes |= mode
}

// DelUserMode clears the given user-mode bits.
func (c *Client) DelUserMode(mode uint64) {
	c.Lock()
	defer c.Unlock()
	c.userModes &^= mode
}

// HasUserMode reports whether every bit in mode is currently set.
func (c *Client) HasUserMode(mode uint64) bool {
	c.RLock()
	defer c.RUnlock()
	return c.userModes&mode == mode
}

// Away returns the client's away message, or empty if not away.
func (c *Client) Away() string {
	c.RLock()
	defer c.RUnlock()
	return c.away
}

// SetAway sets or clears (via empty string) the away message.
func (c *Client) SetAway(msg string) {
	c.Lock()
	defer c.Unlock()
	c.away = msg
}

// TSInfo returns the client's connect/nick-set timestamp, used by SAVE
// collision resolution (nick.go).
func (c *Client) TSInfo() int64 {
	c.RLock()
	defer c.RUnlock()
	return c.tsinfo
}

// SetTSInfo overwrites the timestamp, used when a nick change resets it.
func (c *Client) SetTSInfo(ts int64) {
	c.Lock()
	defer c.Unlock()
	c.tsinfo = ts
}

// Membership returns the client's membership record for a channel, if
// currently joined.
func (c *Client) Membership(channel string) (*Membership, bool) {
	c.RLock()
	defer c.RUnlock()
	m, ok := c.channels[channel]
	return m, ok
}

// AddMembership records a new membership, called by joinOneChannel
// (commands_register.go) and joinBurstMember (sjoin.go) under the
// channel's own lock ordering (channel before client).
func (c *Client) AddMembership(channel string, m *Membership) {
	c.Lock()
	defer c.Unlock()
	c.channels[channel] = m
}

// RemoveMembership drops a membership, called by the part/kick/quit path.
func (c *Client) RemoveMembership(channel string) {
	c.Lock()
	defer c.Unlock()
	delete(c.channels, channel)
}

// ChannelCount reports how many channels the client currently occupies,
// checked against config.MaxJoinedChans by the JOIN handler.
func (c *Client) ChannelCount() int {
	c.RLock()
	defer c.RUnlock()
	return len(c.channels)
}

// Channels returns a snapshot of the client's joined channel names.
func (c *Client) Channels() []string {
	c.RLock()
	defer c.RUnlock()
	names := make([]string, 0, len(c.channels))
	for name := range c.channels {
		names = append(names, name)
	}
	return names
}

// Accept adds nick to the client's accept_list (post-+g silence exempt
// list / accept-list per spec §3).
func (c *Client) Accept(nick string) {
	c.Lock()
	defer c.Unlock()
	c.acceptList[nick] = struct{}{}
}

// Accepts reports whether nick is on the client's accept_list.
func (c *Client) Accepts(nick string) bool {
	c.RLock()
	defer c.RUnlock()
	_, ok := c.acceptList[nick]
	return ok
}

// RemoteAddr exposes the underlying connection's remote address for
// logging; nil for remote clients with no local socket.
func (c *Client) RemoteAddr() net.Addr {
	c.RLock()
	defer c.RUnlock()
	if c.conn == nil {
		return nil
	}
	return c.conn.RemoteAddr()
}
