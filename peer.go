/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"bufio"
	"net"
	"sync"

	"github.com/solanum-go/ircd/internal/burst"
	"github.com/solanum-go/ircd/internal/cmap"
)

// Peer represents one directly or transitively linked server, tracked
// separately from Client (which models a server only as a Kind ==
// KindServer entry in the client/UID space for numeric routing). Peer
// carries the link-level state: the link's net.Conn and its buffered
// writer.
type Peer struct {
	mu sync.RWMutex

	sid  string
	name string
	desc string
	hops int

	capab burst.Capability

	conn   net.Conn
	writer *bufio.Writer
}

// NewPeer wraps an established server-link connection.
func NewPeer(sid, name string, conn net.Conn) *Peer {
	return &Peer{
		sid:    sid,
		name:   name,
		conn:   conn,
		writer: bufio.NewWriter(conn),
	}
}

func (p *Peer) SID() string  { p.mu.RLock(); defer p.mu.RUnlock(); return p.sid }
func (p *Peer) Name() string { p.mu.RLock(); defer p.mu.RUnlock(); return p.name }
func (p *Peer) Hops() int    { p.mu.RLock(); defer p.mu.RUnlock(); return p.hops }
func (p *Peer) SetHops(n int) { p.mu.Lock(); defer p.mu.Unlock(); p.hops = n }

func (p *Peer) Capab() burst.Capability { p.mu.RLock(); defer p.mu.RUnlock(); return p.capab }
func (p *Peer) SetCapab(c burst.Capability) { p.mu.Lock(); defer p.mu.Unlock(); p.capab = c }

// WriteLine sends one pre-rendered wire line to the peer link.
func (p *Peer) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, err := p.writer.WriteString(line); err != nil {
		return err
	}
	return p.writer.Flush()
}

// Close tears down the peer link's socket.
func (p *Peer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn.Close()
}

// PeerIndex holds the network-wide SID index of linked servers.
type PeerIndex struct {
	byUID cmap.Map[string, *Peer]
}

// NewPeerIndex returns an empty index.
func NewPeerIndex() *PeerIndex {
	return &PeerIndex{byUID: cmap.New[string, *Peer]()}
}

// ByUID looks up a peer by SID (named ByUID for symmetry with
// ClientIndex, since both are keyed by a network identifier).
func (idx *PeerIndex) ByUID(sid string) (*Peer, bool) {
	return idx.byUID.Get(sid)
}

// Add indexes a newly-linked peer.
func (idx *PeerIndex) Add(p *Peer) {
	idx.byUID.Set(p.SID(), p)
}

// Remove drops a peer, called on SQUIT.
func (idx *PeerIndex) Remove(sid string) {
	idx.byUID.Delete(sid)
}

// Length reports the number of currently linked peers.
func (idx *PeerIndex) Length() int {
	return idx.byUID.Length()
}

// ForEach iterates every linked peer.
func (idx *PeerIndex) ForEach(do func(*Peer)) {
	idx.byUID.ForEach(func(_ string, p *Peer) error {
		do(p)
		return nil
	})
}
