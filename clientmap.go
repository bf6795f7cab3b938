/*
   Copyright (c) 2020, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strings"

	"github.com/solanum-go/ircd/internal/cmap"
)

// ClientIndex holds the network-wide UID and nick indices, generalizing
// the teacher's separate ChanMap/ConnMap (see the removed chan_map.go/
// conn_map.go) onto the shared internal/cmap.Map generic so lookups by
// either key share one concurrency-safe implementation.
//
// Nickname lookups are case-folded per RFC1459 casemapping (the
// CASEMAPPING=rfc1459 ISUPPORT token advertised in internal/support),
// matching the network-wide nick-uniqueness invariant in spec §3.
type ClientIndex struct {
	byUID  cmap.Map[string, *Client]
	byNick cmap.Map[string, *Client]
}

// NewClientIndex returns an empty index.
func NewClientIndex() *ClientIndex {
	return &ClientIndex{
		byUID:  cmap.New[string, *Client](),
		byNick: cmap.New[string, *Client](),
	}
}

// foldNick applies RFC1459 casemapping: ASCII upper->lower plus the
// extra {}|^ <-> []\~ equivalences.
func foldNick(nick string) string {
	var b strings.Builder
	b.Grow(len(nick))
	for _, r := range nick {
		switch r {
		case '{':
			r = '['
		case '}':
			r = ']'
		case '|':
			r = '\\'
		case '^':
			r = '~'
		default:
			if r >= 'A' && r <= 'Z' {
				r += 'a' - 'A'
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// ByUID looks up a client by its network-unique identifier.
func (idx *ClientIndex) ByUID(uid string) (*Client, bool) {
	return idx.byUID.Get(uid)
}

// ByNick looks up a client by nickname, case-folded.
func (idx *ClientIndex) ByNick(nick string) (*Client, bool) {
	return idx.byNick.Get(foldNick(nick))
}

// Add indexes a newly-registered client under both its UID and nick.
func (idx *ClientIndex) Add(c *Client) {
	if uid := c.UID(); uid != EMPTY {
		idx.byUID.Set(uid, c)
	}
	idx.byNick.Set(foldNick(c.Nick()), c)
}

// Rename updates the nick index after a successful NICK change, without
// touching the UID index (the UID never changes for a client's
// lifetime).
func (idx *ClientIndex) Rename(oldNick, newNick string) {
	idx.byNick.ChangeKey(foldNick(oldNick), foldNick(newNick))
}

// Remove drops a client from both indices, called from exitClient
// (conn.go) before the Client object is released.
func (idx *ClientIndex) Remove(c *Client) {
	if uid := c.UID(); uid != EMPTY {
		idx.byUID.Delete(uid)
	}
	idx.byNick.Delete(foldNick(c.Nick()))
}

// Length reports the number of registered clients.
func (idx *ClientIndex) Length() int {
	return idx.byUID.Length()
}

// ForEach iterates every indexed client by UID.
func (idx *ClientIndex) ForEach(do func(*Client)) {
	idx.byUID.ForEach(func(_ string, c *Client) error {
		do(c)
		return nil
	})
}
