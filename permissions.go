/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

// User permission ranks, used only to order who may set a given user
// mode on whom. Fine-grained server privileges (KILL, KLINE, REHASH...)
// are handled separately by internal/privilege.Set; this ladder just
// answers "is the setter senior enough to touch the target".
const (
	UPermBan uint8 = iota
	UPermNone
	UPermUser
	UPermHelpOp
	UPermNetOp
	UPermAdmin
	UPermServer
)

// rankOf derives a client's coarse permission rank from its granted
// privilege set and Kind, for use by SetUserMode/UnsetUserMode.
func rankOf(c *Client) uint8 {
	if c.IsServer() {
		return UPermServer
	}
	if c.HasUserMode(UModeBanned) {
		return UPermBan
	}
	set := c.Privileges()
	switch {
	case set.Has("admin"):
		return UPermAdmin
	case c.IsOper():
		return UPermNetOp
	default:
		return UPermUser
	}
}
