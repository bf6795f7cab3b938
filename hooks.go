/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import "github.com/solanum-go/ircd/internal/hook"

// Hook points fired outside the per-message dispatch pipeline (see
// dispatch.go for HookMessageTag/HookMessageHandler). Each carries the
// payload type documented above it.

// hookClientExit fires once a client's channels have been parted and it
// has been dropped from the client index, data is the exiting *Client.
const hookClientExit hook.Point = "client_exit"

// hookClientRegister fires the moment a client completes registration
// (NICK+USER, or server EUID burst), data is the newly-registered
// *Client.
const hookClientRegister hook.Point = "client_register"

// hookChannelJoin fires after a membership has been added to a channel,
// data is a *JoinEvent.
const hookChannelJoin hook.Point = "channel_join"

// JoinEvent is the payload for hookChannelJoin.
type JoinEvent struct {
	Channel *Channel
	Member  *Membership
}

// hookChannelPart fires just before a membership is removed from a
// channel by PART, data is a *PartEvent. KICK, QUIT and SQUIT removals
// do not fire it.
const hookChannelPart hook.Point = "channel_part"

// PartEvent is the payload for hookChannelPart.
type PartEvent struct {
	Channel *Channel
	Client  *Client
	Reason  string
}

// hookNickChange fires after a client's nick has been swapped in the
// client index, data is a *NickChangeEvent.
const hookNickChange hook.Point = "nick_change"

// NickChangeEvent is the payload for hookNickChange.
type NickChangeEvent struct {
	Client  *Client
	OldNick string
	NewNick string
}
