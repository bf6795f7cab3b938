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

import "strings"

// Usermode Bitmasks
const (
	UModeAway uint64 = 1 << iota
	UModeAdmin
	UModeBot
	UModeBanned
	UModeCensored
	UModeConnInfo
	UModeDeaf
	UModeDebug
	UModeFloodInfo
	UModeFloodImmune
	UModeGodmode
	UModeHiddenHost
	UModeHidden
	UModeInvisible
	UModeImmune
	UModeKeyMaster
	UModeMuted
	UModeHelpOp
	UModeNetOp
	UModeProtected
	UModeRegistered
	UModeSecured
	UModeThrottled
	UModeGlobalVoice
	UModeWhoisInfo
	UModeWatch
)

// UModeReq defines the required setter/target permission ranks for a
// given user mode.
type UModeReq struct {
	Setter uint8
	Target uint8
}

// userModeChars maps the wire mode character to its bitmask, for parsing
// and rendering MODE <nick> +/-<chars>.
var userModeChars = map[rune]uint64{
	'a': UModeAdmin,
	'B': UModeBot,
	'x': UModeBanned,
	'c': UModeCensored,
	'C': UModeConnInfo,
	'D': UModeDeaf,
	'd': UModeDebug,
	'F': UModeFloodInfo,
	'Z': UModeFloodImmune,
	'G': UModeGodmode,
	'h': UModeHiddenHost,
	'H': UModeHidden,
	'i': UModeInvisible,
	'I': UModeImmune,
	'k': UModeKeyMaster,
	'M': UModeMuted,
	'O': UModeHelpOp,
	'N': UModeNetOp,
	'P': UModeProtected,
	'R': UModeRegistered,
	'S': UModeSecured,
	'T': UModeThrottled,
	'g': UModeGlobalVoice,
	'w': UModeWhoisInfo,
	'W': UModeWatch,
}

// UModeReqs maps each user mode to its required setter/target ranks.
var UModeReqs = map[uint64]UModeReq{
	UModeAway:        {UPermUser, UPermUser},
	UModeAdmin:       {UPermServer, UPermUser},
	UModeBot:         {UPermNetOp, UPermUser},
	UModeBanned:      {UPermNetOp, UPermNone},
	UModeCensored:    {UPermHelpOp, UPermUser},
	UModeConnInfo:    {UPermAdmin, UPermNetOp},
	UModeDeaf:        {UPermNetOp, UPermUser},
	UModeDebug:       {UPermAdmin, UPermNetOp},
	UModeFloodInfo:   {UPermNetOp, UPermHelpOp},
	UModeFloodImmune: {UPermNetOp, UPermUser},
	UModeGodmode:     {UPermServer, UPermAdmin},
	UModeHiddenHost:  {UPermHelpOp, UPermUser},
	UModeHidden:      {UPermNetOp, UPermHelpOp},
	UModeInvisible:   {UPermNetOp, UPermHelpOp},
	UModeImmune:      {UPermNetOp, UPermUser},
	UModeKeyMaster:   {UPermNetOp, UPermHelpOp},
	UModeMuted:       {UPermHelpOp, UPermUser},
	UModeHelpOp:      {UPermNetOp, UPermUser},
	UModeNetOp:       {UPermAdmin, UPermUser},
	UModeProtected:   {UPermNetOp, UPermUser},
	UModeRegistered:  {UPermServer, UPermUser},
	UModeSecured:     {UPermServer, UPermUser},
	UModeThrottled:   {UPermHelpOp, UPermUser},
	UModeWhoisInfo:   {UPermUser, UPermUser},
	UModeWatch:       {UPermNetOp, UPermHelpOp},
}

// SetUserMode sets umode on target, as requested by setter.
//
// It checks that umode is known (ErrUnknownMode otherwise), that
// setter's rank meets the mode's setter requirement, that target's rank
// meets the mode's target requirement, and that setter outranks target
// or is setting a mode on themselves. Otherwise ErrInsuffPerms is
// returned. If the mode is already set, ErrModeAlreadySet is returned.
func SetUserMode(umode uint64, setter, target *Client) error {
	reqs, exists := UModeReqs[umode]
	if !exists {
		return ErrUnknownMode
	}

	setterRank, targetRank := rankOf(setter), rankOf(target)
	self := strings.EqualFold(setter.Nick(), target.Nick())

	if setterRank >= reqs.Setter && targetRank >= reqs.Target &&
		(setterRank > targetRank || self) {
		if target.HasUserMode(umode) {
			return ErrModeAlreadySet
		}
		target.AddUserMode(umode)
		return nil
	}

	return ErrInsuffPerms
}

// UnsetUserMode clears umode from target, as requested by setter. The
// target rank requirement only gates who may receive a mode, not who
// may have it removed, matching the original asymmetry.
func UnsetUserMode(umode uint64, setter, target *Client) error {
	reqs, exists := UModeReqs[umode]
	if !exists {
		return ErrUnknownMode
	}

	setterRank, targetRank := rankOf(setter), rankOf(target)
	self := strings.EqualFold(setter.Nick(), target.Nick())

	if setterRank >= reqs.Setter && (setterRank > targetRank || self) {
		if !target.HasUserMode(umode) {
			return ErrModeNotSet
		}
		target.DelUserMode(umode)
		return nil
	}

	return ErrInsuffPerms
}
