/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strconv"
	"time"

	"github.com/solanum-go/ircd/internal/chmode"
)

// Channel mode bitmasks, the simple (non-list, non-status) subset of the
// standard TS6 character set. These live in the Channel.modes bitset
// alongside the argument-carrying fields (Limit/Key/Forward) that the
// corresponding +l/+k/+f characters set through the accumulator applied
// by applyChannelModes.
const (
	modeChanNoExternal uint64 = 1 << iota // +n
	modeChanTopicLock                     // +t
	modeChanModerated                     // +m
	modeChanSecret                        // +s
	modeChanPrivate                       // +p
	modeChanInviteOnly                    // +i
	modeChanPermanent                     // +P
	modeChanFreeInvite                    // +g
	modeChanNoColor                       // +c
	modeChanNoCTCP                        // +C
	modeChanOpMod                         // +z
	modeChanRegOnly                       // +r
	modeChanSSLOnly                       // +S
	modeChanLimit                         // +l (bit marks "is set"; value lives in Channel.limit)
	modeChanKey                           // +k
	modeChanForward                       // +f
)

var simpleModeBits = map[rune]uint64{
	'n': modeChanNoExternal,
	't': modeChanTopicLock,
	'm': modeChanModerated,
	's': modeChanSecret,
	'p': modeChanPrivate,
	'i': modeChanInviteOnly,
	'P': modeChanPermanent,
	'g': modeChanFreeInvite,
	'c': modeChanNoColor,
	'C': modeChanNoCTCP,
	'z': modeChanOpMod,
	'r': modeChanRegOnly,
	'S': modeChanSSLOnly,
}

var memberFlagChars = map[rune]MemberFlag{
	'o': MemberOp,
	'h': MemberHalfop,
	'v': MemberVoice,
	'q': MemberOwner,
}

// registerStandardModes wires the standard TS6 channel mode characters
// into the shared table. Each handler only performs the access/argument
// gating the chmode.Table can't express on its own (+o/+q status writes
// require ops, +h/+v and list-mode writes require at least halfop, list
// queries require at least voice); the resulting
// accumulator is walked by applyChannelModes against the concrete Channel
// once Table.Apply returns, since the table is shared network-wide and
// cannot close over any one channel's state.
func registerStandardModes(table *chmode.Table) {
	for char := range simpleModeBits {
		char := char
		table.Register(char, 0, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
			if args.Access < chmode.AccessOp && args.Local {
				return ErrChanOpPrivsNeeded
			}
			acc.Append(args.Dir, char, EMPTY)
			return nil
		})
	}

	table.Register('l', chmode.ArgSet, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
		if args.Access < chmode.AccessOp && args.Local {
			return ErrChanOpPrivsNeeded
		}
		if args.Dir == chmode.Set {
			if _, err := strconv.Atoi(args.Arg); err != nil {
				return ErrInvalidModeParam
			}
		}
		acc.Append(args.Dir, 'l', args.Arg)
		return nil
	})

	table.Register('k', chmode.ArgSet|chmode.ArgDel, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
		if args.Access < chmode.AccessOp && args.Local {
			return ErrChanOpPrivsNeeded
		}
		acc.Append(args.Dir, 'k', args.Arg)
		return nil
	})

	table.Register('f', chmode.ArgSet, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
		if args.Access < chmode.AccessOp && args.Local {
			return ErrChanOpPrivsNeeded
		}
		acc.Append(args.Dir, 'f', args.Arg)
		return nil
	})

	for _, char := range []rune{'b', 'e', 'I', 'q'} {
		char := char
		table.Register(char, chmode.ArgSet|chmode.ArgDel|chmode.CanQuery|chmode.Listable, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
			if args.Arg == EMPTY {
				if args.Access < chmode.AccessVoice && args.Local {
					return ErrChanOpPrivsNeeded
				}
				acc.Append(args.Dir, char, EMPTY) // query: no mask; applyMaskOp skips it and no list reply is sent
				return nil
			}
			if args.Access < chmode.AccessHalfop && args.Local {
				return ErrChanOpPrivsNeeded
			}
			acc.Append(args.Dir, char, args.Arg)
			return nil
		})
	}

	for char := range memberFlagChars {
		char := char
		required := chmode.AccessHalfop
		if char == 'o' || char == 'q' {
			required = chmode.AccessOp
		}
		table.Register(char, chmode.ArgSet|chmode.ArgDel, func(args chmode.HandlerArgs, acc *chmode.Accumulator) error {
			if args.Access < required && args.Local {
				return ErrChanOpPrivsNeeded
			}
			acc.Append(args.Dir, char, args.Arg)
			return nil
		})
	}
}

// applyChannelModes runs modeStr/args through the shared table for ch,
// mutating ch's concrete state (bitset, limit/key/forward, mask lists,
// member status flags) for every entry the table accepted, and returns
// the coalesced wire-form mode change plus any rejected operations.
func applyChannelModes(ch *Channel, table *chmode.Table, source *Client, modeStr string, args []string, local bool) (string, []string, []error) {
	access := chmode.AccessOverride
	if local {
		if m, ok := ch.Member(source.UID()); ok {
			access = m.AccessLevel()
		} else {
			access = chmode.AccessNone
		}
		if source.IsOper() && source.Privileges().Has("admin") {
			access = chmode.AccessOverride
		}
	}

	ops := chmode.ParseModeString(modeStr)
	acc, errs := table.Apply(ops, args, access, local)

	for _, e := range acc.Entries {
		if bit, ok := simpleModeBits[e.Char]; ok {
			if e.Direction == chmode.Set {
				ch.AddModes(bit)
			} else {
				ch.DelModes(bit)
			}
			continue
		}

		if local && (e.Char == 'o' || e.Char == 'h' || e.Char == 'v' || e.Char == 'q') {
			// Members are keyed by UID; local MODE names the target by nick.
			if tc, ok := source.server.Clients.ByNick(e.Arg); ok {
				e.Arg = tc.UID()
			}
		}

		switch e.Char {
		case 'l':
			if e.Direction == chmode.Set {
				n, _ := strconv.Atoi(e.Arg)
				ch.SetLimit(n)
				ch.AddModes(modeChanLimit)
			} else {
				ch.SetLimit(0)
				ch.DelModes(modeChanLimit)
			}
		case 'k':
			if e.Direction == chmode.Set {
				ch.SetKey(e.Arg)
				ch.AddModes(modeChanKey)
			} else {
				ch.SetKey(EMPTY)
				ch.DelModes(modeChanKey)
			}
		case 'f':
			if e.Direction == chmode.Set {
				ch.SetForward(e.Arg)
				ch.AddModes(modeChanForward)
			} else {
				ch.SetForward(EMPTY)
				ch.DelModes(modeChanForward)
			}
		case 'b':
			applyMaskOp(ch.Bans(), e, source)
		case 'e':
			applyMaskOp(ch.Excepts(), e, source)
		case 'I':
			applyMaskOp(ch.Invexes(), e, source)
		case 'q':
			if flag, isStatus := memberStatusArg(e.Arg, ch); isStatus {
				setMemberFlag(ch, e, flag)
			} else {
				applyMaskOp(ch.Quiets(), e, source)
			}
		case 'o', 'h', 'v':
			setMemberFlag(ch, e, memberFlagChars[e.Char])
		}
	}

	modeOut, argsOut := acc.Render()
	return modeOut, argsOut, errs
}

// memberStatusArg disambiguates +q between the owner status prefix and
// the quiet mask list: if the argument names a current member, it's a
// status change, otherwise a mask.
func memberStatusArg(arg string, ch *Channel) (MemberFlag, bool) {
	if arg == EMPTY {
		return 0, false
	}
	if _, ok := ch.Member(arg); ok {
		return MemberOwner, true
	}
	return 0, false
}

func applyMaskOp(list *chmode.MaskList, e chmode.ChangeEntry, source *Client) {
	if e.Arg == EMPTY {
		return
	}
	if e.Direction == chmode.Set {
		list.Add(e.Arg, EMPTY, source.Hostmask(), time.Now().Unix())
		return
	}
	list.Remove(e.Arg)
}

func setMemberFlag(ch *Channel, e chmode.ChangeEntry, flag MemberFlag) {
	m, ok := ch.Member(e.Arg)
	if !ok {
		return
	}
	if e.Direction == chmode.Set {
		m.SetFlags(m.Flags() | flag)
	} else {
		m.SetFlags(m.Flags() &^ flag)
	}
}
