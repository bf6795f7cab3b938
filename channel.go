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
	"sync"
	"time"

	"github.com/solanum-go/ircd/internal/chmode"
)

// MemberFlag is the per-member status bitset the teacher split across
// four separate maps (Ops/HalfOps/Voiced/Nicks); generalized here to one
// flag field per Membership, matching spec §3's "per-member flag set".
type MemberFlag uint8

const (
	MemberVoice MemberFlag = 1 << iota
	MemberHalfop
	MemberOp
	MemberOwner
)

// Membership is the bidirectional link between a Client and a Channel.
// It is created and destroyed strictly by the join/part paths; both
// sides hold exactly one reference to it (spec §3).
type Membership struct {
	mu      sync.RWMutex
	Client  *Client
	Channel *Channel
	flags   MemberFlag
}

// Flags returns the member's current status bits.
func (m *Membership) Flags() MemberFlag {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags
}

// SetFlags replaces the member's status bits wholesale, used by the mode
// engine's chmode.Handler callbacks for +o/+h/+v.
func (m *Membership) SetFlags(f MemberFlag) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = f
}

// Has reports whether every bit in f is set.
func (m *Membership) Has(f MemberFlag) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.flags&f == f
}

// Prefix renders the highest-ranked status prefix character for NAMES/WHO
// output ('~' owner, '@' op, '%' halfop, '+' voice), or empty.
func (m *Membership) Prefix() string {
	switch f := m.Flags(); {
	case f&MemberOwner != 0:
		return "~"
	case f&MemberOp != 0:
		return "@"
	case f&MemberHalfop != 0:
		return "%"
	case f&MemberVoice != 0:
		return "+"
	default:
		return EMPTY
	}
}

// AccessLevel maps a member's flags to the chmode package's access-level
// enum, used when applying mode changes that require a minimum rank.
func (m *Membership) AccessLevel() chmode.AccessLevel {
	switch f := m.Flags(); {
	case f&MemberOwner != 0:
		return chmode.AccessOverride
	case f&MemberOp != 0:
		return chmode.AccessOp
	case f&MemberHalfop != 0:
		return chmode.AccessHalfop
	case f&MemberVoice != 0:
		return chmode.AccessVoice
	default:
		return chmode.AccessNone
	}
}

// Channel represents one IRC channel: its TS, mode state, the four
// mask lists, and its member set. Generalized from the teacher's
// Channel (four independent UserMaps keyed by rank) into one members
// map of Membership records plus a chmode.Table-driven mode engine.
type Channel struct {
	mu sync.RWMutex

	name  string
	ts    int64
	topic string
	topicSetBy string
	topicSetAt int64

	modes uint64
	limit int
	key   string
	forward string
	modeLock string

	joinThrottleN int
	joinThrottleT time.Duration
	joinCount     int
	joinWindowAt  time.Time

	bants int64

	bans     *chmode.MaskList
	excepts  *chmode.MaskList
	invexes  *chmode.MaskList
	quiets   *chmode.MaskList

	members    map[string]*Membership // keyed by Client.UID()
	locmembers map[string]*Membership // local-only subset, keyed by UID
	invites    map[string]struct{}    // nicks invited (cleared on join)

	modeTable *chmode.Table
}

// NewChannel creates a channel with a fresh TS, four empty mask lists,
// and the shared mode-character handler table.
func NewChannel(name string, ts int64, modeTable *chmode.Table, maxBanListLen int) *Channel {
	return &Channel{
		name:       name,
		ts:         ts,
		bans:       chmode.NewMaskList(chmode.Ban, maxBanListLen),
		excepts:    chmode.NewMaskList(chmode.Except, maxBanListLen),
		invexes:    chmode.NewMaskList(chmode.InviteExempt, maxBanListLen),
		quiets:     chmode.NewMaskList(chmode.Quiet, maxBanListLen),
		members:    make(map[string]*Membership),
		locmembers: make(map[string]*Membership),
		invites:    make(map[string]struct{}),
		modeTable:  modeTable,
	}
}

// Name returns the channel's name.
func (ch *Channel) Name() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.name
}

// TS returns the channel's creation timestamp.
func (ch *Channel) TS() int64 {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.ts
}

// SetTS overwrites the channel TS; called only by SJOIN reconciliation
// (sjoin.go), which enforces the monotonically-non-increasing invariant
// except for an explicit TS-0 merge.
func (ch *Channel) SetTS(ts int64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.ts = ts
}

// Topic returns the current topic, setter, and set-time.
func (ch *Channel) Topic() (text, setBy string, setAt int64) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.topic, ch.topicSetBy, ch.topicSetAt
}

// SetTopic sets the topic along with its setter and timestamp.
func (ch *Channel) SetTopic(text, setBy string, setAt int64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.topic = text
	ch.topicSetBy = setBy
	ch.topicSetAt = setAt
}

// Modes returns the channel's simple mode bitset (non-list, non-status
// modes: +n, +t, +m, +s, etc).
func (ch *Channel) Modes() uint64 {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.modes
}

// AddModes sets the given mode bits.
func (ch *Channel) AddModes(mode uint64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.modes |= mode
}

// DelModes clears the given mode bits.
func (ch *Channel) DelModes(mode uint64) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.modes &^= mode
}

// HasMode reports whether every bit in mode is set.
func (ch *Channel) HasMode(mode uint64) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.modes&mode == mode
}

// Limit, Key, Forward accessors for the three argument-carrying simple
// modes (+l, +k, +f).
func (ch *Channel) Limit() int { ch.mu.RLock(); defer ch.mu.RUnlock(); return ch.limit }
func (ch *Channel) SetLimit(n int) { ch.mu.Lock(); defer ch.mu.Unlock(); ch.limit = n }
func (ch *Channel) Key() string { ch.mu.RLock(); defer ch.mu.RUnlock(); return ch.key }
func (ch *Channel) SetKey(k string) { ch.mu.Lock(); defer ch.mu.Unlock(); ch.key = k }
func (ch *Channel) Forward() string { ch.mu.RLock(); defer ch.mu.RUnlock(); return ch.forward }
func (ch *Channel) SetForward(f string) { ch.mu.Lock(); defer ch.mu.Unlock(); ch.forward = f }

// ModeLock returns the network-enforced MLOCK string for this channel.
func (ch *Channel) ModeLock() string {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.modeLock
}

// SetModeLock overwrites this channel's MLOCK string. It is per-channel
// only; the network-wide chmode.Table is not touched.
func (ch *Channel) SetModeLock(lock string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.modeLock = lock
}

// Bans, Excepts, Invexes, Quiets expose the four mask lists for the mode
// engine and ban/invite-exempt checks.
func (ch *Channel) Bans() *chmode.MaskList    { return ch.bans }
func (ch *Channel) Excepts() *chmode.MaskList { return ch.excepts }
func (ch *Channel) Invexes() *chmode.MaskList { return ch.invexes }
func (ch *Channel) Quiets() *chmode.MaskList  { return ch.quiets }

// BantsStamp returns the ban-list invalidation stamp, bumped whenever a
// mask list changes so cached ban-match results can be invalidated.
func (ch *Channel) BantsStamp() int64 {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return ch.bants
}

// BumpBants increments the invalidation stamp.
func (ch *Channel) BumpBants() {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.bants++
}

// Member returns a client's membership record, if joined.
func (ch *Channel) Member(uid string) (*Membership, bool) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	m, ok := ch.members[uid]
	return m, ok
}

// AddMember inserts a new membership, tracking it in locmembers too if
// the client is local.
func (ch *Channel) AddMember(m *Membership) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	uid := m.Client.UID()
	ch.members[uid] = m
	if m.Client.IsLocal() {
		ch.locmembers[uid] = m
	}
}

// RemoveMember drops a membership by UID.
func (ch *Channel) RemoveMember(uid string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.members, uid)
	delete(ch.locmembers, uid)
}

// MemberCount reports the total (local + remote) member count.
func (ch *Channel) MemberCount() int {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	return len(ch.members)
}

// Empty reports whether the channel has no members left, the condition
// under which it is destroyed unless +P is set.
func (ch *Channel) Empty() bool {
	return ch.MemberCount() == 0
}

// ForEachMember iterates every member (local and remote) under the read
// lock; do must not mutate the channel.
func (ch *Channel) ForEachMember(do func(*Membership)) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	for _, m := range ch.members {
		do(m)
	}
}

// ForEachLocalMember iterates only locally-connected members, the set
// the send fan-out actually writes bytes to.
func (ch *Channel) ForEachLocalMember(do func(*Membership)) {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	for _, m := range ch.locmembers {
		do(m)
	}
}

// Invite records a pending invitation for nick.
func (ch *Channel) Invite(nick string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.invites[nick] = struct{}{}
}

// Invited reports whether nick currently holds an invitation.
func (ch *Channel) Invited(nick string) bool {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	_, ok := ch.invites[nick]
	return ok
}

// ClearInvite removes nick's invitation, called once consumed by JOIN.
func (ch *Channel) ClearInvite(nick string) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	delete(ch.invites, nick)
}

// CheckJoinThrottle applies the N-per-T-seconds join throttle (+j),
// returning false if the channel should refuse this join.
func (ch *Channel) CheckJoinThrottle(now time.Time) bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.joinThrottleN == 0 {
		return true
	}
	if now.Sub(ch.joinWindowAt) > ch.joinThrottleT {
		ch.joinWindowAt = now
		ch.joinCount = 0
	}
	if ch.joinCount >= ch.joinThrottleN {
		return false
	}
	ch.joinCount++
	return true
}

// SetJoinThrottle configures the +j N:T parameters.
func (ch *Channel) SetJoinThrottle(n int, window time.Duration) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.joinThrottleN = n
	ch.joinThrottleT = window
}
