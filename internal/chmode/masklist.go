/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package chmode

import "strings"

// ListKind distinguishes the four mask-list mode characters.
type ListKind int

const (
	Ban ListKind = iota
	Except
	InviteExempt
	Quiet
)

// MaskEntry is one ban/except/invite/quiet list entry. Forward is only
// ever populated on Ban entries.
type MaskEntry struct {
	Mask    string
	Forward string // channel to redirect to, ban-only
	SetBy   string
	SetAt   int64
}

// MaskList is one channel's list for a single ListKind, insertion-ordered
// so replay (SJOIN/BMASK burst) and LIST output match client expectations.
type MaskList struct {
	kind    ListKind
	entries []MaskEntry
	maxLen  int
}

// NewMaskList returns an empty list capped at maxLen entries.
func NewMaskList(kind ListKind, maxLen int) *MaskList {
	return &MaskList{kind: kind, maxLen: maxLen}
}

// Add inserts mask (optionally with a ban forward), rejecting duplicates
// and overflow. Forwards are rejected outside of Ban lists and when the
// forward channel name itself contains '$' (ext-ban-looking forwards are
// disallowed to keep forward parsing unambiguous from ext-ban syntax).
func (l *MaskList) Add(mask, forward, setBy string, setAt int64) (ok bool, err error) {
	if forward != "" {
		if l.kind != Ban {
			return false, errForwardNotBan
		}
		if strings.Contains(forward, "$") {
			return false, errForwardHasExtban
		}
	}

	for _, e := range l.entries {
		if e.Mask == mask {
			return false, nil
		}
	}

	if len(l.entries) >= l.maxLen {
		return false, errListFull
	}

	l.entries = append(l.entries, MaskEntry{Mask: mask, Forward: forward, SetBy: setBy, SetAt: setAt})
	return true, nil
}

// Remove deletes the entry whose stored mask equals mask exactly; no
// pretty/raw normalisation of either side is applied.
func (l *MaskList) Remove(mask string) (removed MaskEntry, ok bool) {
	for i, e := range l.entries {
		if e.Mask == mask {
			l.entries = append(l.entries[:i:i], l.entries[i+1:]...)
			return e, true
		}
	}
	return MaskEntry{}, false
}

// Entries returns a snapshot of the list's current contents.
func (l *MaskList) Entries() []MaskEntry {
	out := make([]MaskEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Len reports the current entry count.
func (l *MaskList) Len() int {
	return len(l.entries)
}

// Matches reports whether hostmask (nick!user@host form) matches any
// entry's mask glob, returning the matching MaskEntry.
func (l *MaskList) Matches(hostmask string, matcher func(pattern, s string) bool) (MaskEntry, bool) {
	for _, e := range l.entries {
		if matcher(e.Mask, hostmask) {
			return e, true
		}
	}
	return MaskEntry{}, false
}

// PrettyMask fills in wildcards for unspecified nick!user@host parts, the
// way chm_ban pretty-prints a partial mask before storing it.
func PrettyMask(mask string) string {
	nick, user, host := "*", "*", "*"

	rest := mask
	if i := strings.IndexByte(rest, '!'); i >= 0 {
		if rest[:i] != "" {
			nick = rest[:i]
		}
		rest = rest[i+1:]
	} else if at := strings.IndexByte(rest, '@'); at < 0 {
		// bare nick with no '!' or '@': treat the whole token as nick
		if rest != "" {
			nick = rest
		}
		rest = ""
	}

	if at := strings.IndexByte(rest, '@'); at >= 0 {
		if rest[:at] != "" {
			user = rest[:at]
		}
		if rest[at+1:] != "" {
			host = rest[at+1:]
		}
	} else if rest != "" {
		host = rest
	}

	return nick + "!" + user + "@" + host
}

type listErr string

func (e listErr) Error() string { return string(e) }

const (
	errForwardNotBan    listErr = "ban forwards are only valid on +b"
	errForwardHasExtban listErr = "ban forward must not contain '$'"
	errListFull         listErr = "mask list is full"
)
