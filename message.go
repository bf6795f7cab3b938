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
	"sort"
	"strconv"
	"strings"

	"github.com/solanum-go/ircd/internal/config"
)

// String constants for constructing the message, unchanged from the
// teacher's original layout constants.
const (
	SPACE  string = " "
	CRLF          = "\r\n"
	COLON         = ":"
	EMPTY         = ""
	PADNUM        = "%03d"
)

// Tags is the ordered set of IRCv3 message tags attached to a MsgBuf.
// Insertion order is preserved so re-serialization is deterministic,
// which matters for the per-capability render cache below.
type Tags struct {
	keys   []string
	values map[string]string
}

// NewTags returns an empty Tags set.
func NewTags() *Tags {
	return &Tags{values: make(map[string]string)}
}

// Set assigns key=value, appending key to the order if new.
func (t *Tags) Set(key, value string) {
	if _, exists := t.values[key]; !exists {
		t.keys = append(t.keys, key)
	}
	t.values[key] = value
}

// Get returns a tag's value.
func (t *Tags) Get(key string) (string, bool) {
	v, ok := t.values[key]
	return v, ok
}

// Len reports the number of tags.
func (t *Tags) Len() int {
	return len(t.keys)
}

// All returns a snapshot copy of every tag as a plain map, for callers
// (the batch engine's line queue) that need to carry tags somewhere that
// isn't itself a *Tags.
func (t *Tags) All() map[string]string {
	out := make(map[string]string, len(t.keys))
	for _, k := range t.keys {
		out[k] = t.values[k]
	}
	return out
}

var tagEscapes = strings.NewReplacer(
	`\`, `\\`,
	";", `\:`,
	" ", `\s`,
	"\r", `\r`,
	"\n", `\n`,
)

// escapeTagValue applies the IRCv3 tag escape table: `; -> \:`, space
// `-> \s`, backslash `-> \\`, CR `-> \r`, LF `-> \n`.
func escapeTagValue(v string) string {
	return tagEscapes.Replace(v)
}

// unescapeTagValue is the inverse: `\x -> x` for any unlisted x, and a
// trailing lone backslash is dropped rather than causing an error.
func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}

	var b strings.Builder
	b.Grow(len(v))

	for i := 0; i < len(v); i++ {
		if v[i] != '\\' {
			b.WriteByte(v[i])
			continue
		}
		if i+1 >= len(v) {
			break // trailing lone backslash: drop it
		}
		switch v[i+1] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case '\\':
			b.WriteByte('\\')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		default:
			b.WriteByte(v[i+1])
		}
		i++
	}

	return b.String()
}

// maxTagsPartLen is TAGSPARTLEN: the byte budget for each of the two tag
// sections (server tags, then client-only "+"-prefixed tags) making up
// the rendered tag string.
const maxTagsPartLen = 4094

// render writes "@key=value;key2=value2 " including the trailing
// space, or nothing if there are no tags matching mask. Server tags are
// written first, then client-only tags (keys starting with "+"), each
// section independently capped at maxTagsPartLen: a tag that will not fit
// is dropped, not truncated, and shorter tags later in the same section
// are still tried.
func (t *Tags) render(b *strings.Builder, mask CapMask) {
	if t == nil || len(t.keys) == 0 {
		return
	}

	var server, client []string
	for _, k := range t.keys {
		if !tagVisibleFor(k, mask) {
			continue
		}
		v := t.values[k]
		var rendered string
		if v == EMPTY {
			rendered = k
		} else {
			rendered = k + "=" + escapeTagValue(v)
		}
		if strings.HasPrefix(k, "+") {
			client = append(client, rendered)
		} else {
			server = append(server, rendered)
		}
	}

	serverPart := joinTagsWithinBudget(server, maxTagsPartLen)
	clientPart := joinTagsWithinBudget(client, maxTagsPartLen)

	if serverPart == EMPTY && clientPart == EMPTY {
		return
	}

	b.WriteByte('@')
	switch {
	case serverPart == EMPTY:
		b.WriteString(clientPart)
	case clientPart == EMPTY:
		b.WriteString(serverPart)
	default:
		b.WriteString(serverPart)
		b.WriteByte(';')
		b.WriteString(clientPart)
	}
	b.WriteByte(' ')
}

// joinTagsWithinBudget joins rendered tags with ";", dropping any tag that
// would push the section past budget bytes while still trying subsequent,
// possibly shorter, tags.
func joinTagsWithinBudget(rendered []string, budget int) string {
	var kept []string
	used := 0
	for _, r := range rendered {
		need := len(r)
		if len(kept) > 0 {
			need++ // separating ';'
		}
		if used+need > budget {
			continue
		}
		kept = append(kept, r)
		used += need
	}
	return strings.Join(kept, ";")
}

// CapMask is the bitmask of negotiated client capabilities controlling
// which tags are visible in a given render, and whether the trailing
// colon may be omitted for an empty last param (not applicable here, but
// shared with cap.go's capability bit numbering).
type CapMask uint64

// tagVisibleFor reports whether tag key should be emitted for the given
// capability mask. A tag that TagRequiresCap (cap.go) maps to a
// capability, such as account, batch, time or label, is visible only when
// that capability is acked; every other tag is visible once the peer has
// acked message-tags.
func tagVisibleFor(key string, mask CapMask) bool {
	if cap, ok := TagRequiresCap(key); ok {
		return mask.Has(cap)
	}
	return mask.Has(CapMessageTags)
}

// Has reports whether mask includes cap.
func (mask CapMask) Has(cap CapMask) bool {
	return mask&cap != 0
}

// MsgBuf is the parsed/unparsed wire form of one IRC line: tags, origin,
// command, parameters (with the final one flagged as trailing so
// re-serialization knows whether it needs a leading colon). This replaces
// the teacher's flatter Message{Text,Sender,Params,Command,Code} with a
// TS6/IRCv3-complete structure, while keeping its Render()/String()/pool
// idioms.
type MsgBuf struct {
	Tags    *Tags
	Origin  string
	Command string
	Code    uint16
	Params  []string

	cache *renderCache
}

// renderCache memoizes Render(mask) results across the small number of
// distinct capability masks a single broadcast actually needs (the 32
// entries mirrors the original MsgBuf_cache's fixed-size LRU).
type renderCache struct {
	entries []cacheEntry
}

type cacheEntry struct {
	mask CapMask
	text string
}

const msgbufCacheSize = 32

func (msg *MsgBuf) renderCached(mask CapMask) string {
	if msg.cache == nil {
		msg.cache = &renderCache{}
	}

	for i, e := range msg.cache.entries {
		if e.mask == mask {
			if i != 0 {
				msg.cache.entries[0], msg.cache.entries[i] = msg.cache.entries[i], msg.cache.entries[0]
			}
			return e.text
		}
	}

	text := msg.render(mask)

	entry := cacheEntry{mask: mask, text: text}
	if len(msg.cache.entries) >= msgbufCacheSize {
		msg.cache.entries = msg.cache.entries[:msgbufCacheSize-1]
	}
	msg.cache.entries = append([]cacheEntry{entry}, msg.cache.entries...)

	return text
}

// render builds the wire line for mask without consulting the cache.
func (msg *MsgBuf) render(mask CapMask) string {
	var b strings.Builder

	msg.Tags.render(&b, mask)

	if msg.Origin != EMPTY {
		b.WriteByte(':')
		b.WriteString(msg.Origin)
		b.WriteByte(' ')
	}

	if msg.Code > 0 {
		b.WriteString(strconv.FormatUint(uint64(msg.Code), 10))
		if msg.Code < 100 {
			b.Reset()
			msg.Tags.render(&b, mask)
			if msg.Origin != EMPTY {
				b.WriteByte(':')
				b.WriteString(msg.Origin)
				b.WriteByte(' ')
			}
			pad := strconv.FormatUint(uint64(msg.Code), 10)
			for len(pad) < 3 {
				pad = "0" + pad
			}
			b.WriteString(pad)
		}
	} else if msg.Command != EMPTY {
		b.WriteString(msg.Command)
	}

	for i, p := range msg.Params {
		b.WriteByte(' ')
		last := i == len(msg.Params)-1
		if last && (p == EMPTY || strings.ContainsAny(p, " ") || strings.HasPrefix(p, ":")) {
			b.WriteByte(':')
		}
		b.WriteString(p)
	}

	text := b.String()
	if len(text) > config.MaxMsgLength-2 {
		text = text[:config.MaxMsgLength-2]
	}

	return text + CRLF
}

// Render returns the wire-ready line for the given capability mask,
// memoized per distinct mask.
func (msg *MsgBuf) Render(mask CapMask) string {
	return msg.renderCached(mask)
}

// String renders with no capability restrictions (every tag visible),
// satisfying fmt.Stringer for logging.
func (msg *MsgBuf) String() string {
	return msg.Render(^CapMask(0))
}

// Scrub resets a MsgBuf for return to msgbufPool; it satisfies
// internal/msgpool.Scrubbable.
func (msg *MsgBuf) Scrub() {
	msg.Tags = nil
	msg.Origin = EMPTY
	msg.Command = EMPTY
	msg.Code = 0
	msg.Params = nil
	msg.cache = nil
}

// SortedTagKeys returns a msg's tag keys sorted, used only by tests that
// need deterministic output regardless of insertion order.
func (msg *MsgBuf) SortedTagKeys() []string {
	if msg.Tags == nil {
		return nil
	}
	keys := append([]string(nil), msg.Tags.keys...)
	sort.Strings(keys)
	return keys
}
