/*
   Copyright (c) 2023, btnmasher
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
	"strconv"
	"strings"

	"github.com/solanum-go/ircd/internal/config"
)

// maxTagsWire is the 8191-byte cap on the raw "@...." tag section,
// including the leading '@' and trailing space.
const maxTagsWire = 8191

// Parse takes one raw IRC line (without the trailing CRLF) and builds a
// MsgBuf, enforcing the tag/data length caps and IRCv3 tag escaping.
// Clients are never expected to send a message origin; ErrPrefixed
// matches the teacher's original client-side restriction.
func Parse(line string) (*MsgBuf, error) {
	if len(line) == 0 {
		return nil, ErrNotEnoughData
	}

	if len(line) > config.MaxMsgLength+maxTagsWire {
		return nil, ErrDataTooLong
	}

	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "" {
		return nil, ErrWhitespace
	}

	msg := msgbufPool.New()

	if line[0] == '@' {
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			msgbufPool.Recycle(msg)
			return nil, ErrMissingParams
		}
		tagSection := line[:sp]
		if len(tagSection)+1 > maxTagsWire {
			msgbufPool.Recycle(msg)
			return nil, ErrInputTooLong
		}
		msg.Tags = parseTags(tagSection[1:])
		line = strings.TrimLeft(line[sp+1:], " ")
	}

	if len(line) > 0 && line[0] == ':' {
		// Clients are not expected to prefix their own messages; the
		// root dispatcher is the one place a peer's SID/UID prefix is
		// legitimate, so origin parsing is still performed here and the
		// caller (server-class dispatch) decides whether to reject it.
		sp := strings.IndexByte(line, ' ')
		if sp < 0 {
			msgbufPool.Recycle(msg)
			return nil, ErrPrefixed
		}
		msg.Origin = line[1:sp]
		line = strings.TrimLeft(line[sp+1:], " ")
	}

	if len(line) == 0 {
		msgbufPool.Recycle(msg)
		return nil, ErrMissingParams
	}

	var trailing string
	hasTrailing := false
	if i := strings.Index(line, " :"); i >= 0 {
		trailing = line[i+2:]
		hasTrailing = true
		line = line[:i]
	} else if strings.HasPrefix(line, ":") {
		trailing = line[1:]
		hasTrailing = true
		line = ""
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		msgbufPool.Recycle(msg)
		return nil, ErrMissingParams
	}

	command := strings.ToUpper(fields[0])
	if num, err := strconv.ParseUint(command, 10, 16); err == nil {
		msg.Code = uint16(num)
	} else {
		msg.Command = command
	}

	params := fields[1:]
	if hasTrailing {
		params = append(params, trailing)
	}

	if len(params) > config.MaxMsgParams {
		msgbufPool.Recycle(msg)
		return nil, ErrTooManyParams
	}
	msg.Params = params

	return msg, nil
}

// parseTags splits a "key=value;key2=value2" tag section (without the
// leading '@') into a Tags set, unescaping each value. A tag whose key is
// empty or the bare client-tag marker "+" carries no identifying
// information and is skipped outright. Tags are inserted last-to-first so
// that, when the same key appears more than once, the last occurrence on
// the wire is the one that survives.
func parseTags(section string) *Tags {
	tags := NewTags()
	pairs := strings.Split(section, ";")
	for i := len(pairs) - 1; i >= 0; i-- {
		pair := pairs[i]
		if pair == "" {
			continue
		}
		key := pair
		value := ""
		if eq := strings.IndexByte(pair, '='); eq >= 0 {
			key = pair[:eq]
			value = unescapeTagValue(pair[eq+1:])
		}
		if key == "" || key == "+" {
			continue
		}
		if _, exists := tags.Get(key); exists {
			continue
		}
		tags.Set(key, value)
	}
	return tags
}
