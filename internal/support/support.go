/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package support is the ISUPPORT (005) token registry, generalized from
// the teacher's server.go Server.support field (a *util.ConcurrentMapString
// populated once in setISupport) into a standalone, rehash-friendly
// registry built on internal/cmap so it can be rebuilt wholesale from a
// freshly-loaded internal/config.Limits instead of being fixed at startup.
package support

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solanum-go/ircd/internal/cmap"
	"github.com/solanum-go/ircd/internal/config"
	"github.com/solanum-go/ircd/internal/stringutil"
)

// Registry holds the server's current ISUPPORT token set.
type Registry struct {
	tokens cmap.Map[string, string]
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{tokens: cmap.New[string, string]()}
}

// Set assigns a token's value. An empty value renders as a bare token
// (e.g. SAFELIST without "=value").
func (r *Registry) Set(token, value string) {
	r.tokens.Set(strings.ToUpper(token), value)
}

// Get returns a token's current value.
func (r *Registry) Get(token string) (string, bool) {
	return r.tokens.Get(strings.ToUpper(token))
}

// Lines renders every token as "TOKEN" or "TOKEN=value", sorted for
// deterministic output, chunked so no line exceeds maxLineLen (the
// multi-line reply builder's job for the 005 numeric).
func (r *Registry) Lines(maxLineLen int) []string {
	tokens := r.tokens.Keys()
	sort.Strings(tokens)

	rendered := make([]string, 0, len(tokens))
	for _, t := range tokens {
		val, _ := r.tokens.Get(t)
		if val == "" {
			rendered = append(rendered, t)
		} else {
			rendered = append(rendered, fmt.Sprintf("%s=%s", t, val))
		}
	}

	return stringutil.ChunkJoinStrings(rendered, maxLineLen, " ")
}

// FromLimits rebuilds the standard token set from a resolved Limits,
// mirroring Server.setISupport's literal token list in the teacher tree.
func FromLimits(limits config.Limits) *Registry {
	r := New()
	r.Set("CHANMODES", "beI,k,l,BCMNOPQRSTcimnprstz")
	r.Set("PREFIX", "(ov)@+")
	r.Set("MAXPARA", fmt.Sprint(limits.MaxMsgParams))
	r.Set("MODES", fmt.Sprint(limits.MaxModeChange))
	r.Set("CHANLIMIT", fmt.Sprintf("#&:%d", limits.MaxJoinedChans))
	r.Set("NICKLEN", fmt.Sprint(limits.MaxNickLength))
	r.Set("MAXLIST", fmt.Sprintf("beI:%d", limits.MaxBanListLen))
	r.Set("CASEMAPPING", "rfc1459")
	r.Set("TOPICLEN", fmt.Sprint(limits.MaxTopicLength))
	r.Set("KICKLEN", fmt.Sprint(limits.MaxKickLength))
	r.Set("CHANTYPES", "#&")
	r.Set("CHANNELLEN", fmt.Sprint(limits.MaxChanLength))
	r.Set("AWAYLEN", fmt.Sprint(limits.MaxAwayLength))
	r.Set("MONITOR", fmt.Sprint(limits.MaxMonitorSize))
	r.Set("SILENCE", fmt.Sprint(limits.MaxSilenceSize))
	r.Set("NETWORK", "")
	r.Set("EXTBAN", "$,acjmnqrzAMOR")
	r.Set("STATUSMSG", "@+")
	r.Set("ELIST", "CMNTU")
	r.Set("CPRIVMSG", "")
	r.Set("CNOTICE", "")
	r.Set("KNOCK", "")
	r.Set("SAFELIST", "")
	return r
}
