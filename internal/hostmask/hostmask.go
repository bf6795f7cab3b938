/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package hostmask is the address/hostname hash index that resolves the
// best-matching K-line/D-line/auth{} record for a connecting client. There
// is no teacher equivalent (dircd resolves auth purely by listener), so
// the bucket/precedence scheme here is grounded directly in
// solanum/ircd/hostmask.c (see _examples/original_source/_INDEX.md),
// expressed with Go's net/netip in place of the original's raw uint32
// masking, but keeping the same CIDR-stride bucketing and monotonically
// decreasing insertion precedence described for find_conf_by_address.
package hostmask

import (
	"net/netip"
	"strings"
	"sync"
)

// Type distinguishes the kind of record a Record carries, mirroring the
// original's CONF_KILL/CONF_DLINE/CONF_CLIENT/CONF_EXEMPTDLINE families.
type Type int

const (
	TypeKline Type = iota
	TypeDline
	TypeAuth
	TypeExemptKline
	TypeExemptDline
)

// Record is one configured address/hostname entry: a K-line, D-line or
// auth{} block, carrying the glob patterns for username/auth-user the
// original's AddressRec keeps alongside the address mask.
type Record struct {
	Type         Type
	precedence   int64
	UserGlob     string
	AuthUserGlob string
	Reason       string
	Data         any // caller-defined payload (e.g. *config.AuthBlock)
}

// bucketCount mirrors the original's ATABLE_SIZE = 0x1000.
const bucketCount = 0x1000

// Index is the hashed host-mask lookup table. Three regimes share one set
// of buckets: IPv4 prefixes, IPv6 prefixes, and hostnames (plus an
// "unhashed" catch-all bucket 0 for wildcard-only hostmasks).
type Index struct {
	mu      sync.RWMutex
	buckets [bucketCount][]*entry
	nextPre int64
}

type entry struct {
	rec    *Record
	prefix netip.Prefix // zero Prefix for hostname entries
	host   string        // lowercased hostname pattern, empty for IP entries
}

// New returns an empty Index. Precedence counts down from 0 so later
// insertions always outrank earlier ones, whatever their specificity.
func New() *Index {
	return &Index{nextPre: 0}
}

// AddCIDR inserts rec for the given IPv4/IPv6 prefix.
func (idx *Index) AddCIDR(prefix netip.Prefix, rec *Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nextPre--
	rec.precedence = idx.nextPre

	for _, b := range bucketsForPrefix(prefix) {
		idx.buckets[b] = append(idx.buckets[b], &entry{rec: rec, prefix: prefix})
	}
}

// AddHostname inserts rec for a (possibly wildcarded) hostname pattern.
// Patterns containing only wildcard metacharacters (e.g. "*") hash to the
// unhashed catch-all bucket, as in the original's handling of bare "*".
func (idx *Index) AddHostname(pattern string, rec *Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.nextPre--
	rec.precedence = idx.nextPre

	lower := strings.ToLower(pattern)
	for _, b := range bucketsForHostname(lower) {
		idx.buckets[b] = append(idx.buckets[b], &entry{rec: rec, host: lower})
	}
}

// bucketsForPrefix enumerates the original's b = {32,24,16,8,0} (IPv4) or
// {128,112,...,0} (IPv6) strides, hashing the masked address at each.
func bucketsForPrefix(prefix netip.Prefix) []int {
	addr := prefix.Addr()
	bits := prefix.Bits()

	var strides []int
	if addr.Is4() {
		for b := 32; b >= 0; b -= 8 {
			strides = append(strides, b)
		}
	} else {
		for b := 128; b >= 0; b -= 16 {
			strides = append(strides, b)
		}
	}

	rounded := bits - bits%8
	seen := map[int]bool{}
	var out []int
	for _, stride := range strides {
		if stride > rounded {
			continue
		}
		h := hashAddr(addr, stride)
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	return out
}

func hashAddr(addr netip.Addr, bits int) int {
	if addr.Is4() {
		as4 := addr.As4()
		v := uint32(as4[0])<<24 | uint32(as4[1])<<16 | uint32(as4[2])<<8 | uint32(as4[3])
		if bits < 32 {
			v &^= (1 << uint(32-bits)) - 1
		}
		h := v ^ (v >> 12) ^ (v >> 24)
		return int(h) & (bucketCount - 1)
	}

	if bits < 128 {
		if p, err := addr.Prefix(bits); err == nil {
			addr = p.Addr()
		}
	}
	as16 := addr.As16()
	var h uint32
	for i := 0; i < 16; i++ {
		h = h<<4 ^ (h + uint32(as16[i]))
	}
	return int(h) & (bucketCount - 1)
}

// bucketsForHostname enumerates the original's full-host plus successive
// dot-suffix lookups, plus bucket 0 as the unhashed catch-all.
func bucketsForHostname(host string) []int {
	out := []int{0}
	for _, suffix := range suffixes(host) {
		out = append(out, hashHostname(suffix))
	}
	return out
}

func suffixes(host string) []string {
	out := []string{host}
	for i, c := range host {
		if c == '.' {
			out = append(out, host[i+1:])
		}
	}
	return out
}

func hashHostname(s string) int {
	var h uint32
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		h = h<<4 - (h + uint32(c))
	}
	return int(h) & (bucketCount - 1)
}

// Lookup returns the most recently inserted Record of the given Type
// (the lowest precedence value, since precedence counts down) matching ip
// or host and the username/authUser globs, or nil.
func (idx *Index) Lookup(typ Type, ip netip.Addr, host, username, authUser string) *Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *Record

	consider := func(e *entry) {
		if e.rec.Type != typ {
			return
		}
		if e.rec.UserGlob != "" && e.rec.UserGlob != "*" && !globMatch(e.rec.UserGlob, username) {
			return
		}
		if e.rec.AuthUserGlob != "" && e.rec.AuthUserGlob != "*" && !globMatch(e.rec.AuthUserGlob, authUser) {
			return
		}
		if best == nil || e.rec.precedence < best.precedence {
			best = e.rec
		}
	}

	if ip.IsValid() {
		bits := 32
		if ip.Is6() {
			bits = 128
		}
		stride := 8
		if ip.Is6() {
			stride = 16
		}
		for b := bits; b >= 0; b -= stride {
			h := hashAddr(ip, b)
			for _, e := range idx.buckets[h] {
				if e.prefix.IsValid() && e.prefix.Contains(ip) {
					consider(e)
				}
			}
		}
	}

	if host != "" {
		lower := strings.ToLower(host)
		for _, h := range bucketsForHostname(lower) {
			for _, e := range idx.buckets[h] {
				if e.host != "" && globMatch(e.host, lower) {
					consider(e)
				}
			}
		}
	}

	return best
}

// globMatch implements the '*'/'?' glob semantics used by ban masks.
func globMatch(pattern, s string) bool {
	return globMatchRec(pattern, s)
}

func globMatchRec(pattern, s string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*':
			for len(pattern) > 0 && pattern[0] == '*' {
				pattern = pattern[1:]
			}
			if len(pattern) == 0 {
				return true
			}
			for i := 0; i <= len(s); i++ {
				if globMatchRec(pattern, s[i:]) {
					return true
				}
			}
			return false
		case '?':
			if len(s) == 0 {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		default:
			if len(s) == 0 || toLowerByte(pattern[0]) != toLowerByte(s[0]) {
				return false
			}
			pattern, s = pattern[1:], s[1:]
		}
	}
	return len(s) == 0
}

func toLowerByte(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}

// ResolveAuth implements the deterministic auth flow: best auth{} block
// first (reject if absent), then kline lookup against either the spoofed
// name (kline_spoof_ip blocks) or the real host+IP, winning unless the
// auth block is exempt.
type AuthResult struct {
	Auth        *Record
	Kline       *Record
	KlineWins   bool
}

func (idx *Index) ResolveAuth(ip netip.Addr, host, username, spoof string, klineSpoofIP, exemptKline bool) AuthResult {
	auth := idx.Lookup(TypeAuth, ip, host, username, "")
	res := AuthResult{Auth: auth}
	if auth == nil {
		return res
	}

	lookupHost := host
	lookupIP := ip
	if klineSpoofIP && spoof != "" {
		lookupHost = spoof
		lookupIP = netip.Addr{}
	}

	kline := idx.Lookup(TypeKline, lookupIP, lookupHost, username, "")
	res.Kline = kline
	if kline != nil && !exemptKline {
		res.KlineWins = true
	}
	return res
}

// ResolveDline looks up a D-line, consulting the exempt-dline precedence
// pass first as the original does.
func (idx *Index) ResolveDline(ip netip.Addr) *Record {
	if exempt := idx.Lookup(TypeExemptDline, ip, "", "", ""); exempt != nil {
		return nil
	}
	return idx.Lookup(TypeDline, ip, "", "", "")
}
