/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package burst is the server-to-server peer burst: capability
// negotiation bits exchanged at CAPAB time, and the fixed-order burst
// sequence (servers -> users -> channels -> ban lists -> topics -> PING
// sentinel) a freshly linked peer receives. The teacher tree has no
// server-link support at all; this is modeled directly on the ordering
// and capability set in the core spec, using the same bitmask-over-uint
// idiom the teacher uses for its per-user mode bits (usermode.go).
package burst

// Capability is a single bit in a peer's negotiated CAPAB bitmask.
type Capability uint32

const (
	CapTS6 Capability = 1 << iota
	CapEOPMOD
	CapSAVE
	CapEBMASK
	CapCHW
	CapEX
	CapIE
	CapEUID
	CapQS
	CapENCAP
	CapCLUSTER
	CapKNOCK
)

var capNames = map[Capability]string{
	CapTS6:     "TS6",
	CapEOPMOD:  "EOPMOD",
	CapSAVE:    "SAVE",
	CapEBMASK:  "EBMASK",
	CapCHW:     "CHW",
	CapEX:      "EX",
	CapIE:      "IE",
	CapEUID:    "EUID",
	CapQS:      "QS",
	CapENCAP:   "ENCAP",
	CapCLUSTER: "CLUSTER",
	CapKNOCK:   "KNOCK",
}

// ParseCapab maps the space-separated CAPAB token list to a bitmask,
// ignoring tokens this server doesn't recognize (forward compatibility
// with peers advertising newer capabilities).
func ParseCapab(tokens []string) Capability {
	var mask Capability
	names := make(map[string]Capability, len(capNames))
	for bit, name := range capNames {
		names[name] = bit
	}
	for _, t := range tokens {
		if bit, ok := names[t]; ok {
			mask |= bit
		}
	}
	return mask
}

// Tokens renders mask back to its CAPAB token list, sorted by bit value
// for deterministic wire output.
func (mask Capability) Tokens() []string {
	var out []string
	for bit := Capability(1); bit != 0; bit <<= 1 {
		if mask&bit != 0 {
			if name, ok := capNames[bit]; ok {
				out = append(out, name)
			}
		}
	}
	return out
}

// Has reports whether mask includes cap.
func (mask Capability) Has(cap Capability) bool {
	return mask&cap != 0
}

// Stage identifies one phase of the fixed burst ordering.
type Stage int

const (
	StageServers Stage = iota
	StageUsers
	StageChannels
	StageBanLists
	StageTopics
	StageSentinel
)

var stageOrder = []Stage{StageServers, StageUsers, StageChannels, StageBanLists, StageTopics, StageSentinel}

// StageFunc emits one stage's lines to the peer; it returns the count of
// items sent for logging/metrics.
type StageFunc func() (int, error)

// Sequencer drives the fixed burst order for one outbound peer link:
// servers (SID) -> users (EUID preferred, else UID) -> channels
// (SJOIN per channel) -> ban/except/inv/quiet lists (BMASK/EBMASK if the
// peer supports CapEBMASK) -> topics (TB) -> PING sentinel.
type Sequencer struct {
	stages map[Stage]StageFunc
}

// NewSequencer returns an empty Sequencer; callers register each stage's
// emitter before calling Run.
func NewSequencer() *Sequencer {
	return &Sequencer{stages: make(map[Stage]StageFunc)}
}

// On registers the emitter for stage.
func (s *Sequencer) On(stage Stage, fn StageFunc) {
	s.stages[stage] = fn
}

// Run executes every registered stage in fixed order, stopping at the
// first error (the caller SQUITs the peer on failure).
func (s *Sequencer) Run() (counts map[Stage]int, err error) {
	counts = make(map[Stage]int)
	for _, stage := range stageOrder {
		fn, ok := s.stages[stage]
		if !ok {
			continue
		}
		n, stageErr := fn()
		counts[stage] = n
		if stageErr != nil {
			return counts, stageErr
		}
	}
	return counts, nil
}
