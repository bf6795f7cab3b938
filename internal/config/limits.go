/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package config

// Protocol limits, adapted from the teacher's package-level settings.go
// constants and generalized so they can be overridden per Config instance
// (the teacher hardcoded these as untyped package consts).
const (
	MaxMsgLength  = 512
	MaxMsgParams  = 15
	MaxTagsLength = 8191

	MaxChanLength  = 50
	MaxKickLength  = 400
	MaxTopicLength = 400
	MaxListItems   = 256
	MaxModeChange  = 6
	MaxBanListLen  = 100

	MaxNickLength  = 16
	MaxUserLength  = 16
	MaxVHostLength = 64
	MaxJoinedChans = 32
	MaxAwayLength  = 200
	MaxMonitorSize = 100

	MaxSilenceSize = 15

	BatchIdleTimeout = 15 // seconds, per the batch engine's nesting timeout

	MaxSendQBytes = 1 << 20 // 1MiB soft sendq cap before a client is SQUIT/killed
)

// Limits is the mutable subset of the constants above: a rehash can tune
// them per-network without recompiling, unlike the teacher's untyped consts.
type Limits struct {
	MaxMsgParams   int
	MaxTagsLength  int
	MaxChanLength  int
	MaxKickLength  int
	MaxTopicLength int
	MaxListItems   int
	MaxModeChange  int
	MaxBanListLen  int
	MaxNickLength  int
	MaxUserLength  int
	MaxVHostLength int
	MaxJoinedChans int
	MaxAwayLength  int
	MaxMonitorSize int
	MaxSilenceSize int
	MaxSendQBytes  int
}

// DefaultLimits mirrors the package constants above.
func DefaultLimits() Limits {
	return Limits{
		MaxMsgParams:   MaxMsgParams,
		MaxTagsLength:  MaxTagsLength,
		MaxChanLength:  MaxChanLength,
		MaxKickLength:  MaxKickLength,
		MaxTopicLength: MaxTopicLength,
		MaxListItems:   MaxListItems,
		MaxModeChange:  MaxModeChange,
		MaxBanListLen:  MaxBanListLen,
		MaxNickLength:  MaxNickLength,
		MaxUserLength:  MaxUserLength,
		MaxVHostLength: MaxVHostLength,
		MaxJoinedChans: MaxJoinedChans,
		MaxAwayLength:  MaxAwayLength,
		MaxMonitorSize: MaxMonitorSize,
		MaxSilenceSize: MaxSilenceSize,
		MaxSendQBytes:  MaxSendQBytes,
	}
}
