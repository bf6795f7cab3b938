/*
   Copyright (c) 2020, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"strings"

	"github.com/solanum-go/ircd/internal/cmap"
)

// ChannelIndex holds the network-wide channel-name index, the channel
// counterpart to ClientIndex, replacing the teacher's ChanMap.
type ChannelIndex struct {
	byName cmap.Map[string, *Channel]
}

// NewChannelIndex returns an empty index.
func NewChannelIndex() *ChannelIndex {
	return &ChannelIndex{byName: cmap.New[string, *Channel]()}
}

func foldChannel(name string) string {
	return strings.ToLower(name)
}

// Get looks up a channel by name, case-folded.
func (idx *ChannelIndex) Get(name string) (*Channel, bool) {
	return idx.byName.Get(foldChannel(name))
}

// Add indexes a newly-created channel.
func (idx *ChannelIndex) Add(ch *Channel) {
	idx.byName.Set(foldChannel(ch.Name()), ch)
}

// Remove drops a channel, called once its last member parts (unless +P).
func (idx *ChannelIndex) Remove(name string) {
	idx.byName.Delete(foldChannel(name))
}

// Length reports the number of active channels.
func (idx *ChannelIndex) Length() int {
	return idx.byName.Length()
}

// ForEach iterates every indexed channel.
func (idx *ChannelIndex) ForEach(do func(*Channel)) {
	idx.byName.ForEach(func(_ string, ch *Channel) error {
		do(ch)
		return nil
	})
}
