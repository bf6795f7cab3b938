/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package stringutil holds small string helpers shared across the send
// fan-out and reply builders, adapted from the teacher's shared/stringutils.
package stringutil

import "bytes"

// ChunkJoinStrings joins items with sep, starting a new chunk whenever the
// next item (plus separator) would breach maxlength. Used by the multi-line
// reply builder (§4.3) for NAMES/ISUPPORT/MONITOR L output, and by the
// batch engine's FAIL summaries.
func ChunkJoinStrings(items []string, maxlength int, sep string) []string {
	var buffer bytes.Buffer
	currentLength := 0
	var joined []string
	nextBuffer := false

	for i := range items {
		if currentLength+len(items[i]) <= maxlength {
			buffer.WriteString(items[i])
			currentLength += len(items[i])
		} else {
			nextBuffer = true
		}

		if i+1 < len(items) && currentLength+len(sep)+len(items[i+1]) <= maxlength {
			buffer.WriteString(sep)
			currentLength += len(sep)
		} else {
			nextBuffer = true
		}

		if nextBuffer {
			currentLength = 0
			nextBuffer = false
			joined = append(joined, buffer.String())
			buffer.Reset()
		}
	}

	if buffer.Len() > 0 {
		joined = append(joined, buffer.String())
	}

	return joined
}
