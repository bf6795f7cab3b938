/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package dircd

import (
	"bytes"

	"github.com/solanum-go/ircd/internal/bufpool"
	"github.com/solanum-go/ircd/internal/msgpool"
)

// MessagePoolMax sets the wire-codec object pool size.
const MessagePoolMax = 4096

// BufferPoolMax sets the bytes.Buffer pool size used by the send path.
const BufferPoolMax = 4096

// msgbufPool holds the global MsgBuf object pool, generalized from the
// teacher's package-level msgpool/MessagePool in server.go/message.go
// into the channel-backed internal/msgpool.Pool.
var msgbufPool = msgpool.New[*MsgBuf](MessagePoolMax, func() *MsgBuf {
	return &MsgBuf{}
})

// bufferPool holds the global bytes.Buffer pool used when building
// outbound lines, generalized from the teacher's util.NewBufferPool call
// into internal/bufpool; *bytes.Buffer already satisfies Resettable.
var bufferPool = bufpool.New[*bytes.Buffer](func() *bytes.Buffer {
	return &bytes.Buffer{}
})
