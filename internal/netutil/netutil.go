/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package netutil wraps low-level socket introspection (TCP_INFO RTT and
// retransmits) via golang.org/x/sys/unix, since the teacher's
// connection.go never inspects the underlying fd. Non-Linux builds get a
// stub that reports ok=false. No handler in this module calls it; STATS
// and TRACE do not report these values.
package netutil

import (
	"net"
)

// TCPInfo is the subset of Linux's tcp_info read for a connection (RTT
// estimate and retransmit count).
type TCPInfo struct {
	RTTMicros    uint32
	RTTVarMicros uint32
	Retransmits  uint8
}

// ReadTCPInfo reads TCP_INFO off conn's underlying fd. ok is false on any
// platform or connection type where this isn't supported.
func ReadTCPInfo(conn net.Conn) (info TCPInfo, ok bool) {
	tc, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return TCPInfo{}, false
	}
	return readTCPInfoPlatform(tc)
}

// SetKeepAlive mirrors the teacher's use of net.TCPConn.SetKeepAlive; it
// is a no-op for non-TCP connections.
func SetKeepAlive(conn net.Conn, enabled bool) error {
	tc, isTCP := conn.(*net.TCPConn)
	if !isTCP {
		return nil
	}
	return tc.SetKeepAlive(enabled)
}
