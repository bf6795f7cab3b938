//go:build linux

/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package netutil

import (
	"net"

	"golang.org/x/sys/unix"
)

func readTCPInfoPlatform(tc *net.TCPConn) (TCPInfo, bool) {
	raw, err := tc.SyscallConn()
	if err != nil {
		return TCPInfo{}, false
	}

	var info *unix.TCPInfo
	var getErr error
	ctrlErr := raw.Control(func(fd uintptr) {
		info, getErr = unix.GetsockoptTCPInfo(int(fd), unix.IPPROTO_TCP, unix.TCP_INFO)
	})
	if ctrlErr != nil || getErr != nil || info == nil {
		return TCPInfo{}, false
	}

	return TCPInfo{
		RTTMicros:    info.Rtt,
		RTTVarMicros: info.Rttvar,
		Retransmits:  info.Retransmits,
	}, true
}
