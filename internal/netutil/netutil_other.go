//go:build !linux

/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package netutil

import "net"

func readTCPInfoPlatform(tc *net.TCPConn) (TCPInfo, bool) {
	return TCPInfo{}, false
}
