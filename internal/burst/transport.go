/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

package burst

import "net"

// Transport is how a peer link's burst lines are framed onto the wire.
// The default implementation wraps a plain net.Conn (TCP); natslink.go
// provides an alternate implementation for test harnesses that want to
// fan a burst out without opening real sockets.
type Transport interface {
	// Send writes one raw IRC line (without trailing CRLF) to the peer.
	Send(line string) error
	// Recv blocks for the next raw line from the peer.
	Recv() (string, error)
	Close() error
}

// tcpTransport is the default Transport, used for real peer links.
type tcpTransport struct {
	conn net.Conn
	buf  []byte
}

// NewTCPTransport wraps an already-dialed/accepted connection.
func NewTCPTransport(conn net.Conn) Transport {
	return &tcpTransport{conn: conn}
}

func (t *tcpTransport) Send(line string) error {
	_, err := t.conn.Write([]byte(line + "\r\n"))
	return err
}

func (t *tcpTransport) Recv() (string, error) {
	line, err := readLine(t.conn, &t.buf)
	return line, err
}

func (t *tcpTransport) Close() error {
	return t.conn.Close()
}

// readLine is a minimal CRLF/LF line reader over an io.Reader-backed
// net.Conn, kept local to avoid pulling bufio.Scanner's line-length caps
// into the burst path (burst lines can exceed 512 bytes for SJOIN with a
// large membership list).
func readLine(conn net.Conn, buf *[]byte) (string, error) {
	for {
		if i := indexByte(*buf, '\n'); i >= 0 {
			line := string((*buf)[:i])
			if i > 0 && line[len(line)-1] == '\r' {
				line = line[:len(line)-1]
			}
			*buf = (*buf)[i+1:]
			return line, nil
		}

		chunk := make([]byte, 4096)
		n, err := conn.Read(chunk)
		if n > 0 {
			*buf = append(*buf, chunk[:n]...)
		}
		if err != nil {
			return "", err
		}
	}
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
