/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// natslink.go provides a NATS-backed Transport that carries burst lines
// over NATS subjects instead of a TCP socket. Nothing in this module
// constructs one: Peer (peer.go) writes to its net.Conn directly, and
// neither NewNATSTransport nor NewTCPTransport has a caller.
package burst

import (
	"fmt"

	"github.com/nats-io/nats.go"
)

// natsTransport frames burst lines as NATS messages: each side receives
// on "burst.<own sid>.in" and sends to "burst.<peer sid>.in".
type natsTransport struct {
	nc      *nats.Conn
	outSubj string
	sub     *nats.Subscription
	msgs    chan *nats.Msg
}

// NewNATSTransport subscribes to localSID's inbound subject and returns a
// Transport that publishes to peerSID's inbound subject.
func NewNATSTransport(nc *nats.Conn, localSID, peerSID string) (Transport, error) {
	t := &natsTransport{
		nc:      nc,
		outSubj: fmt.Sprintf("burst.%s.in", peerSID),
		msgs:    make(chan *nats.Msg, 256),
	}

	sub, err := nc.ChanSubscribe(fmt.Sprintf("burst.%s.in", localSID), t.msgs)
	if err != nil {
		return nil, fmt.Errorf("burst: subscribing for %s: %w", localSID, err)
	}
	t.sub = sub

	return t, nil
}

func (t *natsTransport) Send(line string) error {
	return t.nc.Publish(t.outSubj, []byte(line))
}

func (t *natsTransport) Recv() (string, error) {
	msg, ok := <-t.msgs
	if !ok {
		return "", fmt.Errorf("burst: nats transport closed")
	}
	return string(msg.Data), nil
}

func (t *natsTransport) Close() error {
	return t.sub.Unsubscribe()
}
