/*
   Copyright (c) 2020, btnmasher
   All rights reserved.

   Redistribution and use in source and binary forms, with or without modification, are permitted provided that
   the following conditions are met:

   1. Redistributions of source code must retain the above copyright notice, this list of conditions and the
      following disclaimer.

   2. Redistributions in binary form must reproduce the above copyright notice, this list of conditions and
      the following disclaimer in the documentation and/or other materials provided with the distribution.

   3. Neither the name of the copyright holder nor the names of its contributors may be used to endorse or
      promote products derived from this software without specific prior written permission.

   THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED
   WARRANTIES, INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS FOR A
   PARTICULAR PURPOSE ARE DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR CONTRIBUTORS BE LIABLE FOR
   ANY DIRECT, INDIRECT, INCIDENTAL, SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING, BUT NOT LIMITED
   TO, PROCUREMENT OF SUBSTITUTE GOODS OR SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS INTERRUPTION)
   HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY, WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
   NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE OF THIS SOFTWARE, EVEN IF ADVISED OF THE
   POSSIBILITY OF SUCH DAMAGE.
*/

package dircd

import (
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solanum-go/ircd/internal/batch"
	"github.com/solanum-go/ircd/internal/chmode"
	"github.com/solanum-go/ircd/internal/config"
	"github.com/solanum-go/ircd/internal/hook"
	"github.com/solanum-go/ircd/internal/hostmask"
	"github.com/solanum-go/ircd/internal/metrics"
	"github.com/solanum-go/ircd/internal/monitor"
	"github.com/solanum-go/ircd/internal/privilege"
	"github.com/solanum-go/ircd/internal/scheduler"
	"github.com/solanum-go/ircd/internal/support"
)

// KeepAliveTimeout sets the connection timeout duration on client TCP sockets.
const KeepAliveTimeout time.Duration = 2 * time.Minute

// WriteTimeout sets the write timeout duration on client connections.
const WriteTimeout time.Duration = 5 * time.Second

// PingTimeout sets the PING/PONG idle timeout duration.
const PingTimeout time.Duration = 30 * time.Second

// Server holds the full state of one TS6-speaking daemon instance: its
// configuration, client/channel indices, the shared mode and extban
// tables, the hook bus and command registry, and the background services
// (scheduler, batch engine, monitor, metrics). Generalized from the
// teacher's single-listener Server (see the removed fields Users/Nicks/
// Conns/Channels, now ClientIndex/ChannelIndex) to the full daemon.
type Server struct {
	cfgStore *config.Store
	logger   *logrus.Entry

	sid string

	Clients  *ClientIndex
	Channels *ChannelIndex
	Servers  *PeerIndex

	ModeTable   *chmode.Table
	ExtbanTable *chmode.ExtbanTable
	HostIndex   *hostmask.Index
	Privileges  *privilege.Registry
	Support     *support.Registry
	Monitors    *monitor.Service[string]
	Batches     *batch.Open
	Scheduler   *scheduler.Scheduler
	Hooks       *hook.Bus
	Commands    *Registry
	Metrics     *metrics.Registry

	startedAt time.Time
	listener  net.Listener
}

// NewServer constructs a Server from a config.Store, wiring every
// internal package into the concrete daemon the rest of the codebase
// operates on.
func NewServer(store *config.Store, metricsReg *metrics.Registry) *Server {
	cfg := store.Load()

	hooks := hook.New()
	srv := &Server{
		cfgStore:    store,
		logger:      cfg.Logger.WithField("component", "server"),
		sid:         cfg.SID,
		Clients:     NewClientIndex(),
		Channels:    NewChannelIndex(),
		Servers:     NewPeerIndex(),
		ModeTable:   chmode.NewTable(),
		ExtbanTable: chmode.NewExtbanTable(),
		HostIndex:   hostmask.New(),
		Privileges:  privilege.NewRegistry(),
		Support:     support.FromLimits(cfg.Limits),
		Monitors:    monitor.New[string](cfg.Limits.MaxMonitorSize),
		Batches:     batch.NewOpen(batchRegistry),
		Scheduler:   scheduler.New(),
		Hooks:       hooks,
		Commands:    NewRegistry(hooks, logrus.NewEntry(cfg.Logger)),
		Metrics:     metricsReg,
		startedAt:   time.Now(),
	}
	registerCommands(srv.Commands)
	registerChannelModes(srv.ModeTable)
	registerNickEngine(srv.Commands)
	registerSjoinEngine(srv.Commands)
	registerBatchEngine(srv, srv.Commands)
	registerMonitorEngine(srv, srv.Commands)
	registerIntrospectionEngine(srv.Commands)
	registerLinkEngine(srv.Commands)
	populateHostIndex(srv.HostIndex, cfg)
	return srv
}

// Config returns the currently active configuration snapshot.
func (server *Server) Config() *config.Config {
	return server.cfgStore.Load()
}

// SID returns this server's three-byte identifier.
func (server *Server) SID() string {
	return server.sid
}

// Name returns the server's configured hostname, used as the message
// origin for locally-generated numerics and notices.
func (server *Server) Name() string {
	return server.Config().Hostname
}

// Network returns the configured network name.
func (server *Server) Network() string {
	return server.Config().Network
}

// Uptime reports how long this process has been serving.
func (server *Server) Uptime() time.Duration {
	return time.Since(server.startedAt)
}

// RerouteNumeric implements dispatch step 3 for numerics not addressed
// to this server: forward to the named client or channel if local,
// otherwise onward to the owning peer link.
func (server *Server) RerouteNumeric(origin *Client, msg *MsgBuf, target string) {
	if target == EMPTY {
		return
	}
	if target[0] == '#' || target[0] == '&' {
		ch, ok := server.Channels.Get(target)
		if !ok {
			return
		}
		ch.ForEachLocalMember(func(m *Membership) {
			m.Client.server.deliver(m.Client, msg)
		})
		return
	}
	if c, ok := server.Clients.ByNick(target); ok {
		server.deliver(c, msg)
		return
	}
	if c, ok := server.Clients.ByUID(target); ok {
		server.deliver(c, msg)
	}
}

// deliver renders msg for one recipient's capability mask and writes it
// to their sendq (local) or onward link (remote).
func (server *Server) deliver(c *Client, msg *MsgBuf) {
	if c.IsLocal() {
		c.WriteLine(msg.Render(c.caps.Acked))
		return
	}
	if peer, ok := server.Servers.ByUID(c.SID()); ok {
		peer.WriteLine(msg.Render(^CapMask(0)))
	}
}

// ListenAndServe listens on addr (":6667" if empty) and serves plaintext
// client connections.
func (server *Server) ListenAndServe(addr string) error {
	if addr == EMPTY {
		addr = ":6667"
	}
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return server.Serve(tcpKeepAliveListener{listen.(*net.TCPListener)})
}

// ListenAndServeTLS listens on addr (":6697" if empty) and serves TLS
// client connections using the server's configured certificate.
func (server *Server) ListenAndServeTLS(addr string, tlsConfig *tls.Config) error {
	if addr == EMPTY {
		addr = ":6697"
	}
	cfg := cloneTLSConfig(tlsConfig)
	listen, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return server.Serve(tls.NewListener(tcpKeepAliveListener{listen.(*net.TCPListener)}, cfg))
}

// Serve accepts connections from listen and hands each to a new local
// Client, adapted from the teacher's accept-retry-backoff loop.
func (server *Server) Serve(listen net.Listener) error {
	defer listen.Close()
	server.listener = listen

	server.logger.Infof("listening at %s", listen.Addr())

	var tempDelay time.Duration

	for {
		sock, err := listen.Accept()
		if err != nil {
			if neterr, ok := err.(net.Error); ok && neterr.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				server.logger.WithError(err).Warnf("accept error, retrying in %s", tempDelay)
				time.Sleep(tempDelay)
				continue
			}
			return err
		}
		tempDelay = 0

		if server.checkDline(sock) {
			sock.Close()
			continue
		}

		client := NewLocalClient(sock, server, server.Config().Limits.MaxSendQBytes)
		go server.serveClient(client)
	}
}

// cloneTLSConfig returns a shallow clone of cfg's exported fields, since
// tls.Config carries an internal sync.Once that must not be copied.
func cloneTLSConfig(cfg *tls.Config) *tls.Config {
	if cfg == nil {
		return &tls.Config{}
	}
	clone := cfg.Clone()
	return clone
}

// tcpKeepAliveListener enables TCP keep-alives on every accepted
// connection, unchanged in spirit from the teacher's listener wrapper.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (listen tcpKeepAliveListener) Accept() (net.Conn, error) {
	conn, err := listen.AcceptTCP()
	if err != nil {
		return nil, err
	}
	conn.SetKeepAlive(true)
	conn.SetKeepAlivePeriod(KeepAliveTimeout)
	return conn, nil
}

// registerChannelModes wires the standard TS6 channel mode characters
// into the shared mode table. Concrete handler bodies live in modes.go.
func registerChannelModes(table *chmode.Table) {
	registerStandardModes(table)
}

var batchRegistry = batch.NewRegistry()

// fmtReason is a small helper shared by the SQUIT/KILL paths for
// building "reason (detail)" style strings.
func fmtReason(reason, detail string) string {
	if detail == EMPTY {
		return reason
	}
	return fmt.Sprintf("%s (%s)", reason, detail)
}
