/*
   Copyright (c) 2023, btnmasher
   All rights reserved.
   Use of this source code is governed by a BSD-style
   license that can be found in the LICENSE file.
*/

// Package metrics wires prometheus/client_golang counters and gauges for
// the core's STATS-adjacent observability (the teacher has no metrics
// layer at all; this is pure domain-stack enrichment per the pack's
// prometheus-using examples).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the core exports, registered against a
// caller-supplied *prometheus.Registry so tests can use an isolated one.
type Registry struct {
	ClientsConnected prometheus.Gauge
	ChannelsActive   prometheus.Gauge
	ServersLinked    prometheus.Gauge

	MessagesIn  prometheus.Counter
	MessagesOut prometheus.Counter
	BytesIn     prometheus.Counter
	BytesOut    prometheus.Counter

	CommandsTotal   *prometheus.CounterVec
	NickCollisions  prometheus.Counter
	FloodKills      prometheus.Counter
	SendqKills      prometheus.Counter
	BatchesOpened   prometheus.Counter
	BatchesTimedOut prometheus.Counter
}

// New builds a Registry and registers every metric against reg.
func New(reg prometheus.Registerer) *Registry {
	m := &Registry{
		ClientsConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum", Name: "clients_connected", Help: "Locally connected clients.",
		}),
		ChannelsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum", Name: "channels_active", Help: "Channels with at least one member.",
		}),
		ServersLinked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "solanum", Name: "servers_linked", Help: "Directly and indirectly linked servers.",
		}),
		MessagesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "messages_in_total", Help: "Messages parsed from clients and peers.",
		}),
		MessagesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "messages_out_total", Help: "Messages written to clients and peers.",
		}),
		BytesIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "bytes_in_total", Help: "Raw bytes read from all connections.",
		}),
		BytesOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "bytes_out_total", Help: "Raw bytes written to all connections.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "solanum", Name: "commands_total", Help: "Dispatched commands by verb.",
		}, []string{"command"}),
		NickCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "nick_collisions_total", Help: "TS-resolved nick collisions.",
		}),
		FloodKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "flood_kills_total", Help: "Clients disconnected for excess flood.",
		}),
		SendqKills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "sendq_kills_total", Help: "Clients disconnected for sendq overflow.",
		}),
		BatchesOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "batches_opened_total", Help: "BATCH blocks opened.",
		}),
		BatchesTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "solanum", Name: "batches_timed_out_total", Help: "BATCH blocks swept for exceeding their 15s timeout.",
		}),
	}

	reg.MustRegister(
		m.ClientsConnected, m.ChannelsActive, m.ServersLinked,
		m.MessagesIn, m.MessagesOut, m.BytesIn, m.BytesOut,
		m.CommandsTotal, m.NickCollisions, m.FloodKills, m.SendqKills,
		m.BatchesOpened, m.BatchesTimedOut,
	)

	return m
}
