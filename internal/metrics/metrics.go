// Copyright 2025 The Katana Authors
// This file is part of Katana.
//
// Katana is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Katana is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Katana. If not, see <http://www.gnu.org/licenses/>.

// Package metrics holds the process-wide Prometheus registry and the
// node-level gauges. The storage engine's own metric set
// (internal/kv.Metrics) registers against the same registry at node
// start; the /metrics HTTP handler is served by cmd/katana when
// --metrics.port is set.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Node bundles the sequencer-level metrics: pool depth, produced
// blocks, current head.
type Node struct {
	PoolSize       prometheus.Gauge
	BlocksProduced prometheus.Counter
	HeadNumber     prometheus.Gauge
	TxsCommitted   prometheus.Counter
}

// NewNode builds the node metric set unregistered.
func NewNode() *Node {
	ns := "katana_node"
	return &Node{
		PoolSize:       prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "pool_size"}),
		BlocksProduced: prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "blocks_produced_total"}),
		HeadNumber:     prometheus.NewGauge(prometheus.GaugeOpts{Namespace: ns, Name: "head_number"}),
		TxsCommitted:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "txs_committed_total"}),
	}
}

// Register attaches the node metrics to reg.
func (n *Node) Register(reg prometheus.Registerer) {
	reg.MustRegister(n.PoolSize, n.BlocksProduced, n.HeadNumber, n.TxsCommitted)
}

// NewRegistry builds the single process-wide registry.
func NewRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// Handler exposes reg over HTTP for the --metrics.port listener.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
