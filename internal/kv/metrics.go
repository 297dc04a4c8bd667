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

package kv

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/histogram the storage engine emits. A fresh Metrics is created per Env and registered by
// the caller (internal/metrics) against the process-wide registry.
type Metrics struct {
	RoTxCreated      prometheus.Counter
	RwTxCreated      prometheus.Counter
	CommitsSucceeded prometheus.Counter
	CommitsFailed    prometheus.Counter
	RoTxFailed       prometheus.Counter
	Aborts           prometheus.Counter
	GetHits          prometheus.Counter
	GetMisses        prometheus.Counter
	Puts             prometheus.Counter
	PutFailures      prometheus.Counter
	Deletes          prometheus.Counter
	DeleteFailures   prometheus.Counter
	Clears           prometheus.Counter
	TxnLatency       prometheus.Histogram
}

// NewMetrics builds the metric set unregistered; call Register to attach
// it to a prometheus.Registerer.
func NewMetrics() *Metrics {
	ns := "katana_kv"
	return &Metrics{
		RoTxCreated:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "ro_txn_created_total"}),
		RwTxCreated:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "rw_txn_created_total"}),
		CommitsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "commits_succeeded_total"}),
		CommitsFailed:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "commits_failed_total"}),
		RoTxFailed:       prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "ro_txn_failed_total"}),
		Aborts:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "aborts_total"}),
		GetHits:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "get_hits_total"}),
		GetMisses:        prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "get_misses_total"}),
		Puts:             prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "puts_total"}),
		PutFailures:      prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "put_failures_total"}),
		Deletes:          prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "deletes_total"}),
		DeleteFailures:   prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "delete_failures_total"}),
		Clears:           prometheus.NewCounter(prometheus.CounterOpts{Namespace: ns, Name: "clears_total"}),
		TxnLatency:       prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: ns, Name: "txn_latency_seconds", Buckets: prometheus.DefBuckets}),
	}
}

// Register attaches every metric to reg: one process-wide registry,
// built once at node start.
func (m *Metrics) Register(reg prometheus.Registerer) {
	reg.MustRegister(m.RoTxCreated, m.RwTxCreated, m.CommitsSucceeded, m.CommitsFailed,
		m.RoTxFailed, m.Aborts, m.GetHits, m.GetMisses, m.Puts, m.PutFailures,
		m.Deletes, m.DeleteFailures, m.Clears, m.TxnLatency)
}
