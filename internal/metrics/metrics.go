// Copyright (C) 2026 The detd Authors. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package metrics defines the prometheus collectors exposed by detd
// (spec §9 ambient stack, SPEC_FULL.md §4.11). It does not run an HTTP
// exporter: wiring a collector registry into a scrape endpoint is a
// deployment concern, not part of this module's operations.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the collectors registered by the service.
type Metrics struct {
	AdmissionsTotal   *prometheus.CounterVec
	AdmittedStreams   *prometheus.GaugeVec
	EffectorRollbacks prometheus.Counter
}

// New registers a fresh set of collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AdmissionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "detd",
			Name:      "admissions_total",
			Help:      "Talker admission requests by interface and result.",
		}, []string{"interface", "result"}),
		AdmittedStreams: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "detd",
			Name:      "admitted_streams",
			Help:      "Currently admitted scheduled streams per interface.",
		}, []string{"interface"}),
		EffectorRollbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "detd",
			Name:      "effector_rollbacks_total",
			Help:      "Effector Apply calls that triggered a rollback.",
		}),
	}

	reg.MustRegister(m.AdmissionsTotal, m.AdmittedStreams, m.EffectorRollbacks)
	return m
}

// RecordAdmission records the outcome of one add_talker call. result is
// "ok" on success, or the rejection's errors.Kind string otherwise
// (e.g. "no_capacity", "effector_fatal").
func (m *Metrics) RecordAdmission(iface, result string) {
	m.AdmissionsTotal.WithLabelValues(iface, result).Inc()
	if result == "ok" {
		m.AdmittedStreams.WithLabelValues(iface).Inc()
	}
}

// RecordRollback records one effector rollback, regardless of whether it
// succeeded or left the interface degraded.
func (m *Metrics) RecordRollback() {
	m.EffectorRollbacks.Inc()
}
