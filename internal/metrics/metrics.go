// Package metrics declares the daemon's Prometheus instrumentation,
// matching the teacher's internal/metrics/metrics.go in shape
// (package-level promauto vars, a fluid_settings_* name prefix) with the
// queue/WAL/rate-limit counters replaced by settings/replication ones.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts every client-facing request by command and
	// result, e.g. {command="FLUID_SETTINGS_GET",result="SUCCESS"}.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluid_settings_requests_total",
			Help: "Total number of client requests handled, by command and result",
		},
		[]string{"command", "result"},
	)

	// SubscribersGauge reports how many (setting name, subscriber)
	// subscriptions are currently registered; a subscriber listening to
	// three names counts three times.
	SubscribersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluid_settings_subscribers",
			Help: "Number of (setting name, subscriber) subscriptions currently registered",
		},
	)

	// WatchedNamesGauge reports how many distinct setting names have at
	// least one active subscriber.
	WatchedNamesGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluid_settings_watched_names",
			Help: "Number of distinct setting names with at least one subscriber",
		},
	)

	// PeersGauge reports how many peer replication connections are
	// currently live.
	PeersGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluid_settings_peers",
			Help: "Number of live peer replication connections",
		},
	)

	// ReplicatorErrorsTotal counts peer-connection failures, by stage.
	ReplicatorErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluid_settings_replicator_errors_total",
			Help: "Total number of peer connection errors, by stage",
		},
		[]string{"stage"},
	)

	// AntiEntropyRecordsTotal counts records exchanged during anti-
	// entropy streaming on new peer connections.
	AntiEntropyRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluid_settings_anti_entropy_records_total",
			Help: "Total number of records exchanged during anti-entropy, by direction",
		},
		[]string{"direction"},
	)

	// ValueChangedTotal counts VALUE_CHANGED frames sent or received
	// over peer connections.
	ValueChangedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluid_settings_value_changed_total",
			Help: "Total number of VALUE_CHANGED frames exchanged with peers, by direction",
		},
		[]string{"direction"},
	)

	// SettingsGauge reports how many distinct setting names currently
	// hold at least one record.
	SettingsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fluid_settings_settings",
			Help: "Number of distinct settings with at least one stored record",
		},
	)

	// SavesTotal counts persistence saves, split by outcome.
	SavesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fluid_settings_saves_total",
			Help: "Total number of persistence saves attempted, by outcome",
		},
		[]string{"outcome"},
	)
)
