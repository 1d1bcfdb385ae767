/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"github.com/Seednode/rustam/internal/room"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type metrics struct {
	registry *prometheus.Registry

	roomsCreated  prometheus.Counter
	roomsReaped   prometheus.Counter
	playersJoined prometheus.Counter
	transitions   *prometheus.CounterVec
	storeErrors   prometheus.Counter
	viewers       prometheus.Gauge
}

func newMetrics() *metrics {
	m := &metrics{
		roomsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rustam",
			Name:      "rooms_created_total",
			Help:      "Rooms created since start.",
		}),
		roomsReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rustam",
			Name:      "rooms_reaped_total",
			Help:      "Rooms deleted after expiring.",
		}),
		playersJoined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rustam",
			Name:      "players_joined_total",
			Help:      "Players added to a room.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rustam",
			Name:      "transitions_total",
			Help:      "Game state operations by operation and outcome.",
		}, []string{"op", "outcome"}),
		storeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "rustam",
			Name:      "store_errors_total",
			Help:      "Requests that failed because the data store did.",
		}),
		viewers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "rustam",
			Name:      "viewers",
			Help:      "Open websocket connections following a room.",
		}),
	}

	m.registry = prometheus.NewRegistry()
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.roomsCreated,
		m.roomsReaped,
		m.playersJoined,
		m.transitions,
		m.storeErrors,
		m.viewers,
	)

	return m
}

// observeTransition records the outcome of a state machine operation.
func (m *metrics) observeTransition(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = room.Kind(err)
	}

	m.transitions.WithLabelValues(op, outcome).Inc()
}

func registerMetrics(cfg *Config, m *metrics, mux *httprouter.Router) {
	mux.Handler("GET", cfg.prefix+"/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
