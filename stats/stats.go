// Package stats provides observability for the membership engine: counters
// for packets sent/received, malformed packets, and capacity-exceeded
// drops, plus a num_active gauge per robot. The engine never branches on
// anything a Tracker reports (spec §5's "no error is recovered by silently
// reordering" property holds regardless of what's being counted).
/*
 * Copyright (c) 2018-2024, NVIDIA CORPORATION. All rights reserved.
 */
package stats

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// NamedVal64 batches a counter update for AddMany, grounded on aistore's
// own stats.Tracker.AddMany signature.
type NamedVal64 struct {
	Name  string
	Value int64
}

// Tracker is the minimal interface every component that reports metrics
// depends on, grounded on cluster/mock.StatsTracker's shape.
type Tracker interface {
	Inc(name string)
	Add(name string, val int64)
	AddMany(nvs ...NamedVal64)
	SetGauge(name string, val float64)
	GetStats() map[string]int64
}

// PromTracker backs Tracker with prometheus/client_golang counters and
// gauges, each created lazily on first use and registered against its own
// private registry (one per robot, so a multi-robot sim harness process
// doesn't collide on metric names).
type PromTracker struct {
	mu       sync.Mutex
	reg      *prometheus.Registry
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	vals     map[string]int64
}

func NewPromTracker() *PromTracker {
	return &PromTracker{
		reg:      prometheus.NewRegistry(),
		counters: make(map[string]prometheus.Counter),
		gauges:   make(map[string]prometheus.Gauge),
		vals:     make(map[string]int64),
	}
}

func sanitize(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func (t *PromTracker) counter(name string) prometheus.Counter {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.counters[name]
	if !ok {
		c = prometheus.NewCounter(prometheus.CounterOpts{Name: sanitize(name), Help: name})
		t.reg.MustRegister(c)
		t.counters[name] = c
	}
	return c
}

func (t *PromTracker) gauge(name string) prometheus.Gauge {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.gauges[name]
	if !ok {
		g = prometheus.NewGauge(prometheus.GaugeOpts{Name: sanitize(name), Help: name})
		t.reg.MustRegister(g)
		t.gauges[name] = g
	}
	return g
}

func (t *PromTracker) Inc(name string) { t.Add(name, 1) }

func (t *PromTracker) Add(name string, val int64) {
	t.counter(name).Add(float64(val))
	t.mu.Lock()
	t.vals[name] += val
	t.mu.Unlock()
}

func (t *PromTracker) AddMany(nvs ...NamedVal64) {
	for _, nv := range nvs {
		t.Add(nv.Name, nv.Value)
	}
}

func (t *PromTracker) SetGauge(name string, val float64) { t.gauge(name).Set(val) }

func (t *PromTracker) GetStats() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.vals))
	for k, v := range t.vals {
		out[k] = v
	}
	return out
}
