// Package stats is an in-process metrics store: labeled counters, gauges,
// and histograms with bounded-memory percentile estimation. It backs the
// /cache/stats endpoint and is independent from the Prometheus registry,
// which covers process-level metrics.
//
// Recording is best-effort. No method fails, panics, or blocks the caller's
// request path beyond a per-series mutex; when the distinct-series cap is
// reached, new series are dropped silently.
package stats

import (
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultWindow is the number of retained histogram samples per series.
	DefaultWindow = 1000
	// DefaultMaxSeries caps distinct name+labels combinations per kind.
	DefaultMaxSeries = 4096
)

// Engine is a concurrency-safe metrics store. Distinct series never contend:
// the registry lock is only taken to resolve a series, mutation happens
// under the per-series lock.
type Engine struct {
	start time.Time

	window    int
	maxSeries int

	mu         sync.RWMutex
	counters   map[string]*counter
	gauges     map[string]*gauge
	histograms map[string]*histogram
}

// New creates an Engine with default window and series limits.
func New() *Engine {
	return &Engine{
		start:      time.Now(),
		window:     DefaultWindow,
		maxSeries:  DefaultMaxSeries,
		counters:   make(map[string]*counter),
		gauges:     make(map[string]*gauge),
		histograms: make(map[string]*histogram),
	}
}

// WithWindow sets the retained-sample capacity per histogram series.
// Values below 1 keep the default.
func (e *Engine) WithWindow(n int) *Engine {
	if n > 0 {
		e.window = n
	}
	return e
}

// WithMaxSeries caps distinct label combinations per metric kind.
// Values below 1 keep the default.
func (e *Engine) WithMaxSeries(n int) *Engine {
	if n > 0 {
		e.maxSeries = n
	}
	return e
}

type counter struct {
	mu    sync.Mutex
	value int64
}

type gauge struct {
	mu    sync.Mutex
	value float64
}

// histogram keeps a cumulative count/sum over all observations and a
// fixed-capacity ring of the most recent samples. Eviction is oldest-first:
// percentiles reflect the retained window only, count and sum reflect the
// full history.
type histogram struct {
	mu     sync.Mutex
	count  uint64
	sum    float64
	window []float64
	next   int
}

// IncCounter adds delta to the named counter series.
func (e *Engine) IncCounter(name string, labels map[string]string, delta int64) {
	c := e.counter(seriesKey(name, labels))
	if c == nil {
		return
	}
	c.mu.Lock()
	c.value += delta
	c.mu.Unlock()
}

// SetGauge sets the named gauge series to value (last write wins).
func (e *Engine) SetGauge(name string, labels map[string]string, value float64) {
	g := e.gauge(seriesKey(name, labels))
	if g == nil {
		return
	}
	g.mu.Lock()
	g.value = value
	g.mu.Unlock()
}

// ObserveHistogram records a sample into the named histogram series.
func (e *Engine) ObserveHistogram(name string, labels map[string]string, value float64) {
	h := e.histogram(seriesKey(name, labels))
	if h == nil {
		return
	}
	h.mu.Lock()
	h.count++
	h.sum += value
	if len(h.window) < cap(h.window) {
		h.window = append(h.window, value)
	} else {
		h.window[h.next] = value
		h.next = (h.next + 1) % len(h.window)
	}
	h.mu.Unlock()
}

// Uptime returns the time elapsed since the engine was constructed.
func (e *Engine) Uptime() time.Duration {
	return time.Since(e.start)
}

// Snapshot is a point-in-time summary of all recorded series.
type Snapshot struct {
	UptimeSeconds float64                     `json:"uptime_seconds"`
	Counters      map[string]int64            `json:"counters"`
	Gauges        map[string]float64          `json:"gauges"`
	Histograms    map[string]HistogramSummary `json:"histograms"`
}

// HistogramSummary aggregates one histogram series. Count and Sum are
// cumulative over all observations; Min, Max, and percentiles come from the
// retained window.
type HistogramSummary struct {
	Count uint64  `json:"count"`
	Sum   float64 `json:"sum"`
	Avg   float64 `json:"avg"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	P50   float64 `json:"p50"`
	P95   float64 `json:"p95"`
	P99   float64 `json:"p99"`
}

// Snapshot returns a consistent per-series view of every counter, gauge, and
// histogram. Series reads are individually atomic; atomicity across series
// is not guaranteed.
func (e *Engine) Snapshot() Snapshot {
	snap := Snapshot{
		UptimeSeconds: time.Since(e.start).Seconds(),
		Counters:      make(map[string]int64),
		Gauges:        make(map[string]float64),
		Histograms:    make(map[string]HistogramSummary),
	}

	e.mu.RLock()
	counters := make(map[string]*counter, len(e.counters))
	for k, v := range e.counters {
		counters[k] = v
	}
	gauges := make(map[string]*gauge, len(e.gauges))
	for k, v := range e.gauges {
		gauges[k] = v
	}
	histograms := make(map[string]*histogram, len(e.histograms))
	for k, v := range e.histograms {
		histograms[k] = v
	}
	e.mu.RUnlock()

	for k, c := range counters {
		c.mu.Lock()
		snap.Counters[k] = c.value
		c.mu.Unlock()
	}
	for k, g := range gauges {
		g.mu.Lock()
		snap.Gauges[k] = g.value
		g.mu.Unlock()
	}
	for k, h := range histograms {
		snap.Histograms[k] = h.summarize()
	}

	return snap
}

func (h *histogram) summarize() HistogramSummary {
	h.mu.Lock()
	count := h.count
	sum := h.sum
	retained := make([]float64, len(h.window))
	copy(retained, h.window)
	h.mu.Unlock()

	s := HistogramSummary{Count: count, Sum: sum}
	if count > 0 {
		s.Avg = sum / float64(count)
	}
	if len(retained) == 0 {
		return s
	}

	sort.Float64s(retained)
	s.Min = retained[0]
	s.Max = retained[len(retained)-1]
	s.P50 = percentile(retained, 0.50)
	s.P95 = percentile(retained, 0.95)
	s.P99 = percentile(retained, 0.99)
	return s
}

// percentile indexes sorted samples at ceil(p*n)-1, clamped to [0, n-1].
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Ceil(p*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func (e *Engine) counter(key string) *counter {
	e.mu.RLock()
	c, ok := e.counters[key]
	e.mu.RUnlock()
	if ok {
		return c
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok = e.counters[key]; ok {
		return c
	}
	if len(e.counters) >= e.maxSeries {
		return nil
	}
	c = &counter{}
	e.counters[key] = c
	return c
}

func (e *Engine) gauge(key string) *gauge {
	e.mu.RLock()
	g, ok := e.gauges[key]
	e.mu.RUnlock()
	if ok {
		return g
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if g, ok = e.gauges[key]; ok {
		return g
	}
	if len(e.gauges) >= e.maxSeries {
		return nil
	}
	g = &gauge{}
	e.gauges[key] = g
	return g
}

func (e *Engine) histogram(key string) *histogram {
	e.mu.RLock()
	h, ok := e.histograms[key]
	e.mu.RUnlock()
	if ok {
		return h
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if h, ok = e.histograms[key]; ok {
		return h
	}
	if len(e.histograms) >= e.maxSeries {
		return nil
	}
	h = &histogram{window: make([]float64, 0, e.window)}
	e.histograms[key] = h
	return h
}

// seriesKey renders "name" or "name{k1=v1,k2=v2}" with sorted label keys so
// that equal label sets always map to the same series.
func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}

	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(labels[k])
	}
	b.WriteByte('}')
	return b.String()
}
