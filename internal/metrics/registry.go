// Package metrics owns the monitor's Prometheus state and its HTTP exposition.
//
// A single Registry is created at startup and handed to every component that
// writes telemetry. Each gauge has one writer:
//   - supervisor: icecast_up, icecast_reconnect_attempts_total, session reset
//   - peak parser: icecast_audio_peak_{left,right}_dbfs
//   - rate meter: icecast_download_rate_*
//   - listener poller: icecast_listeners_*
package metrics

import (
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	dto "github.com/prometheus/client_model/go"

	"github.com/randomizedcoder/go-icecast-monitor/internal/listeners"
)

// RegistryConfig controls which metric families are exposed.
type RegistryConfig struct {
	// Listeners registers the icecast_listeners_* families. Only set when a
	// status URL is configured.
	Listeners bool

	// Runtime adds the Go and process collectors.
	Runtime bool

	// StartTime overrides icecast_process_start_time_seconds (tests).
	StartTime time.Time
}

// Registry holds every gauge and counter the monitor exports.
type Registry struct {
	reg *prometheus.Registry

	up                prometheus.Gauge
	downloadRate      prometheus.Gauge
	downloadRateP50   prometheus.Gauge
	downloadRateMax   prometheus.Gauge
	peakLeft          prometheus.Gauge
	peakRight         prometheus.Gauge
	reconnects        prometheus.Counter
	processStart      prometheus.Gauge
	listenersCurrent  *prometheus.GaugeVec
	listenersPeak     *prometheus.GaugeVec
	listenersCombined prometheus.Gauge
	listenersCombPeak prometheus.Gauge

	// Mirrors of gauge values for cheap reads by the dashboard and /ws/levels.
	connected  atomic.Bool
	rate       atomic.Uint64
	rateP50    atomic.Uint64
	rateMax    atomic.Uint64
	left       atomic.Uint64
	right      atomic.Uint64
	rightSet   atomic.Bool
	reconnectN atomic.Int64
	startTime  time.Time

	listenersEnabled bool
	listenersMu      sync.Mutex
	lastMounts       map[string]struct{}
	snapshot         atomic.Pointer[listeners.Snapshot]
}

// NewRegistry creates a registry with all families registered on a private
// prometheus.Registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	start := cfg.StartTime
	if start.IsZero() {
		start = time.Now()
	}

	r := &Registry{
		reg:       prometheus.NewRegistry(),
		startTime: start,

		up: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_up",
			Help: "Connection status (0=down, 1=up)",
		}),
		downloadRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_download_rate_bytes_per_second",
			Help: "Stream download rate",
		}),
		downloadRateP50: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_download_rate_p50_bytes_per_second",
			Help: "Median download rate over the rolling window",
		}),
		downloadRateMax: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_download_rate_max_bytes_per_second",
			Help: "Maximum download rate over the rolling window",
		}),
		peakLeft: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_audio_peak_left_dbfs",
			Help: "Left channel audio peak level in dBFS",
		}),
		peakRight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_audio_peak_right_dbfs",
			Help: "Right channel audio peak level in dBFS",
		}),
		reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "icecast_reconnect_attempts_total",
			Help: "Total reconnection attempts",
		}),
		processStart: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_process_start_time_seconds",
			Help: "Start time of the process since unix epoch",
		}),
	}

	r.reg.MustRegister(
		r.up,
		r.downloadRate,
		r.downloadRateP50,
		r.downloadRateMax,
		r.peakLeft,
		r.peakRight,
		r.reconnects,
		r.processStart,
	)

	if cfg.Listeners {
		r.listenersEnabled = true
		r.lastMounts = make(map[string]struct{})
		r.listenersCurrent = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "icecast_listeners_current",
			Help: "Current listeners per mount",
		}, []string{"stream"})
		r.listenersPeak = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "icecast_listeners_peak",
			Help: "Peak listeners per mount",
		}, []string{"stream"})
		r.listenersCombined = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_listeners_combined_current",
			Help: "Current listeners across all mounts",
		})
		r.listenersCombPeak = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "icecast_listeners_combined_peak",
			Help: "Sum of per-mount peak listeners",
		})
		r.reg.MustRegister(
			r.listenersCurrent,
			r.listenersPeak,
			r.listenersCombined,
			r.listenersCombPeak,
		)
	}

	if cfg.Runtime {
		r.reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}

	r.up.Set(0)
	r.processStart.Set(float64(start.UnixNano()) / 1e9)
	r.SetPeakLeft(math.NaN())
	r.setRight(math.NaN())

	return r
}

// Gatherer returns the underlying prometheus gatherer for exposition.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// SetConnected sets icecast_up.
func (r *Registry) SetConnected(up bool) {
	r.connected.Store(up)
	v := 0.0
	if up {
		v = 1
	}
	r.up.Set(v)
}

// SetDownloadRate sets the most recent computed rate.
func (r *Registry) SetDownloadRate(bytesPerSec float64) {
	r.rate.Store(math.Float64bits(bytesPerSec))
	r.downloadRate.Set(bytesPerSec)
}

// SetRateWindow sets the rolling-window rate summary.
func (r *Registry) SetRateWindow(p50, max float64) {
	r.rateP50.Store(math.Float64bits(p50))
	r.rateMax.Store(math.Float64bits(max))
	r.downloadRateP50.Set(p50)
	r.downloadRateMax.Set(max)
}

// SetPeakLeft sets the left channel peak.
func (r *Registry) SetPeakLeft(dbfs float64) {
	r.left.Store(math.Float64bits(dbfs))
	r.peakLeft.Set(dbfs)
}

// SetPeakRight sets the right channel peak and marks it as set for the
// current session.
func (r *Registry) SetPeakRight(dbfs float64) {
	r.setRight(dbfs)
	r.rightSet.Store(true)
}

func (r *Registry) setRight(dbfs float64) {
	r.right.Store(math.Float64bits(dbfs))
	r.peakRight.Set(dbfs)
}

// RightPeakSet reports whether the right channel has been set this session.
func (r *Registry) RightPeakSet() bool {
	return r.rightSet.Load()
}

// ResetSession marks the stream down, zeroes the download rate and returns
// both peaks to unknown.
func (r *Registry) ResetSession() {
	r.SetConnected(false)
	r.SetDownloadRate(0)
	r.SetPeakLeft(math.NaN())
	r.setRight(math.NaN())
	r.rightSet.Store(false)
}

// RecordReconnect increments icecast_reconnect_attempts_total and returns the
// new attempt number.
func (r *Registry) RecordReconnect() int64 {
	r.reconnects.Inc()
	return r.reconnectN.Add(1)
}

// SetListeners replaces the listener families with snap. Mounts absent from
// snap are removed from the exposition.
func (r *Registry) SetListeners(snap listeners.Snapshot) {
	if !r.listenersEnabled {
		return
	}

	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()

	next := make(map[string]struct{}, len(snap.Mounts))
	for mount, c := range snap.Mounts {
		r.listenersCurrent.WithLabelValues(mount).Set(float64(c.Current))
		r.listenersPeak.WithLabelValues(mount).Set(float64(c.Peak))
		next[mount] = struct{}{}
	}
	for mount := range r.lastMounts {
		if _, ok := next[mount]; !ok {
			r.listenersCurrent.DeleteLabelValues(mount)
			r.listenersPeak.DeleteLabelValues(mount)
		}
	}
	r.lastMounts = next

	r.listenersCombined.Set(float64(snap.CombinedCurrent))
	r.listenersCombPeak.Set(float64(snap.CombinedPeak))
	r.snapshot.Store(&snap)
}

// Snapshot is a point-in-time copy of the monitor state.
type Snapshot struct {
	Connected    bool
	DownloadRate float64
	RateP50      float64
	RateMax      float64
	PeakLeft     float64 // NaN when unknown
	PeakRight    float64 // NaN when unknown
	Reconnects   int64
	StartTime    time.Time
	Listeners    *listeners.Snapshot // nil until the first successful poll
	ListenersOn  bool
}

// Snapshot returns the current values.
func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		Connected:    r.connected.Load(),
		DownloadRate: math.Float64frombits(r.rate.Load()),
		RateP50:      math.Float64frombits(r.rateP50.Load()),
		RateMax:      math.Float64frombits(r.rateMax.Load()),
		PeakLeft:     math.Float64frombits(r.left.Load()),
		PeakRight:    math.Float64frombits(r.right.Load()),
		Reconnects:   r.reconnectN.Load(),
		StartTime:    r.startTime,
		Listeners:    r.snapshot.Load(),
		ListenersOn:  r.listenersEnabled,
	}
}

// Value reads a single unlabelled gauge or counter back out of the gatherer.
// Returns false if the family is missing.
func Value(g prometheus.Gatherer, name string) (float64, bool) {
	families, err := g.Gather()
	if err != nil {
		return 0, false
	}
	for _, mf := range families {
		if mf.GetName() != name || len(mf.GetMetric()) == 0 {
			continue
		}
		return metricValue(mf.GetType(), mf.GetMetric()[0]), true
	}
	return 0, false
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	case dto.MetricType_UNTYPED:
		return m.GetUntyped().GetValue()
	default:
		return math.NaN()
	}
}
