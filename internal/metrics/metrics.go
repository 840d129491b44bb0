// Package metrics exposes Prometheus collectors for every subsystem named
// in spec.md §5 (transport, scheduler, tracker, fuser), plus a cheap
// atomic-counter Snapshot for non-Prometheus deployments, mirroring the
// teacher's metrics package shape.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/kstaniek/zl-offload/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Transport
	PacketsSent          = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_packets_sent_total", Help: "Total datagrams sent."})
	PacketsReceived      = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_packets_received_total", Help: "Total datagrams received and accepted."})
	PacketsDropped       = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_packets_dropped_total", Help: "Datagrams dropped on receive (bad magic/version/length/checksum)."})
	PacketsRetransmitted = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_packets_retransmitted_total", Help: "Reliable sends retransmitted."})
	PacketsAbandoned     = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_packets_abandoned_total", Help: "Reliable sends dropped after exceeding max retries."})
	ClientsActive        = promauto.NewGauge(prometheus.GaugeOpts{Name: "transport_clients_active", Help: "Currently registered clients."})
	ClientsTimedOut      = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_clients_timed_out_total", Help: "Clients removed for inactivity."})
	RTTSmoothedMS        = promauto.NewGauge(prometheus.GaugeOpts{Name: "transport_rtt_smoothed_ms", Help: "Most recently computed smoothed RTT, in milliseconds."})
	CongestionWindow     = promauto.NewGauge(prometheus.GaugeOpts{Name: "transport_congestion_window", Help: "Most recently observed congestion window."})
	AggregationFlushes   = promauto.NewCounter(prometheus.CounterOpts{Name: "transport_aggregation_flushes_total", Help: "Aggregation buckets flushed (timer or size triggered)."})

	// Scheduler
	QueueDepth       = promauto.NewGauge(prometheus.GaugeOpts{Name: "scheduler_queue_depth", Help: "Current inference queue depth."})
	FramesSubmitted  = promauto.NewCounter(prometheus.CounterOpts{Name: "scheduler_frames_submitted_total", Help: "Frames submitted to the scheduler."})
	FramesDropped    = promauto.NewCounter(prometheus.CounterOpts{Name: "scheduler_frames_dropped_total", Help: "Frames rejected due to a full queue."})
	FramesEvicted    = promauto.NewCounter(prometheus.CounterOpts{Name: "scheduler_frames_evicted_total", Help: "Non-keyframes evicted to admit an incoming keyframe."})
	InferenceLatency = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scheduler_inference_latency_ms", Help: "Per-request inference latency.", Buckets: prometheus.ExponentialBuckets(1, 2, 12)})
	InferenceErrors  = promauto.NewCounter(prometheus.CounterOpts{Name: "scheduler_inference_errors_total", Help: "Backend inference failures."})
	BatchSize        = promauto.NewHistogram(prometheus.HistogramOpts{Name: "scheduler_batch_size", Help: "Dynamic batcher batch sizes.", Buckets: prometheus.LinearBuckets(1, 1, 16)})
	ModelReloads     = promauto.NewCounter(prometheus.CounterOpts{Name: "scheduler_model_reloads_total", Help: "Model hot-reload swaps performed."})
	SimulationMode   = promauto.NewGauge(prometheus.GaugeOpts{Name: "scheduler_simulation_mode", Help: "1 if the inference backend is running in simulation mode."})

	// Tracker
	TrackerActive    = promauto.NewGauge(prometheus.GaugeOpts{Name: "tracker_active_tracks", Help: "Currently live tracks."})
	TrackerDestroyed = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_destroyed_total", Help: "Tracks destroyed (aged out)."})
	TrackerConfirmed = promauto.NewCounter(prometheus.CounterOpts{Name: "tracker_confirmed_total", Help: "Tracks that crossed min_hits and became confirmed."})

	// Fuser (client)
	FusionMatches    = promauto.NewCounter(prometheus.CounterOpts{Name: "fuser_matches_total", Help: "Server/local detection pairs matched by the fuser."})
	FusionServerOnly = promauto.NewCounter(prometheus.CounterOpts{Name: "fuser_server_only_total", Help: "Unmatched server detections emitted as-is."})
	FusionLocalOnly  = promauto.NewCounter(prometheus.CounterOpts{Name: "fuser_local_only_total", Help: "Unmatched local predictions emitted as-is."})
	FusionStaleDrops = promauto.NewCounter(prometheus.CounterOpts{Name: "fuser_stale_server_dropped_total", Help: "Server states ignored because they were too old."})

	Errors = promauto.NewCounterVec(prometheus.CounterOpts{Name: "errors_total", Help: "Error counters by subsystem."}, []string{"where"})

	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{Name: "build_info", Help: "Build metadata (value is always 1)."}, []string{"version", "commit", "date"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants (stable label values to bound cardinality).
const (
	ErrSocket     = "socket"
	ErrInvalidPkt = "invalid_packet"
	ErrProtocol   = "protocol"
	ErrInference  = "inference"
	ErrModelLoad  = "model_load"
	ErrConfig     = "config"
)

// Snapshot is a cheap, lock-free copy of local counters for logging.
type Snapshot struct {
	PacketsSent          uint64
	PacketsReceived      uint64
	PacketsDropped       uint64
	PacketsRetransmitted uint64
	PacketsAbandoned     uint64
	FramesSubmitted      uint64
	FramesDropped        uint64
	InferenceErrors      uint64
	Errors               uint64
}

var (
	localSent         uint64
	localReceived     uint64
	localDropped      uint64
	localRetransmit   uint64
	localAbandoned    uint64
	localSubmitted    uint64
	localFramesDrop   uint64
	localInferenceErr uint64
	localErrors       uint64
)

// Snap returns the current local-counter snapshot.
func Snap() Snapshot {
	return Snapshot{
		PacketsSent:          atomic.LoadUint64(&localSent),
		PacketsReceived:      atomic.LoadUint64(&localReceived),
		PacketsDropped:       atomic.LoadUint64(&localDropped),
		PacketsRetransmitted: atomic.LoadUint64(&localRetransmit),
		PacketsAbandoned:     atomic.LoadUint64(&localAbandoned),
		FramesSubmitted:      atomic.LoadUint64(&localSubmitted),
		FramesDropped:        atomic.LoadUint64(&localFramesDrop),
		InferenceErrors:      atomic.LoadUint64(&localInferenceErr),
		Errors:               atomic.LoadUint64(&localErrors),
	}
}

func IncPacketsSent()                  { PacketsSent.Inc(); atomic.AddUint64(&localSent, 1) }
func IncPacketsReceived()              { PacketsReceived.Inc(); atomic.AddUint64(&localReceived, 1) }
func IncPacketsDropped()               { PacketsDropped.Inc(); atomic.AddUint64(&localDropped, 1) }
func IncPacketsRetransmitted()         { PacketsRetransmitted.Inc(); atomic.AddUint64(&localRetransmit, 1) }
func IncPacketsAbandoned()             { PacketsAbandoned.Inc(); atomic.AddUint64(&localAbandoned, 1) }
func SetClientsActive(n int)           { ClientsActive.Set(float64(n)) }
func IncClientsTimedOut()              { ClientsTimedOut.Inc() }
func SetRTTSmoothedMS(ms float64)      { RTTSmoothedMS.Set(ms) }
func SetCongestionWindow(cwnd float64) { CongestionWindow.Set(cwnd) }
func IncAggregationFlush()             { AggregationFlushes.Inc() }

func SetQueueDepth(n int)                  { QueueDepth.Set(float64(n)) }
func IncFramesSubmitted()                  { FramesSubmitted.Inc(); atomic.AddUint64(&localSubmitted, 1) }
func IncFramesDropped()                    { FramesDropped.Inc(); atomic.AddUint64(&localFramesDrop, 1) }
func IncFramesEvicted()                    { FramesEvicted.Inc() }
func ObserveInferenceLatencyMS(ms float64) { InferenceLatency.Observe(ms) }
func IncInferenceErrors()                  { InferenceErrors.Inc(); atomic.AddUint64(&localInferenceErr, 1) }
func ObserveBatchSize(n int)   { BatchSize.Observe(float64(n)) }
func IncModelReloads()         { ModelReloads.Inc() }
func SetSimulationMode(on bool) {
	if on {
		SimulationMode.Set(1)
	} else {
		SimulationMode.Set(0)
	}
}

func SetTrackerActive(n int) { TrackerActive.Set(float64(n)) }
func IncTrackerDestroyed()   { TrackerDestroyed.Inc() }
func IncTrackerConfirmed()   { TrackerConfirmed.Inc() }

func IncFusionMatches()    { FusionMatches.Inc() }
func IncFusionServerOnly() { FusionServerOnly.Inc() }
func IncFusionLocalOnly()  { FusionLocalOnly.Inc() }
func IncFusionStaleDrop()  { FusionStaleDrops.Inc() }

func IncError(label string) { Errors.WithLabelValues(label).Inc(); atomic.AddUint64(&localErrors, 1) }

// InitBuildInfo sets the build info gauge and pre-registers error label
// series so the first error doesn't pay registration latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrSocket, ErrInvalidPkt, ErrProtocol, ErrInference, ErrModelLoad, ErrConfig} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// StartHTTP serves Prometheus metrics at /metrics and readiness at /ready.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// SetReadinessFunc registers a function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function if present.
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
