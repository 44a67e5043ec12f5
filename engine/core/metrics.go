package core

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const AVG_COUNT uint8 = 30

const metricsNamespace = "luminax"

// Metrics tracks frame pacing and synchronization counters. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	framesSubmitted prometheus.Counter
	slotWaits       prometheus.Counter
	flushes         prometheus.Counter
	resizes         prometheus.Counter
	fenceSignaled   prometheus.Gauge
	fenceCompleted  prometheus.Gauge
	frameSeconds    prometheus.Histogram

	frameAVGCounter    uint8
	msTimes            [AVG_COUNT]float64
	msAVG              float64
	frames             int32
	accumulatedFrameMS float64
	fps                float64
}

// NewMetrics creates the collectors on a private registry. The session label
// tells apart runs scraped by the same collector.
func NewMetrics(session string) *Metrics {
	labels := prometheus.Labels{"session": session}
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		framesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "frames_submitted_total",
			Help:        "Number of frames submitted to the command queue.",
			ConstLabels: labels,
		}),
		slotWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "frame_slot_waits_total",
			Help:        "Number of times the CPU blocked on a frame resource still in use by the GPU.",
			ConstLabels: labels,
		}),
		flushes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "queue_flushes_total",
			Help:        "Number of full command queue flushes.",
			ConstLabels: labels,
		}),
		resizes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   metricsNamespace,
			Name:        "swapchain_resizes_total",
			Help:        "Number of swap chain resizes.",
			ConstLabels: labels,
		}),
		fenceSignaled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "fence_signaled_value",
			Help:        "Last fence value enqueued for signaling.",
			ConstLabels: labels,
		}),
		fenceCompleted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metricsNamespace,
			Name:        "fence_completed_value",
			Help:        "Last fence value observed as completed by the GPU.",
			ConstLabels: labels,
		}),
		frameSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   metricsNamespace,
			Name:        "frame_seconds",
			Help:        "CPU time between two consecutive frames.",
			Buckets:     []float64{.001, .004, .008, .0167, .033, .05, .1, .25},
			ConstLabels: labels,
		}),
	}
	m.registry.MustRegister(
		m.framesSubmitted,
		m.slotWaits,
		m.flushes,
		m.resizes,
		m.fenceSignaled,
		m.fenceCompleted,
		m.frameSeconds,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FrameSubmitted(fenceValue uint64) {
	if m == nil {
		return
	}
	m.framesSubmitted.Inc()
	m.fenceSignaled.Set(float64(fenceValue))
}

func (m *Metrics) Signaled(fenceValue uint64) {
	if m == nil {
		return
	}
	m.fenceSignaled.Set(float64(fenceValue))
}

func (m *Metrics) Completed(fenceValue uint64) {
	if m == nil {
		return
	}
	m.fenceCompleted.Set(float64(fenceValue))
}

func (m *Metrics) SlotWait() {
	if m == nil {
		return
	}
	m.slotWaits.Inc()
}

func (m *Metrics) Flush() {
	if m == nil {
		return
	}
	m.flushes.Inc()
}

func (m *Metrics) Resize() {
	if m == nil {
		return
	}
	m.resizes.Inc()
}

// Update feeds the time spent on the last frame, in seconds.
func (m *Metrics) Update(frameElapsedTime float64) {
	if m == nil {
		return
	}
	m.frameSeconds.Observe(frameElapsedTime)

	// Calculate frame ms average
	frameMS := frameElapsedTime * 1000.0
	m.msTimes[m.frameAVGCounter] = frameMS
	if m.frameAVGCounter == AVG_COUNT-1 {
		m.msAVG = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			m.msAVG += m.msTimes[i]
		}
		m.msAVG /= float64(AVG_COUNT)
	}
	m.frameAVGCounter++
	m.frameAVGCounter %= AVG_COUNT

	// Calculate frames per second.
	m.accumulatedFrameMS += frameMS
	if m.accumulatedFrameMS > 1000 {
		m.fps = float64(m.frames)
		m.accumulatedFrameMS -= 1000
		m.frames = 0
	}

	// Count all frames.
	m.frames++
}

func (m *Metrics) FPS() float64 {
	if m == nil {
		return 0
	}
	return m.fps
}

func (m *Metrics) FrameTime() float64 {
	if m == nil {
		return 0
	}
	return m.msAVG
}

// Serve exposes the registry on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
