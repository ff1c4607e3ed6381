// Package metrics exposes Prometheus metrics for programs, stages, water
// use and the level sensor. The Collector owns its own registry so tests and
// the daemon never collide on prometheus.DefaultRegisterer.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atharvap8/intelliverter/internal/cycle"
	"github.com/atharvap8/intelliverter/internal/notify"
	"github.com/atharvap8/intelliverter/internal/program"
)

const namespace = "intelliverter"

// Collector records washer metrics. It implements cycle.Observer,
// program.Listener and notify.Reporter.
type Collector struct {
	reg *prometheus.Registry

	programsStarted  *prometheus.CounterVec
	programsFinished *prometheus.CounterVec
	programRuntime   prometheus.Histogram
	waterUsed        prometheus.Counter
	lastWater        prometheus.Gauge

	stageFaults *prometheus.CounterVec
	events      *prometheus.CounterVec
	phase       *prometheus.GaugeVec
	level       prometheus.Gauge
	iteration   prometheus.Gauge

	mu       sync.Mutex
	curStage cycle.Stage
	curPhase cycle.Phase
}

// NewCollector creates and registers the washer metrics.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		programsStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "programs_started_total",
			Help:      "Programs started, by mode",
		}, []string{"mode"}),
		programsFinished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "programs_finished_total",
			Help:      "Programs finished, by mode and outcome",
		}, []string{"mode", "outcome"}),
		programRuntime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "program_runtime_seconds",
			Help:      "Wall time of finished programs",
			Buckets:   []float64{60, 300, 600, 1200, 1800, 2700, 3600, 5400},
		}),
		waterUsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "water_used_liters_total",
			Help:      "Water filled across all programs",
		}),
		lastWater: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_program_water_liters",
			Help:      "Water used by the most recent program",
		}),
		stageFaults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_faults_total",
			Help:      "Stages that ended in a fault, by stage",
		}, []string{"stage"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Notification events delivered, by kind",
		}, []string{"kind"}),
		phase: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "phase",
			Help:      "1 for the active stage and phase",
		}, []string{"stage", "phase"}),
		level: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "water_level_liters",
			Help:      "Last water level reading",
		}),
		iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agitation_iteration",
			Help:      "Agitation iteration counter shown on the display",
		}),
	}
	c.reg.MustRegister(
		c.programsStarted, c.programsFinished, c.programRuntime,
		c.waterUsed, c.lastWater, c.stageFaults, c.events,
		c.phase, c.level, c.iteration,
	)
	c.phase.WithLabelValues("", cycle.PhaseIdle.String()).Set(1)
	return c
}

// Registry returns the registry backing Handler.
func (c *Collector) Registry() *prometheus.Registry { return c.reg }

// Handler serves the metrics in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// GaugeFunc registers a gauge whose value is read at scrape time, e.g. the
// MQTT connection state.
func (c *Collector) GaugeFunc(name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// CounterFunc registers a counter read at scrape time, e.g. dropped events.
func (c *Collector) CounterFunc(name, help string, fn func() float64) {
	c.reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, fn))
}

// PhaseChanged moves the phase gauge.
func (c *Collector) PhaseChanged(stage cycle.Stage, p cycle.Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.phase.WithLabelValues(string(c.curStage), c.curPhase.String()).Set(0)
	c.curStage, c.curPhase = stage, p
	c.phase.WithLabelValues(string(stage), p.String()).Set(1)
}

// LevelChanged records a level reading.
func (c *Collector) LevelChanged(liters float64) { c.level.Set(liters) }

// IterationChanged records the agitation counter.
func (c *Collector) IterationChanged(n int) { c.iteration.Set(float64(n)) }

// ProgramStarted counts a start.
func (c *Collector) ProgramStarted(r program.Report) {
	c.programsStarted.WithLabelValues(r.Mode.String()).Inc()
}

// ProgramFinished counts the outcome and water.
func (c *Collector) ProgramFinished(r program.Report) {
	c.programsFinished.WithLabelValues(r.Mode.String(), string(r.Outcome)).Inc()
	c.programRuntime.Observe(r.Runtime.Seconds())
	c.waterUsed.Add(r.WaterUsed)
	c.lastWater.Set(r.WaterUsed)
}

// Report counts a notification event.
func (c *Collector) Report(ev notify.Event) error {
	c.events.WithLabelValues(string(ev.Kind)).Inc()
	if ev.Kind == notify.PhaseFault {
		c.stageFaults.WithLabelValues(ev.Stage).Inc()
	}
	return nil
}
