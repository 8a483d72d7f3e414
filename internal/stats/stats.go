package stats

import (
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "chatrelay"

type StatsProvider interface {
	Incr(name string)
	Decr(name string)
	RegisterMetric(name string)
	Run()
}

type StatsUpdater struct {
	registry   *prometheus.Registry
	gauges     map[string]prometheus.Gauge
	gaugesLock sync.RWMutex
	updateChan chan *metricsUpdateReq
	done       chan struct{}

	// updates after Stop are discarded
	stopLock sync.RWMutex
	stopped  bool
}

type metricsUpdateReq struct {
	name  string
	value float64
}

// NewStatsUpdater creates a new stats updater and mounts its exposition
// handler on mux.
func NewStatsUpdater(mux *http.ServeMux) *StatsUpdater {
	su := &StatsUpdater{
		registry:   prometheus.NewRegistry(),
		gauges:     make(map[string]prometheus.Gauge),
		updateChan: make(chan *metricsUpdateReq, 512),
		done:       make(chan struct{}),
	}
	su.initializeMetrics()
	mux.Handle("GET /metrics", promhttp.HandlerFor(su.registry, promhttp.HandlerOpts{}))

	return su
}

func (su *StatsUpdater) initializeMetrics() {
	startTime := time.Now()
	su.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "uptime_milliseconds",
			Help:      "Milliseconds since the relay started.",
		}, func() float64 {
			return float64(time.Since(startTime).Milliseconds())
		}),
	)
}

func (su *StatsUpdater) updateMetrics() {
	defer close(su.done)
	for req := range su.updateChan {
		su.gaugesLock.RLock()
		g, ok := su.gauges[req.name]
		su.gaugesLock.RUnlock()
		if !ok {
			panic("metric not found: " + req.name)
		}

		g.Add(req.value)
	}
}

func (su *StatsUpdater) Incr(name string) {
	su.update(name, 1)
}

func (su *StatsUpdater) Decr(name string) {
	su.update(name, -1)
}

func (su *StatsUpdater) update(name string, value float64) {
	su.stopLock.RLock()
	defer su.stopLock.RUnlock()

	if su.stopped {
		return
	}
	su.updateChan <- &metricsUpdateReq{name: name, value: value}
}

// RegisterMetric registers a gauge under name. Registering the same name
// twice is a no-op.
func (su *StatsUpdater) RegisterMetric(name string) {
	su.gaugesLock.Lock()
	defer su.gaugesLock.Unlock()

	if _, ok := su.gauges[name]; ok {
		return
	}

	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      metricName(name),
		Help:      name,
	})
	su.registry.MustRegister(g)
	su.gauges[name] = g
}

func (su *StatsUpdater) Run() {
	go su.updateMetrics()
}

// Stop drains pending updates and waits for the update loop to exit.
func (su *StatsUpdater) Stop() {
	su.stopLock.Lock()
	if su.stopped {
		su.stopLock.Unlock()
		return
	}
	su.stopped = true
	close(su.updateChan)
	su.stopLock.Unlock()

	<-su.done
}

var camelBoundary = regexp.MustCompile("([a-z0-9])([A-Z])")

// metricName turns NumActiveClients into num_active_clients.
func metricName(name string) string {
	return strings.ToLower(camelBoundary.ReplaceAllString(name, "${1}_${2}"))
}
