package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sirupsen/logrus"
)

// Metrics holds the Prometheus collectors of the service.
type Metrics struct {
	PipelineCallsTotal   *prometheus.CounterVec
	MaintenanceRunsTotal *prometheus.CounterVec
	CacheEntriesSwept    prometheus.Counter
	ChatTurnsTotal       *prometheus.CounterVec
	ControlMessagesTotal *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		PipelineCallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_pipeline_calls_total",
				Help: "Speaker pipeline calls by stage and outcome",
			},
			[]string{"stage", "outcome"},
		),
		MaintenanceRunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_maintenance_runs_total",
				Help: "Maintenance job runs by job and status",
			},
			[]string{"job", "status"},
		),
		CacheEntriesSwept: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backstage_cache_entries_swept_total",
				Help: "Expired video cache entries removed by sweeps",
			},
		),
		ChatTurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_chat_turns_total",
				Help: "Chat turns by model and status",
			},
			[]string{"model", "status"},
		),
		ControlMessagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backstage_control_messages_total",
				Help: "Control messages by action and success",
			},
			[]string{"action", "success"},
		),
	}
}

// Monitor tracks the outcome of the last maintenance run for health checks
// and feeds the metrics.
type Monitor struct {
	metrics *Metrics
	log     logrus.FieldLogger

	mu             sync.RWMutex
	lastRunSuccess bool
	lastRunTime    time.Time
	lastRunJob     string
	now            func() time.Time
}

func NewMonitor(metrics *Metrics, log logrus.FieldLogger) *Monitor {
	return &Monitor{
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

func (m *Monitor) Metrics() *Metrics {
	return m.metrics
}

func (m *Monitor) RecordSuccess(job, summary string, duration time.Duration) {
	m.mu.Lock()
	m.lastRunSuccess = true
	m.lastRunTime = m.now()
	m.lastRunJob = job
	m.mu.Unlock()

	m.metrics.MaintenanceRunsTotal.WithLabelValues(job, "success").Inc()
	m.log.WithFields(logrus.Fields{"job": job, "duration": duration.String()}).Infof("Run completed successfully - %s", summary)
}

func (m *Monitor) RecordFailure(job string, err error, duration time.Duration) {
	m.mu.Lock()
	m.lastRunSuccess = false
	m.lastRunTime = m.now()
	m.lastRunJob = job
	m.mu.Unlock()

	m.metrics.MaintenanceRunsTotal.WithLabelValues(job, "failure").Inc()
	m.log.WithError(err).WithFields(logrus.Fields{"job": job, "duration": duration.String()}).Error("Run failed")
}

// RecordSwept counts cache entries removed by a sweep.
func (m *Monitor) RecordSwept(n int) {
	m.metrics.CacheEntriesSwept.Add(float64(n))
}

func (m *Monitor) ObservePipeline(stage, outcome string) {
	m.metrics.PipelineCallsTotal.WithLabelValues(stage, outcome).Inc()
}

func (m *Monitor) ObserveChatTurn(model string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.ChatTurnsTotal.WithLabelValues(model, status).Inc()
}

func (m *Monitor) ObserveControlMessage(action string, success bool) {
	m.metrics.ControlMessagesTotal.WithLabelValues(action, fmt.Sprintf("%t", success)).Inc()
}

// IsHealthy is true until a maintenance run fails, and again after the next
// one succeeds.
func (m *Monitor) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRunTime.IsZero() {
		return true
	}
	return m.lastRunSuccess
}

func (m *Monitor) GetStatusSummary() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.lastRunTime.IsZero() {
		return "No runs yet"
	}
	if m.lastRunSuccess {
		return fmt.Sprintf("Last %s run: %s", m.lastRunJob, m.lastRunTime.Format("Jan 2 15:04"))
	}
	return fmt.Sprintf("Last %s run failed: %s", m.lastRunJob, m.lastRunTime.Format("Jan 2 15:04"))
}
