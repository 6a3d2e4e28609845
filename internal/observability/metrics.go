package observability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/KKQanT/cringe-alert-v2/internal/platform/envutil"
	"github.com/KKQanT/cringe-alert-v2/internal/platform/logger"
)

type Metrics struct {
	apiRequests *CounterVec
	apiLatency  *HistogramVec
	apiInflight *Gauge

	llmRequests *CounterVec
	llmLatency  *HistogramVec

	pipelineRuns     *CounterVec
	pipelineDuration *HistogramVec

	coachSessions  *GaugeVec
	coachToolCalls *CounterVec

	conversionJobs     *CounterVec
	conversionDuration *HistogramVec
	conversionQueue    *Gauge

	dbStats   *GaugeVec
	redisUp   *Gauge
	redisPing *Gauge
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Enabled() bool {
	return envutil.Bool("METRICS_ENABLED", false)
}

// Current returns the process metrics, or nil when disabled. All observers accept a nil receiver.
func Current() *Metrics {
	return instance
}

func scrapeInterval() time.Duration {
	return envutil.Seconds("METRICS_SCRAPE_INTERVAL_SECONDS", 15*time.Second)
}

func Init(log *logger.Logger) *Metrics {
	if !Enabled() {
		return nil
	}
	initOnce.Do(func() {
		instance = newMetrics()
		if log != nil {
			log.Info("Metrics enabled")
		}
	})
	return instance
}

func newMetrics() *Metrics {
	return &Metrics{
		apiRequests: NewCounterVec("ca_api_requests_total", "API requests by method/route/status.", []string{"method", "route", "status"}),
		apiLatency: NewHistogramVec(
			"ca_api_request_duration_seconds",
			"API request latency in seconds by method/route/status.",
			[]string{"method", "route", "status"},
			[]float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
		),
		apiInflight: NewGauge("ca_api_inflight_requests", "In-flight API requests."),
		llmRequests: NewCounterVec("ca_llm_requests_total", "Model backend requests by model/endpoint/status.", []string{"model", "endpoint", "status"}),
		llmLatency: NewHistogramVec(
			"ca_llm_request_duration_seconds",
			"Model backend latency in seconds by model/endpoint/status.",
			[]string{"model", "endpoint", "status"},
			[]float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		),
		pipelineRuns: NewCounterVec("ca_pipeline_runs_total", "Pipeline runs by kind/outcome.", []string{"kind", "outcome"}),
		pipelineDuration: NewHistogramVec(
			"ca_pipeline_duration_seconds",
			"Pipeline duration in seconds by kind/outcome.",
			[]string{"kind", "outcome"},
			[]float64{1, 5, 10, 30, 60, 120, 300, 600},
		),
		coachSessions:  NewGaugeVec("ca_coach_sessions_active", "Open coach sessions by mode.", []string{"mode"}),
		coachToolCalls: NewCounterVec("ca_coach_tool_calls_total", "Tool calls issued by the coach.", []string{"mode", "tool"}),
		conversionJobs: NewCounterVec("ca_conversion_jobs_total", "Background conversions by status.", []string{"status"}),
		conversionDuration: NewHistogramVec(
			"ca_conversion_duration_seconds",
			"Background conversion duration in seconds by status.",
			[]string{"status"},
			[]float64{1, 5, 10, 30, 60, 120, 300},
		),
		conversionQueue: NewGauge("ca_conversion_queue_depth", "Conversions waiting for a worker."),
		dbStats:         NewGaugeVec("ca_db_pool", "Database pool stats.", []string{"stat"}),
		redisUp:         NewGauge("ca_redis_up", "Redis ping success (1) or failure (0)."),
		redisPing:       NewGauge("ca_redis_ping_seconds", "Redis ping latency in seconds."),
	}
}

func (m *Metrics) StartServer(ctx context.Context, log *logger.Logger, addr string) {
	if m == nil {
		return
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           http.HandlerFunc(m.WriteHTTP),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			if log != nil {
				log.Error("metrics server failed", "error", err, "addr", addr)
			}
		}
	}()
}

func (m *Metrics) WriteHTTP(w http.ResponseWriter, r *http.Request) {
	if m == nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_ = m.WritePrometheus(w)
}

type promWriter interface {
	WritePrometheus(w io.Writer) error
}

func (m *Metrics) WritePrometheus(w io.Writer) error {
	if m == nil {
		return nil
	}
	for _, c := range []promWriter{
		m.apiRequests, m.apiLatency, m.apiInflight,
		m.llmRequests, m.llmLatency,
		m.pipelineRuns, m.pipelineDuration,
		m.coachSessions, m.coachToolCalls,
		m.conversionJobs, m.conversionDuration, m.conversionQueue,
		m.dbStats, m.redisUp, m.redisPing,
	} {
		if err := c.WritePrometheus(w); err != nil {
			return err
		}
	}
	return nil
}

func orUnknown(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "unknown"
	}
	return v
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	method, route = orUnknown(method), orUnknown(route)
	if status == "" {
		status = "0"
	}
	m.apiRequests.Inc(method, route, status)
	m.apiLatency.Observe(dur.Seconds(), method, route, status)
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveLLMRequest(model, endpoint, status string, dur time.Duration) {
	if m == nil {
		return
	}
	model, endpoint = orUnknown(model), orUnknown(endpoint)
	if status == "" {
		status = "0"
	}
	m.llmRequests.Inc(model, endpoint, status)
	if dur > 0 {
		m.llmLatency.Observe(dur.Seconds(), model, endpoint, status)
	}
}

// ObservePipeline records a finished pipeline run; outcome is "complete" or "error".
func (m *Metrics) ObservePipeline(kind, outcome string, dur time.Duration) {
	if m == nil {
		return
	}
	kind, outcome = orUnknown(kind), orUnknown(outcome)
	m.pipelineRuns.Inc(kind, outcome)
	m.pipelineDuration.Observe(dur.Seconds(), kind, outcome)
}

func (m *Metrics) CoachSessionOpened(mode string) {
	if m == nil {
		return
	}
	m.coachSessions.Add(1, orUnknown(mode))
}

func (m *Metrics) CoachSessionClosed(mode string) {
	if m == nil {
		return
	}
	m.coachSessions.Add(-1, orUnknown(mode))
}

func (m *Metrics) IncCoachToolCall(mode, tool string) {
	if m == nil {
		return
	}
	m.coachToolCalls.Inc(orUnknown(mode), orUnknown(tool))
}

func (m *Metrics) ObserveConversion(status string, dur time.Duration) {
	if m == nil {
		return
	}
	status = orUnknown(status)
	m.conversionJobs.Inc(status)
	m.conversionDuration.Observe(dur.Seconds(), status)
}

func (m *Metrics) SetConversionQueueDepth(n int) {
	if m == nil {
		return
	}
	m.conversionQueue.Set(float64(n))
}

func (m *Metrics) StartDBCollector(ctx context.Context, log *logger.Logger, db *gorm.DB) {
	if m == nil || db == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				sqlDB, err := db.DB()
				if err != nil {
					if log != nil {
						log.Warn("metrics: db stats unavailable", "error", err)
					}
					continue
				}
				stats := sqlDB.Stats()
				m.dbStats.Set(float64(stats.OpenConnections), "open_connections")
				m.dbStats.Set(float64(stats.InUse), "in_use")
				m.dbStats.Set(float64(stats.Idle), "idle")
				m.dbStats.Set(float64(stats.WaitCount), "wait_count")
				m.dbStats.Set(stats.WaitDuration.Seconds(), "wait_duration_seconds")
			}
		}
	}()
}

func (m *Metrics) StartRedisCollector(ctx context.Context, log *logger.Logger, rdb redis.UniversalClient) {
	if m == nil || rdb == nil {
		return
	}
	interval := scrapeInterval()
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				start := time.Now()
				if err := rdb.Ping(ctx).Err(); err != nil {
					m.redisUp.Set(0)
					if log != nil {
						log.Warn("metrics: redis ping failed", "error", err)
					}
					continue
				}
				m.redisUp.Set(1)
				m.redisPing.Set(time.Since(start).Seconds())
			}
		}
	}()
}

// StatusLabel formats an HTTP status code, using "0" for transport failures.
func StatusLabel(code int) string {
	if code <= 0 {
		return "0"
	}
	return fmt.Sprintf("%d", code)
}
