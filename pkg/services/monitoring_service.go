package services

import (
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestIDHeader carries the per-request id set by the monitoring middleware.
const RequestIDHeader = "X-Request-ID"

// maxLogEntries bounds the in-memory request log.
const maxLogEntries = 10000

// LogEntry は単一のリクエストログを表します。
type LogEntry struct {
	RequestID    string        `json:"requestId"`
	Timestamp    time.Time     `json:"timestamp"`
	Path         string        `json:"path"`
	Method       string        `json:"method"`
	StatusCode   int           `json:"statusCode"`
	ResponseTime time.Duration `json:"responseTime"`
}

// MonitoringService records served requests for the dashboard and Prometheus.
type MonitoringService struct {
	mu       sync.RWMutex
	logs     []LogEntry
	logger   *slog.Logger
	now      func() time.Time
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewMonitoringService registers the request metrics on reg.
// A nil reg keeps the metrics unregistered (tests).
func NewMonitoringService(reg prometheus.Registerer, logger *slog.Logger) *MonitoringService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MonitoringService{
		logs:   make([]LogEntry, 0),
		logger: logger,
		now:    time.Now,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sales_insight",
			Name:      "http_requests_total",
			Help:      "Number of HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "sales_insight",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	if reg != nil {
		reg.MustRegister(s.requests, s.latency)
	}
	return s
}

// LogRequest はリクエストを記録します。
func (s *MonitoringService) LogRequest(entry LogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, entry)
	if over := len(s.logs) - maxLogEntries; over > 0 {
		s.logs = append(s.logs[:0], s.logs[over:]...)
	}
}

// LoggingMiddleware assigns a request id, logs the request and records metrics.
func (s *MonitoringService) LoggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := s.now()
		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Set("request_id", requestID)
		c.Header(RequestIDHeader, requestID)

		c.Next()

		elapsed := s.now().Sub(start)
		status := c.Writer.Status()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.requests.WithLabelValues(route, c.Request.Method, strconv.Itoa(status)).Inc()
		s.latency.WithLabelValues(route, c.Request.Method).Observe(elapsed.Seconds())

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		} else if status >= 400 {
			level = slog.LevelWarn
		}
		s.logger.Log(c.Request.Context(), level, "🌐 request served",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"elapsed", elapsed)

		// 管理系・監視系のリクエストはダッシュボードに含めない
		path := c.Request.URL.Path
		if strings.HasPrefix(path, "/admin") || strings.HasPrefix(path, "/monitoring") || path == "/metrics" {
			return
		}
		s.LogRequest(LogEntry{
			RequestID:    requestID,
			Timestamp:    start,
			Path:         path,
			Method:       c.Request.Method,
			StatusCode:   status,
			ResponseTime: elapsed,
		})
	}
}

// HourlyCount is the number of requests in one hour bucket.
type HourlyCount struct {
	Time     string `json:"time"`
	Requests int    `json:"requests"`
}

// StatusCount is the number of responses in one status class.
type StatusCount struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

// EndpointLatency is the mean response time of one path in milliseconds.
type EndpointLatency struct {
	Endpoint     string `json:"endpoint"`
	ResponseTime int64  `json:"responseTime"`
}

// DashboardData はダッシュボードに表示するための集計済みデータです。
type DashboardData struct {
	RequestsOverTime []HourlyCount     `json:"requestsOverTime"`
	Endpoints        map[string]int    `json:"endpoints"`
	StatusCodes      []StatusCount     `json:"statusCodes"`
	AvgResponseTimes []EndpointLatency `json:"avgResponseTimes"`
	RecentErrors     []LogEntry        `json:"recentErrors"`
}

// GetDashboardData は指定された期間のログを集計してダッシュボード用データを返します。
func (s *MonitoringService) GetDashboardData(periodHours int) DashboardData {
	if periodHours <= 0 {
		periodHours = 24
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now().UTC()
	since := now.Add(-time.Duration(periodHours) * time.Hour)
	filtered := make([]LogEntry, 0)
	for _, entry := range s.logs {
		if entry.Timestamp.After(since) {
			filtered = append(filtered, entry)
		}
	}

	// 時間ごとのバケット（古い順）
	overTime := make([]HourlyCount, periodHours)
	bucketIndex := make(map[time.Time]int, periodHours)
	for i := 0; i < periodHours; i++ {
		hour := now.Add(-time.Duration(periodHours-1-i) * time.Hour).Truncate(time.Hour)
		bucketIndex[hour] = i
		overTime[i] = HourlyCount{Time: hour.Format("15:00")}
	}

	endpoints := make(map[string]int)
	classes := map[string]int{"2xx Success": 0, "4xx Client Error": 0, "5xx Server Error": 0}
	latencySum := make(map[string]time.Duration)
	for _, entry := range filtered {
		if i, ok := bucketIndex[entry.Timestamp.UTC().Truncate(time.Hour)]; ok {
			overTime[i].Requests++
		}
		endpoints[entry.Path]++
		switch {
		case entry.StatusCode >= 500:
			classes["5xx Server Error"]++
		case entry.StatusCode >= 400:
			classes["4xx Client Error"]++
		case entry.StatusCode >= 200 && entry.StatusCode < 300:
			classes["2xx Success"]++
		}
		latencySum[entry.Path] += entry.ResponseTime
	}

	statusCodes := []StatusCount{
		{Name: "2xx Success", Value: classes["2xx Success"]},
		{Name: "4xx Client Error", Value: classes["4xx Client Error"]},
		{Name: "5xx Server Error", Value: classes["5xx Server Error"]},
	}

	latencies := make([]EndpointLatency, 0, len(latencySum))
	for path, total := range latencySum {
		latencies = append(latencies, EndpointLatency{
			Endpoint:     path,
			ResponseTime: total.Milliseconds() / int64(endpoints[path]),
		})
	}
	sort.Slice(latencies, func(i, j int) bool { return latencies[i].Endpoint < latencies[j].Endpoint })

	// 直近の5xxを新しい順に最大10件
	recentErrors := make([]LogEntry, 0)
	for i := len(filtered) - 1; i >= 0 && len(recentErrors) < 10; i-- {
		if filtered[i].StatusCode >= 500 {
			recentErrors = append(recentErrors, filtered[i])
		}
	}

	return DashboardData{
		RequestsOverTime: overTime,
		Endpoints:        endpoints,
		StatusCodes:      statusCodes,
		AvgResponseTimes: latencies,
		RecentErrors:     recentErrors,
	}
}
