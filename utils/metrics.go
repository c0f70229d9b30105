package utils

import (
	"sync"
	"time"
)

// Metrics содержит метрики приложения
type Metrics struct {
	mu sync.RWMutex

	// Метрики запросов
	TotalRequests   int64
	FailedRequests  int64
	RequestLatency  time.Duration
	AverageLatency  time.Duration
	LastRequestTime time.Time

	// Метрики операций журнала
	LedgerOperations   map[string]int64
	FailedOperations   map[string]int64
	LastLedgerActivity time.Time

	// Метрики сверки
	ReconcileRuns       int64
	ReconcileMismatches int64
	LastReconcileTime   time.Time

	// Метрики ошибок
	ErrorCount    int64
	LastErrorTime time.Time
	ErrorTypes    map[string]int64
}

var (
	metrics     *Metrics
	metricsOnce sync.Once
)

// GetMetrics возвращает экземпляр метрик
func GetMetrics() *Metrics {
	metricsOnce.Do(func() {
		metrics = newMetrics()
	})
	return metrics
}

func newMetrics() *Metrics {
	return &Metrics{
		LedgerOperations: make(map[string]int64),
		FailedOperations: make(map[string]int64),
		ErrorTypes:       make(map[string]int64),
	}
}

// RecordRequest записывает метрики HTTP-запроса
func (m *Metrics) RecordRequest(duration time.Duration, failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.TotalRequests++
	m.RequestLatency += duration
	m.AverageLatency = m.RequestLatency / time.Duration(m.TotalRequests)
	m.LastRequestTime = time.Now()

	if failed {
		m.FailedRequests++
	}
}

// RecordLedgerOperation записывает метрики операции журнала
func (m *Metrics) RecordLedgerOperation(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LedgerOperations[operation]++
	m.LastLedgerActivity = time.Now()

	if err != nil {
		m.FailedOperations[operation]++
		m.recordErrorLocked(err)
	}
}

// RecordReconcile записывает результат сверки
func (m *Metrics) RecordReconcile(mismatches int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ReconcileRuns++
	m.ReconcileMismatches += int64(mismatches)
	m.LastReconcileTime = time.Now()
}

// RecordError записывает метрики ошибки
func (m *Metrics) RecordError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.recordErrorLocked(err)
}

// recordErrorLocked вызывается под m.mu
func (m *Metrics) recordErrorLocked(err error) {
	m.ErrorCount++
	m.LastErrorTime = time.Now()

	errorType := "unknown"
	if err != nil {
		errorType = err.Error()
	}

	m.ErrorTypes[errorType]++
}

// GetMetricsSnapshot возвращает снимок текущих метрик
func (m *Metrics) GetMetricsSnapshot() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"total_requests":       m.TotalRequests,
		"failed_requests":      m.FailedRequests,
		"average_latency":      m.AverageLatency.String(),
		"ledger_operations":    copyCounters(m.LedgerOperations),
		"failed_operations":    copyCounters(m.FailedOperations),
		"reconcile_runs":       m.ReconcileRuns,
		"reconcile_mismatches": m.ReconcileMismatches,
		"error_count":          m.ErrorCount,
		"last_error_time":      m.LastErrorTime,
		"error_types":          copyCounters(m.ErrorTypes),
	}
}

// ResetMetrics сбрасывает все метрики
func (m *Metrics) ResetMetrics() {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := newMetrics()
	m.TotalRequests = 0
	m.FailedRequests = 0
	m.RequestLatency = 0
	m.AverageLatency = 0
	m.LedgerOperations = fresh.LedgerOperations
	m.FailedOperations = fresh.FailedOperations
	m.ReconcileRuns = 0
	m.ReconcileMismatches = 0
	m.ErrorCount = 0
	m.ErrorTypes = fresh.ErrorTypes
}

func copyCounters(src map[string]int64) map[string]int64 {
	dst := make(map[string]int64, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}
