package performance

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// CallMetrics tracks calls made to one external collaborator
type CallMetrics struct {
	Calls        int64         `json:"calls"`
	Failures     int64         `json:"failures"`
	TotalLatency time.Duration `json:"total_latency_ns"`
	AvgLatency   time.Duration `json:"avg_latency_ns"`
	MinLatency   time.Duration `json:"min_latency_ns"`
	MaxLatency   time.Duration `json:"max_latency_ns"`
	LastError    string        `json:"last_error,omitempty"`
	LastCall     time.Time     `json:"last_call"`
}

// CallTimer tracks timing for an individual collaborator call
type CallTimer struct {
	Collaborator string
	StartTime    time.Time
}

// CallMonitor aggregates latency and failure counts per collaborator across all runs
type CallMonitor struct {
	logger    *zap.Logger
	metrics   map[string]*CallMetrics
	mu        sync.RWMutex
	benchmark bool
}

// NewCallMonitor creates a new call monitor
func NewCallMonitor(logger *zap.Logger) *CallMonitor {
	return &CallMonitor{
		logger:  logger.With(zap.String("component", "performance")),
		metrics: make(map[string]*CallMetrics),
	}
}

// Start begins timing a call to the named collaborator
func (cm *CallMonitor) Start(collaborator string) *CallTimer {
	return &CallTimer{
		Collaborator: collaborator,
		StartTime:    time.Now(),
	}
}

// End completes timing and records the outcome. A nil monitor is a no-op.
func (cm *CallMonitor) End(timer *CallTimer, err error) {
	if cm == nil || timer == nil {
		return
	}
	elapsed := time.Since(timer.StartTime)

	cm.mu.Lock()
	defer cm.mu.Unlock()

	m, ok := cm.metrics[timer.Collaborator]
	if !ok {
		m = &CallMetrics{MinLatency: elapsed}
		cm.metrics[timer.Collaborator] = m
	}

	m.Calls++
	m.TotalLatency += elapsed
	m.LastCall = time.Now()
	if err != nil {
		m.Failures++
		m.LastError = err.Error()
	}
	if elapsed < m.MinLatency {
		m.MinLatency = elapsed
	}
	if elapsed > m.MaxLatency {
		m.MaxLatency = elapsed
	}
	m.AvgLatency = time.Duration(int64(m.TotalLatency) / m.Calls)

	if cm.benchmark {
		cm.logger.Info("collaborator call",
			zap.String("collaborator", timer.Collaborator),
			zap.Duration("latency", elapsed),
			zap.Bool("failed", err != nil))
	}
}

// Track times fn as one call to the named collaborator
func (cm *CallMonitor) Track(collaborator string, fn func() error) error {
	if cm == nil {
		return fn()
	}
	timer := cm.Start(collaborator)
	err := fn()
	cm.End(timer, err)
	return err
}

// GetMetrics returns a copy of current metrics keyed by collaborator
func (cm *CallMonitor) GetMetrics() map[string]CallMetrics {
	result := make(map[string]CallMetrics)
	if cm == nil {
		return result
	}

	cm.mu.RLock()
	defer cm.mu.RUnlock()

	for name, m := range cm.metrics {
		result[name] = *m
	}
	return result
}

// GetPerformanceSummary returns a formatted summary of collaborator metrics
func (cm *CallMonitor) GetPerformanceSummary() string {
	metrics := cm.GetMetrics()
	if len(metrics) == 0 {
		return "No collaborator metrics available"
	}

	names := make([]string, 0, len(metrics))
	for name := range metrics {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("Collaborator Summary:\n")
	for _, name := range names {
		m := metrics[name]
		fmt.Fprintf(&b, "  %s: %d calls, %d failed, avg %v (min %v / max %v)\n",
			name, m.Calls, m.Failures, m.AvgLatency, m.MinLatency, m.MaxLatency)
	}
	return b.String()
}

// ResetMetrics clears all accumulated metrics
func (cm *CallMonitor) ResetMetrics() {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.metrics = make(map[string]*CallMetrics)
	cm.logger.Info("performance metrics reset")
}

// BenchmarkMode enables or disables per-call logging
func (cm *CallMonitor) BenchmarkMode(enabled bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	cm.benchmark = enabled
	cm.logger.Info("benchmark mode", zap.Bool("enabled", enabled))
}

// LogCurrentMetrics logs one line per collaborator
func (cm *CallMonitor) LogCurrentMetrics() {
	for name, m := range cm.GetMetrics() {
		cm.logger.Info("current collaborator metrics",
			zap.String("collaborator", name),
			zap.Int64("calls", m.Calls),
			zap.Int64("failures", m.Failures),
			zap.Duration("avg_latency", m.AvgLatency),
			zap.Duration("max_latency", m.MaxLatency),
		)
	}
}
