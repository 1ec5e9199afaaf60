package server

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/Brownie44l1/myownwebserver/internal/response"
)

// Metrics holds server runtime counters
type Metrics struct {
	RequestsTotal     atomic.Int64
	ActiveConnections atomic.Int64
	Errors4xx         atomic.Int64
	Errors5xx         atomic.Int64
	BytesSent         atomic.Int64
	TransfersTotal    atomic.Int64

	TotalLatencyNs atomic.Int64
}

func NewMetrics() *Metrics {
	return &Metrics{}
}

// RecordRequest records one answered HTTP request
func (m *Metrics) RecordRequest(code response.StatusCode, bytes int, duration time.Duration) {
	m.RequestsTotal.Add(1)
	m.BytesSent.Add(int64(bytes))
	m.TotalLatencyNs.Add(duration.Nanoseconds())

	switch {
	case code.IsClientError():
		m.Errors4xx.Add(1)
	case code.IsServerError():
		m.Errors5xx.Add(1)
	}
}

// RecordTransfer records one completed TFTP download
func (m *Metrics) RecordTransfer(bytes int64) {
	m.TransfersTotal.Add(1)
	m.BytesSent.Add(bytes)
}

// AverageLatency returns the mean HTTP request latency
func (m *Metrics) AverageLatency() time.Duration {
	total := m.RequestsTotal.Load()
	if total == 0 {
		return 0
	}
	return time.Duration(m.TotalLatencyNs.Load() / total)
}

type MetricsSnapshot struct {
	RequestsTotal     int64
	ActiveConnections int64
	Errors4xx         int64
	Errors5xx         int64
	BytesSent         int64
	TransfersTotal    int64
	AverageLatency    time.Duration
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		RequestsTotal:     m.RequestsTotal.Load(),
		ActiveConnections: m.ActiveConnections.Load(),
		Errors4xx:         m.Errors4xx.Load(),
		Errors5xx:         m.Errors5xx.Load(),
		BytesSent:         m.BytesSent.Load(),
		TransfersTotal:    m.TransfersTotal.Load(),
		AverageLatency:    m.AverageLatency(),
	}
}

// LogValue renders the snapshot as a group of attributes
func (s MetricsSnapshot) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int64("requests", s.RequestsTotal),
		slog.Int64("errors_4xx", s.Errors4xx),
		slog.Int64("errors_5xx", s.Errors5xx),
		slog.Int64("bytes_sent", s.BytesSent),
		slog.Int64("transfers", s.TransfersTotal),
		slog.Duration("avg_latency", s.AverageLatency),
	)
}
