// Package metrics provides in-memory runtime statistics collection.
package metrics

import (
	"math"
	"sync"
	"time"
)

// Operation names for the collector.
const (
	OpChatStream    = "chat_stream"
	OpCompletion    = "completion"
	OpImageGenerate = "image_generate"
	OpCodeExecute   = "code_execute"
	OpTurn          = "turn"
	OpArchiveSave   = "archive_save"
)

// OperationMetrics holds aggregated metrics for a single operation type.
type OperationMetrics struct {
	Count     int64
	Failures  int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Output size in characters (generative operations only)
	TotalChars int64
	MaxChars   int64
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	Failures    int64   `json:"failures"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Character stats (nil if not applicable)
	AvgChars *float64 `json:"avg_chars,omitempty"`
	MaxChars *int64   `json:"max_chars,omitempty"`
}

// Snapshot represents the full runtime statistics at a point in time.
type Snapshot struct {
	UptimeSeconds  float64            `json:"uptime_seconds"`
	ActiveSessions int64              `json:"active_sessions"`
	ChatStream     *OperationSnapshot `json:"chat_stream,omitempty"`
	Completion     *OperationSnapshot `json:"completion,omitempty"`
	ImageGenerate  *OperationSnapshot `json:"image_generate,omitempty"`
	CodeExecute    *OperationSnapshot `json:"code_execute,omitempty"`
	Turn           *OperationSnapshot `json:"turn,omitempty"`
	ArchiveSave    *OperationSnapshot `json:"archive_save,omitempty"`
}

// Collector aggregates in-memory runtime statistics.
// All methods are thread-safe and safe to call on a nil Collector.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	sessions  int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for an operation.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{MinTime: time.Duration(math.MaxInt64)}
		c.ops[op] = m
	}
	return m
}

func (m *OperationMetrics) observe(duration time.Duration, err error) {
	m.Count++
	if err != nil {
		m.Failures++
	}
	m.TotalTime += duration
	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// RecordTiming records timing for an operation. A non-nil err counts as a failure.
func (c *Collector) RecordTiming(op string, duration time.Duration, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.getOrCreate(op).observe(duration, err)
}

// RecordOutput records timing and output size for a generative operation.
func (c *Collector) RecordOutput(op string, duration time.Duration, chars int, err error) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.observe(duration, err)
	m.TotalChars += int64(chars)
	if int64(chars) > m.MaxChars {
		m.MaxChars = int64(chars)
	}
}

// SessionStarted increments the active session gauge.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sessions++
	c.mu.Unlock()
}

// SessionEnded decrements the active session gauge.
func (c *Collector) SessionEnded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.sessions > 0 {
		c.sessions--
	}
	c.mu.Unlock()
}

// snapshotOp creates a snapshot for an operation, returning nil if no data.
func snapshotOp(m *OperationMetrics, includeChars bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	snap := &OperationSnapshot{
		Count:       m.Count,
		Failures:    m.Failures,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}

	if includeChars && m.TotalChars > 0 {
		avg := float64(m.TotalChars) / float64(m.Count)
		maxChars := m.MaxChars
		snap.AvgChars = &avg
		snap.MaxChars = &maxChars
	}

	return snap
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		ActiveSessions: c.sessions,
		ChatStream:     snapshotOp(c.ops[OpChatStream], true),
		Completion:     snapshotOp(c.ops[OpCompletion], true),
		ImageGenerate:  snapshotOp(c.ops[OpImageGenerate], false),
		CodeExecute:    snapshotOp(c.ops[OpCodeExecute], false),
		Turn:           snapshotOp(c.ops[OpTurn], false),
		ArchiveSave:    snapshotOp(c.ops[OpArchiveSave], false),
	}
}
