package netcore

import "sync/atomic"

// Metrics is the counter/gauge sink the engine emits to (§6). Reactor.Poll
// counts each poll call and each dispatched readiness event, the dispatch
// helper counts spurious wakeups, and sockets count high/low watermark
// events; no code in this module increments the bytes-sent, bytes-received
// or detach counters. Modeled directly on Atsika-aznet's Metrics interface
// (Increment*/Get* pairs backed by atomics), substituting socket-engine
// hooks for that library's Azure-transaction hooks.
type Metrics interface {
	IncrementPollCalls()
	IncrementCallbacksInvoked()
	IncrementBytesSent(n int64)
	IncrementBytesReceived(n int64)
	IncrementHighWatermarkEvents()
	IncrementLowWatermarkEvents()
	IncrementDetaches()
	IncrementSpuriousWakeups()

	GetPollCalls() int64
	GetCallbacksInvoked() int64
	GetBytesSent() int64
	GetBytesReceived() int64
	GetHighWatermarkEvents() int64
	GetLowWatermarkEvents() int64
	GetDetaches() int64
	GetSpuriousWakeups() int64
}

// DefaultMetrics implements Metrics with atomic counters, with no external
// collection system wired in. Interface/Socket consumers should provide
// their own Metrics to bridge into Prometheus, OpenTelemetry, or similar.
type DefaultMetrics struct {
	pollCalls          atomic.Int64
	callbacksInvoked   atomic.Int64
	bytesSent          atomic.Int64
	bytesReceived      atomic.Int64
	highWatermarkCount atomic.Int64
	lowWatermarkCount  atomic.Int64
	detaches           atomic.Int64
	spuriousWakeups    atomic.Int64
}

// NewDefaultMetrics creates a zeroed DefaultMetrics.
func NewDefaultMetrics() *DefaultMetrics { return &DefaultMetrics{} }

func (m *DefaultMetrics) IncrementPollCalls()          { m.pollCalls.Add(1) }
func (m *DefaultMetrics) IncrementCallbacksInvoked()   { m.callbacksInvoked.Add(1) }
func (m *DefaultMetrics) IncrementBytesSent(n int64)   { m.bytesSent.Add(n) }
func (m *DefaultMetrics) IncrementBytesReceived(n int64) { m.bytesReceived.Add(n) }
func (m *DefaultMetrics) IncrementHighWatermarkEvents() { m.highWatermarkCount.Add(1) }
func (m *DefaultMetrics) IncrementLowWatermarkEvents()  { m.lowWatermarkCount.Add(1) }
func (m *DefaultMetrics) IncrementDetaches()            { m.detaches.Add(1) }
func (m *DefaultMetrics) IncrementSpuriousWakeups()     { m.spuriousWakeups.Add(1) }

func (m *DefaultMetrics) GetPollCalls() int64          { return m.pollCalls.Load() }
func (m *DefaultMetrics) GetCallbacksInvoked() int64   { return m.callbacksInvoked.Load() }
func (m *DefaultMetrics) GetBytesSent() int64          { return m.bytesSent.Load() }
func (m *DefaultMetrics) GetBytesReceived() int64      { return m.bytesReceived.Load() }
func (m *DefaultMetrics) GetHighWatermarkEvents() int64 { return m.highWatermarkCount.Load() }
func (m *DefaultMetrics) GetLowWatermarkEvents() int64  { return m.lowWatermarkCount.Load() }
func (m *DefaultMetrics) GetDetaches() int64           { return m.detaches.Load() }
func (m *DefaultMetrics) GetSpuriousWakeups() int64    { return m.spuriousWakeups.Load() }
