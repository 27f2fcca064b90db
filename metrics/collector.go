// Package metrics provides per-run metrics collection.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies: event kinds and message types are recorded
// as plain strings.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Run lifecycle
	RunsStarted   int64
	RunsCompleted int64
	RunsFailed    int64

	// Ingestion
	EventsReceived    int64
	EventsByKind      map[string]int64
	FrameDecodeErrors int64

	// Emission
	MessagesEmitted     int64
	MessagesByType      map[string]int64
	Passthrough         int64
	CorrelationFailures int64
	ResolverFailures    int64
	CorrelationEntries  int64

	// Sinks (per call, not per message)
	SinkWriteSuccess int64
	SinkWriteFailure int64

	// Dimensions (informational, set at construction)
	Output         string
	StorageBackend string
	RunID          string
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	runsStarted   int64
	runsCompleted int64
	runsFailed    int64

	eventsReceived    int64
	eventsByKind      map[string]int64
	frameDecodeErrors int64

	messagesEmitted     int64
	messagesByType      map[string]int64
	passthrough         int64
	correlationFailures int64
	resolverFailures    int64
	correlationEntries  int64

	sinkWriteSuccess int64
	sinkWriteFailure int64

	output         string
	storageBackend string
	runID          string
}

// NewCollector creates a Collector with dimension labels.
// storageBackend is empty when no storage sink is configured.
func NewCollector(output, storageBackend, runID string) *Collector {
	return &Collector{
		eventsByKind:   make(map[string]int64),
		messagesByType: make(map[string]int64),
		output:         output,
		storageBackend: storageBackend,
		runID:          runID,
	}
}

// --- Run lifecycle ---

// IncRunStarted records a run start.
func (c *Collector) IncRunStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsStarted++
	c.mu.Unlock()
}

// IncRunCompleted records a successful run completion.
func (c *Collector) IncRunCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsCompleted++
	c.mu.Unlock()
}

// IncRunFailed records a run that ended with a stream or emit error.
func (c *Collector) IncRunFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runsFailed++
	c.mu.Unlock()
}

// --- Ingestion ---

// IncEventReceived records a decoded event of the given kind.
func (c *Collector) IncEventReceived(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.eventsReceived++
	c.eventsByKind[kind]++
	c.mu.Unlock()
}

// IncFrameDecodeErrors records a frame that could not be decoded.
func (c *Collector) IncFrameDecodeErrors() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.frameDecodeErrors++
	c.mu.Unlock()
}

// --- Emission ---

// IncMessageEmitted records an envelope handed to the sink.
func (c *Collector) IncMessageEmitted(messageType string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.messagesEmitted++
	c.messagesByType[messageType]++
	c.mu.Unlock()
}

// IncPassthrough records an envelope forwarded without being built.
func (c *Collector) IncPassthrough() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.passthrough++
	c.mu.Unlock()
}

// IncCorrelationFailure records a finished step with no recorded test case.
func (c *Collector) IncCorrelationFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.correlationFailures++
	c.mu.Unlock()
}

// IncResolverFailure records a failed identifier lookup.
func (c *Collector) IncResolverFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.resolverFailures++
	c.mu.Unlock()
}

// SetCorrelationEntries records the current size of the correlation table.
func (c *Collector) SetCorrelationEntries(n int) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.correlationEntries = int64(n)
	c.mu.Unlock()
}

// --- Sinks ---

// IncSinkWriteSuccess records a successful sink write (per call).
func (c *Collector) IncSinkWriteSuccess() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sinkWriteSuccess++
	c.mu.Unlock()
}

// IncSinkWriteFailure records a failed sink write (per call).
func (c *Collector) IncSinkWriteFailure() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.sinkWriteFailure++
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	return Snapshot{
		RunsStarted:   c.runsStarted,
		RunsCompleted: c.runsCompleted,
		RunsFailed:    c.runsFailed,

		EventsReceived:    c.eventsReceived,
		EventsByKind:      copyCounts(c.eventsByKind),
		FrameDecodeErrors: c.frameDecodeErrors,

		MessagesEmitted:     c.messagesEmitted,
		MessagesByType:      copyCounts(c.messagesByType),
		Passthrough:         c.passthrough,
		CorrelationFailures: c.correlationFailures,
		ResolverFailures:    c.resolverFailures,
		CorrelationEntries:  c.correlationEntries,

		SinkWriteSuccess: c.sinkWriteSuccess,
		SinkWriteFailure: c.sinkWriteFailure,

		Output:         c.output,
		StorageBackend: c.storageBackend,
		RunID:          c.runID,
	}
}

func copyCounts(m map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
