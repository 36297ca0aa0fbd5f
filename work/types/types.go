package types

import (
	"sync"
	"time"
)

// Latency represents the measured response time of a probed stream source.
// Instead of using a sentinel value (such as an infinite float) for sources
// that never answered, the unreachable state is carried explicitly so that
// ranking code can never accidentally compare a real measurement against a
// sentinel. The zero value is unreachable.
type Latency struct {
	duration time.Duration // Wall-clock duration of the probe, meaningful only when measured
	measured bool          // True when the probe completed and duration holds a real value
}

// MeasuredLatency returns a Latency holding a real wall-clock measurement.
func MeasuredLatency(d time.Duration) Latency {
	return Latency{duration: d, measured: true}
}

// UnreachableLatency returns the Latency used for sources that timed out or
// otherwise never produced a response. It ranks after every measured value.
func UnreachableLatency() Latency {
	return Latency{}
}

// Measured reports whether this latency holds a real measurement.
func (l Latency) Measured() bool {
	return l.measured
}

// Duration returns the measured duration. The boolean is false for
// unreachable latencies, whose duration carries no meaning.
func (l Latency) Duration() (time.Duration, bool) {
	return l.duration, l.measured
}

// Less orders latencies for source ranking: measured values order by
// duration, and any measured value ranks before unreachable. Two
// unreachable latencies are equal, so neither is Less than the other.
func (l Latency) Less(other Latency) bool {
	if !l.measured {
		return false
	}
	if !other.measured {
		return true
	}
	return l.duration < other.duration
}

// String renders the latency for logs.
func (l Latency) String() string {
	if !l.measured {
		return "unreachable"
	}
	return l.duration.String()
}

// ProbeResult is the outcome of one liveness probe against one URL.
// Valid is true only when the inspection completed successfully and found
// at least one video stream. Invalid results always carry an unreachable
// latency so they can never win a ranking.
type ProbeResult struct {
	URL     string  // The probed stream URL
	Valid   bool    // Whether the URL currently serves a decodable video stream
	Latency Latency // Wall-clock probe time, or unreachable for timeouts and failures
}

// Channel is one declared channel as parsed from a source playlist: its
// EXTINF attributes plus every candidate URL collected for it across all
// source files. URLs are deduplicated by plain string equality; two URL
// strings that happen to reach the same endpoint stay distinct candidates.
type Channel struct {
	Attributes map[string]string // EXTINF key/value pairs; always contains "title"
	URLs       []string          // Candidate stream URLs, string-deduplicated
}

// NewChannel creates a Channel with the given attributes and no URLs yet.
func NewChannel(attrs map[string]string) *Channel {
	if attrs == nil {
		attrs = make(map[string]string)
	}
	return &Channel{Attributes: attrs}
}

// Title returns the declared display title, or empty when absent.
func (c *Channel) Title() string {
	return c.Attributes["title"]
}

// AddURL appends a candidate URL unless the exact string is already present.
func (c *Channel) AddURL(url string) {
	if url == "" {
		return
	}
	for _, existing := range c.URLs {
		if existing == url {
			return
		}
	}
	c.URLs = append(c.URLs, url)
}

// Report accumulates probe results for a single channel while the checker
// fans tasks out across the worker pool. Multiple workers may complete for
// the same channel concurrently, so the append is serialized by a
// per-report mutex.
type Report struct {
	Attributes map[string]string // Declared attributes carried through from the Channel
	Sources    []ProbeResult     // One entry per probed URL that produced an outcome
	mu         sync.Mutex
}

// NewReport creates an empty Report for a channel's declared attributes.
func NewReport(attrs map[string]string) *Report {
	return &Report{Attributes: attrs}
}

// Append records one probe outcome. Safe for concurrent use.
func (r *Report) Append(res ProbeResult) {
	r.mu.Lock()
	r.Sources = append(r.Sources, res)
	r.mu.Unlock()
}

// ValidSources returns the subset of sources that probed valid, in the
// order they were recorded.
func (r *Report) ValidSources() []ProbeResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	valid := make([]ProbeResult, 0, len(r.Sources))
	for _, s := range r.Sources {
		if s.Valid {
			valid = append(valid, s)
		}
	}
	return valid
}

// RankedSource is one surviving URL of a resolved channel together with the
// latency that earned it its rank.
type RankedSource struct {
	URL     string
	Latency Latency
}

// CanonicalChannel is the resolver's output unit: one logical channel after
// name normalization, verification filtering, grouping and ranking. Sources
// are ordered best-first; the first entry is the primary URL and any
// remaining entries are written as backup sources.
type CanonicalChannel struct {
	Name       string            // Canonical display name the channel is grouped under
	Attributes map[string]string // Attributes of the record that owned the winning source
	Sources    []RankedSource    // Ranked best-first, at most keepTopK entries
}
