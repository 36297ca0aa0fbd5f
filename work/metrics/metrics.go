package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ProbesTotal counts completed liveness probes by outcome. The "result"
// label is one of "valid", "invalid", "timeout" or "error".
var ProbesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_organizer_probes_total",
	Help: "Number of completed liveness probes",
}, []string{"result"})

// ProbeDuration observes the wall-clock duration of liveness probes that
// produced a measurement.
var ProbeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "iptv_organizer_probe_duration_seconds",
	Help:    "Wall-clock duration of liveness probes",
	Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
})

// VerificationsTotal counts identity verification decisions. The "outcome"
// label is one of "verified", "rejected" or "fail_open".
var VerificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "iptv_organizer_verifications_total",
	Help: "Number of identity verification decisions",
}, []string{"outcome"})

// ChannelsParsed tracks the number of channels parsed from all sources in
// the current run.
var ChannelsParsed = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "iptv_organizer_channels_parsed",
	Help: "Channels parsed from source playlists",
})

// ChannelsResolved tracks the number of channels that survived resolution
// with at least one valid, verified source.
var ChannelsResolved = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "iptv_organizer_channels_resolved",
	Help: "Channels surviving resolution with a valid source",
})

// ChannelsDropped tracks the number of channels discarded because no
// candidate URL survived checking and verification.
var ChannelsDropped = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "iptv_organizer_channels_dropped",
	Help: "Channels discarded for lack of a valid source",
})
