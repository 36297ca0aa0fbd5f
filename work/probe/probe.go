package probe

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/metrics"
	"iptv-organizer/work/types"
	"iptv-organizer/work/utils"
)

// livenessArgs asks the inspector for the video elementary streams only,
// in structured JSON, with all diagnostic output suppressed.
var livenessArgs = []string{
	"-v", "quiet",
	"-print_format", "json",
	"-show_streams",
	"-select_streams", "v",
}

// payload is the subset of the inspector's JSON output the liveness probe
// parses. A URL is alive iff at least one stream was decoded.
type payload struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName string `json:"codec_name"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// Executor determines liveness and measures latency for a single stream
// URL. It is a pure function over one URL with no shared state, and it
// never returns an error: every failure mode (timeout, launch failure,
// malformed output, network error) collapses into an invalid result with
// unreachable latency. That failure-isolation contract is what lets the
// checker run it unattended across thousands of unreliable URLs.
type Executor struct {
	runner    Runner
	timeout   time.Duration
	obfuscate bool
}

// NewExecutor builds an Executor around the given inspector boundary.
func NewExecutor(runner Runner, timeout time.Duration, obfuscate bool) *Executor {
	return &Executor{
		runner:    runner,
		timeout:   timeout,
		obfuscate: obfuscate,
	}
}

// Check probes one URL. Latency is wall-clock time from dispatch to the
// inspector's response. A timeout is a valid outcome, not a fault; it is
// reported as invalid/unreachable without an error log. No retries happen
// here; retry policy, if any, belongs to the caller.
func (e *Executor) Check(ctx context.Context, url string) types.ProbeResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	invalid := types.ProbeResult{URL: url, Valid: false, Latency: types.UnreachableLatency()}

	start := time.Now()
	out, err := e.runner.Inspect(ctx, url, livenessArgs...)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logger.Debug("[PROBE] Timeout after %v: %s", e.timeout, utils.LogURL(e.obfuscate, url))
			metrics.ProbesTotal.WithLabelValues("timeout").Inc()
			return invalid
		}
		logger.Error("[PROBE] Inspection failed for %s: %v", utils.LogURL(e.obfuscate, url), err)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return invalid
	}

	var result payload
	if err := json.Unmarshal(out, &result); err != nil {
		logger.Error("[PROBE] Malformed inspector output for %s: %v", utils.LogURL(e.obfuscate, url), err)
		metrics.ProbesTotal.WithLabelValues("error").Inc()
		return invalid
	}

	if len(result.Streams) == 0 {
		logger.Debug("[PROBE] No video streams found: %s", utils.LogURL(e.obfuscate, url))
		metrics.ProbesTotal.WithLabelValues("invalid").Inc()
		return invalid
	}

	metrics.ProbesTotal.WithLabelValues("valid").Inc()
	metrics.ProbeDuration.Observe(elapsed.Seconds())

	return types.ProbeResult{
		URL:     url,
		Valid:   true,
		Latency: types.MeasuredLatency(elapsed),
	}
}
