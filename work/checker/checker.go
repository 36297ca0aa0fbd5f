package checker

import (
	"context"
	"sync"

	"github.com/maypok86/otter/v2"
	"github.com/panjf2000/ants/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/ratelimit"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/types"
	"iptv-organizer/work/utils"
)

// Prober is the single-URL liveness check the checker fans out. The probe
// executor implements it; tests substitute a fake.
type Prober interface {
	Check(ctx context.Context, url string) types.ProbeResult
}

// Checker expands every (channel, url) pair into an independent probe task
// and schedules the tasks across a fixed-size worker pool. It makes no
// ordering promises across channels or URLs; its only job is to attribute
// each completed result back to the channel that contributed the URL and
// to return only after every dispatched task has been accounted for.
//
// The same URL frequently appears under several channel ids in aggregated
// playlists, so completed results are memoized in a per-run cache and
// fanned out instead of probed again.
type Checker struct {
	prober    Prober
	pool      *ants.Pool
	limiter   ratelimit.Limiter
	cache     *otter.Cache[string, types.ProbeResult]
	obfuscate bool
}

// New builds a Checker on top of an existing worker pool. rateLimit caps
// probe launches per second; zero means unlimited.
func New(prober Prober, pool *ants.Pool, rateLimit int, obfuscate bool) *Checker {
	limiter := ratelimit.NewUnlimited()
	if rateLimit > 0 {
		limiter = ratelimit.New(rateLimit)
	}

	cache := otter.Must(&otter.Options[string, types.ProbeResult]{
		MaximumSize: 1_000_000,
	})

	return &Checker{
		prober:    prober,
		pool:      pool,
		limiter:   limiter,
		cache:     cache,
		obfuscate: obfuscate,
	}
}

// Check probes every candidate URL of every channel and returns the
// per-channel reports. It is a synchronous barrier: internally parallel,
// but the call returns only once all tasks have completed or failed.
//
// A task that panics is recovered and logged, and its URL is simply absent
// from the channel's source list. Absence means "no evidence", which is
// deliberately distinct from a recorded invalid result ("probed and bad").
// Channels whose every task fails this way are absent from the returned
// map entirely.
func (c *Checker) Check(ctx context.Context, channels map[string]*types.Channel) map[string]*types.Report {
	total := 0
	for _, ch := range channels {
		total += len(ch.URLs)
	}
	logger.Info("[CHECK] Probing %d URLs across %d channels", total, len(channels))

	reports := xsync.NewMapOf[string, *types.Report]()
	var wg sync.WaitGroup

	for id, ch := range channels {
		id, ch := id, ch
		for _, url := range ch.URLs {
			url := url
			wg.Add(1)
			err := c.pool.Submit(func() {
				defer wg.Done()
				defer func() {
					if rec := recover(); rec != nil {
						logger.Error("[CHECK] Probe task panicked for channel %s url %s: %v",
							id, utils.LogURL(c.obfuscate, url), rec)
					}
				}()

				result := c.checkURL(ctx, url)
				report, _ := reports.LoadOrCompute(id, func() *types.Report {
					return types.NewReport(ch.Attributes)
				})
				report.Append(result)
			})
			if err != nil {
				// Submission failures count as unexpected task failures:
				// log and drop, same as a panicking task.
				wg.Done()
				logger.Error("[CHECK] Failed to submit probe task for channel %s: %v", id, err)
			}
		}
	}

	wg.Wait()

	out := make(map[string]*types.Report, len(channels))
	reports.Range(func(id string, report *types.Report) bool {
		out[id] = report
		return true
	})

	logger.Info("[CHECK] Probing complete: %d of %d channels produced results", len(out), len(channels))
	return out
}

// checkURL runs one probe, consulting the per-run memo first. Two workers
// racing on a cache miss for the same URL may both probe it; that is an
// accepted cost, the memo only needs to stop the common repeat case.
func (c *Checker) checkURL(ctx context.Context, url string) types.ProbeResult {
	if cached, ok := c.cache.GetIfPresent(url); ok {
		logger.Debug("[CHECK] Memoized result for %s", utils.LogURL(c.obfuscate, url))
		return cached
	}

	c.limiter.Take()
	result := c.prober.Check(ctx, url)
	c.cache.Set(url, result)
	return result
}
