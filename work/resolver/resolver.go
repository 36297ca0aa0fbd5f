package resolver

import (
	"context"
	"sort"

	"iptv-organizer/work/logger"
	"iptv-organizer/work/metrics"
	"iptv-organizer/work/normalize"
	"iptv-organizer/work/types"
)

// Verifier gates individual source URLs of suspicious channels. The
// identity verifier implements it; tests substitute fakes.
type Verifier interface {
	ShouldVerify(title string) bool
	Verify(ctx context.Context, url, declared string) bool
}

// Resolver turns per-channel probe reports into the final deduplicated
// list of canonical channels. Per channel the pipeline is
//
//	declared -> normalized -> verified-filtered -> discarded | ranked
//
// Channels with zero surviving sources are discarded outright: they never
// appear in the output, not even as a "no source" marker. Distinct
// declared channels that normalize to the same canonical name collapse
// into one record, keeping the lowest-latency source across all of them.
type Resolver struct {
	normalizer *normalize.Normalizer
	verifier   Verifier
	keepTopK   int
}

// New builds a Resolver. keepTopK is the number of ranked sources retained
// per canonical channel (1 keeps only the winner; the first entry is
// always the primary, the rest become backups).
func New(normalizer *normalize.Normalizer, verifier Verifier, keepTopK int) *Resolver {
	if keepTopK < 1 {
		keepTopK = 1
	}
	return &Resolver{
		normalizer: normalizer,
		verifier:   verifier,
		keepTopK:   keepTopK,
	}
}

// candidate is one surviving source together with the attributes of the
// record that contributed it and its encounter sequence for tie-breaks.
type candidate struct {
	source types.ProbeResult
	attrs  map[string]string
	seq    int
}

// Resolve groups validated sources by canonical name, ranks each group by
// latency and keeps the top K. Report iteration is sorted by channel id so
// that grouping and tie-breaking are reproducible for a fixed set of probe
// outcomes; latency itself is non-deterministic across runs, so only this
// structural determinism is promised.
func (r *Resolver) Resolve(ctx context.Context, reports map[string]*types.Report) []types.CanonicalChannel {
	ids := make([]string, 0, len(reports))
	for id := range reports {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	groups := make(map[string][]candidate)
	var order []string
	seq := 0
	dropped := 0

	for _, id := range ids {
		report := reports[id]
		canonical := r.normalizer.Normalize(report.Attributes["title"])

		attrs := make(map[string]string, len(report.Attributes))
		for k, v := range report.Attributes {
			attrs[k] = v
		}
		attrs["title"] = canonical

		survivors := report.ValidSources()
		if r.verifier != nil && r.verifier.ShouldVerify(canonical) {
			kept := survivors[:0]
			for _, src := range survivors {
				if r.verifier.Verify(ctx, src.URL, canonical) {
					kept = append(kept, src)
				}
			}
			survivors = kept
		}

		if len(survivors) == 0 {
			logger.Debug("[RESOLVE] Dropping channel %s ('%s'): no valid source", id, canonical)
			dropped++
			continue
		}

		if _, seen := groups[canonical]; !seen {
			order = append(order, canonical)
		}
		for _, src := range survivors {
			groups[canonical] = append(groups[canonical], candidate{source: src, attrs: attrs, seq: seq})
			seq++
		}
	}

	resolved := make([]types.CanonicalChannel, 0, len(order))
	for _, name := range order {
		resolved = append(resolved, r.rank(name, groups[name]))
	}

	metrics.ChannelsResolved.Set(float64(len(resolved)))
	metrics.ChannelsDropped.Set(float64(dropped))
	logger.Info("[RESOLVE] %d canonical channels resolved, %d channels dropped", len(resolved), dropped)

	return resolved
}

// rank orders a canonical group's candidates by latency (ties broken by
// encounter order, which the stable sort preserves), deduplicates URLs
// keeping each URL's best placement, and truncates to keepTopK. The
// surviving record's attributes are those of whichever candidate owns the
// winning source.
func (r *Resolver) rank(name string, candidates []candidate) types.CanonicalChannel {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].source.Latency.Less(candidates[j].source.Latency)
	})

	seen := make(map[string]struct{}, len(candidates))
	sources := make([]types.RankedSource, 0, r.keepTopK)
	var winner map[string]string

	for _, cand := range candidates {
		if _, dup := seen[cand.source.URL]; dup {
			continue
		}
		seen[cand.source.URL] = struct{}{}

		if winner == nil {
			winner = cand.attrs
		}
		sources = append(sources, types.RankedSource{
			URL:     cand.source.URL,
			Latency: cand.source.Latency,
		})
		if len(sources) == r.keepTopK {
			break
		}
	}

	return types.CanonicalChannel{
		Name:       name,
		Attributes: winner,
		Sources:    sources,
	}
}
