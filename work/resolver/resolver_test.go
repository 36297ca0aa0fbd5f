package resolver

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"iptv-organizer/work/config"
	"iptv-organizer/work/normalize"
	"iptv-organizer/work/types"
)

// fakeVerifier rejects the URLs in its reject set and records its calls.
type fakeVerifier struct {
	mu     sync.Mutex
	reject map[string]bool
	calls  []string
}

func (f *fakeVerifier) ShouldVerify(title string) bool {
	return strings.Contains(strings.ToLower(title), "cctv")
}

func (f *fakeVerifier) Verify(ctx context.Context, url, declared string) bool {
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.mu.Unlock()
	return !f.reject[url]
}

func testNormalizer() *normalize.Normalizer {
	return normalize.New([]config.ChannelNameRule{
		{Pattern: `cctv[-\s]?1(\s|$|hd)`, Name: "CCTV-1 综合"},
	})
}

func report(title string, sources ...types.ProbeResult) *types.Report {
	r := types.NewReport(map[string]string{"title": title, "group-title": "央视"})
	for _, src := range sources {
		r.Append(src)
	}
	return r
}

func valid(url string, latency time.Duration) types.ProbeResult {
	return types.ProbeResult{URL: url, Valid: true, Latency: types.MeasuredLatency(latency)}
}

func invalid(url string) types.ProbeResult {
	return types.ProbeResult{URL: url, Valid: false, Latency: types.UnreachableLatency()}
}

func TestResolve_VariantsMergeUnderCanonicalName(t *testing.T) {
	reports := map[string]*types.Report{
		"cctv1":     report("CCTV1", valid("http://fast/1", 100*time.Millisecond)),
		"cctv-1 hd": report("cctv-1 hd", valid("http://slow/1", 800*time.Millisecond)),
		"discovery": report("Discovery Channel", valid("http://d/1", 200*time.Millisecond)),
	}

	r := New(testNormalizer(), nil, 1)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 2)

	var cctv *types.CanonicalChannel
	for i := range resolved {
		if resolved[i].Name == "CCTV-1 综合" {
			cctv = &resolved[i]
		}
	}
	require.NotNil(t, cctv, "variants must collapse into one canonical record")
	require.Len(t, cctv.Sources, 1)
	require.Equal(t, "http://fast/1", cctv.Sources[0].URL)
	require.Equal(t, "CCTV-1 综合", cctv.Attributes["title"])
}

func TestResolve_AllInvalidChannelDiscarded(t *testing.T) {
	reports := map[string]*types.Report{
		"dead":  report("Dead TV", invalid("http://dead/1"), invalid("http://dead/2")),
		"alive": report("Alive TV", valid("http://alive/1", time.Millisecond)),
	}

	r := New(testNormalizer(), nil, 1)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 1)
	require.Equal(t, "Alive TV", resolved[0].Name)
}

func TestResolve_KeepTopK(t *testing.T) {
	reports := map[string]*types.Report{
		"cctv1": report("CCTV1",
			valid("http://c/300", 300*time.Millisecond),
			valid("http://c/100", 100*time.Millisecond),
			valid("http://c/200", 200*time.Millisecond),
			valid("http://c/400", 400*time.Millisecond),
		),
	}

	r := New(testNormalizer(), nil, 3)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 1)
	require.Len(t, resolved[0].Sources, 3)
	require.Equal(t, "http://c/100", resolved[0].Sources[0].URL)
	require.Equal(t, "http://c/200", resolved[0].Sources[1].URL)
	require.Equal(t, "http://c/300", resolved[0].Sources[2].URL)
}

func TestResolve_DuplicateURLsAcrossRecordsDeduplicated(t *testing.T) {
	shared := "http://shared/stream"
	reports := map[string]*types.Report{
		"cctv1":     report("CCTV1", valid(shared, 100*time.Millisecond)),
		"cctv-1 hd": report("cctv-1 hd", valid(shared, 150*time.Millisecond)),
	}

	r := New(testNormalizer(), nil, 5)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 1)
	require.Len(t, resolved[0].Sources, 1)
	require.Equal(t, shared, resolved[0].Sources[0].URL)
}

func TestResolve_VerificationFiltersSuspiciousChannels(t *testing.T) {
	verifier := &fakeVerifier{reject: map[string]bool{"http://fake/1": true}}
	reports := map[string]*types.Report{
		"cctv1": report("CCTV1",
			valid("http://fake/1", 50*time.Millisecond),
			valid("http://real/1", 200*time.Millisecond),
		),
		"discovery": report("Discovery Channel", valid("http://d/1", time.Millisecond)),
	}

	r := New(testNormalizer(), verifier, 1)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 2)
	for _, channel := range resolved {
		if channel.Name == "CCTV-1 综合" {
			// the faster but rejected source must lose to the verified one
			require.Equal(t, "http://real/1", channel.Sources[0].URL)
		}
	}
	// only the suspicious channel's sources were verified
	require.ElementsMatch(t, []string{"http://fake/1", "http://real/1"}, verifier.calls)
}

func TestResolve_AllSourcesRejectedDropsChannel(t *testing.T) {
	verifier := &fakeVerifier{reject: map[string]bool{"http://fake/1": true, "http://fake/2": true}}
	reports := map[string]*types.Report{
		"cctv1": report("CCTV1", valid("http://fake/1", time.Millisecond), valid("http://fake/2", time.Millisecond)),
	}

	r := New(testNormalizer(), verifier, 1)
	resolved := r.Resolve(context.Background(), reports)

	require.Empty(t, resolved)
}

func TestResolve_UnreachableSortsAfterMeasured(t *testing.T) {
	// an unreachable source can still be present when --no-check style
	// callers append everything; it must never outrank a measured one
	reports := map[string]*types.Report{
		"cctv1": report("CCTV1",
			types.ProbeResult{URL: "http://unreachable/1", Valid: true, Latency: types.UnreachableLatency()},
			valid("http://measured/1", 900*time.Millisecond),
		),
	}

	r := New(testNormalizer(), nil, 2)
	resolved := r.Resolve(context.Background(), reports)

	require.Len(t, resolved, 1)
	require.Equal(t, "http://measured/1", resolved[0].Sources[0].URL)
	require.Equal(t, "http://unreachable/1", resolved[0].Sources[1].URL)
}

func TestResolve_EmptyInput(t *testing.T) {
	r := New(testNormalizer(), nil, 1)
	require.Empty(t, r.Resolve(context.Background(), map[string]*types.Report{}))
}
