package verify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeRunner returns a canned inspector payload or error.
type fakeRunner struct {
	output []byte
	err    error
	calls  int
}

func (f *fakeRunner) Inspect(ctx context.Context, url string, args ...string) ([]byte, error) {
	f.calls++
	return f.output, f.err
}

func programPayload(serviceName string) []byte {
	return []byte(`{"programs":[{"tags":{"service_name":"` + serviceName + `"}}],"streams":[]}`)
}

func newTestVerifier(runner *fakeRunner) *Verifier {
	return New(runner, time.Second, []string{"hbo", "成人"}, "cctv", false)
}

func TestShouldVerify(t *testing.T) {
	v := newTestVerifier(&fakeRunner{})

	require.True(t, v.ShouldVerify("CCTV-1 综合"))
	require.True(t, v.ShouldVerify("HBO Max"))
	require.True(t, v.ShouldVerify("某某成人台"))
	require.False(t, v.ShouldVerify("Discovery Channel"))
}

func TestVerify_FailOpenOnError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("connection refused")}
	v := newTestVerifier(runner)

	// an erroring backend must never reject a channel
	require.True(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
	require.Equal(t, 1, runner.calls)
}

func TestVerify_FailOpenDisabled(t *testing.T) {
	v := newTestVerifier(&fakeRunner{err: errors.New("boom")})
	v.FailOpen = false

	require.False(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
}

func TestVerify_FailOpenOnMalformedOutput(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: []byte("not json")})

	require.True(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
}

func TestVerify_FailOpenWhenNoNameRecovered(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: []byte(`{"programs":[],"streams":[{"tags":{}}]}`)})

	require.True(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
}

func TestVerify_RejectsMissingBroadcasterPrefix(t *testing.T) {
	// declared claims CCTV but the stream reports an unrelated service
	v := newTestVerifier(&fakeRunner{output: programPayload("Some Shopping TV")})

	require.False(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
}

func TestVerify_AcceptsMatchingBroadcaster(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: programPayload("CCTV-1")})

	require.True(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-1 综合"))
}

func TestVerify_RejectsNoTokenOverlap(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: programPayload("Wrestling 24/7")})

	require.False(t, v.Verify(context.Background(), "http://example.com/s", "HBO Asia"))
}

func TestVerify_AcceptsTokenOverlap(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: programPayload("HBO Signature HD")})

	require.True(t, v.Verify(context.Background(), "http://example.com/s", "HBO Asia"))
}

func TestVerify_CJKTokensAtomic(t *testing.T) {
	v := newTestVerifier(&fakeRunner{output: programPayload("凤凰卫视")})

	// shares 凤/凰/卫/视 characters with the declared name
	require.True(t, v.Verify(context.Background(), "http://example.com/s", "凤凰卫视中文台"))
}

func TestVerify_PrefersStreamTagsWhenNoProgramTags(t *testing.T) {
	payload := []byte(`{"programs":[],"streams":[{"tags":{"service_name":"CCTV-13"}}]}`)
	v := newTestVerifier(&fakeRunner{output: payload})

	require.True(t, v.Verify(context.Background(), "http://example.com/s", "CCTV-13 新闻"))
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("cctv-1 综合 hd")
	require.Contains(t, tokens, "cctv")
	require.Contains(t, tokens, "1")
	require.Contains(t, tokens, "综")
	require.Contains(t, tokens, "合")
	require.Contains(t, tokens, "hd")
	require.NotContains(t, tokens, "-")
}
