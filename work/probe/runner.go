package probe

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Runner is the boundary to the external media inspector. The executor and
// the identity verifier both drive it with their own argument sets; tests
// substitute a fake so no subprocess is ever launched.
type Runner interface {
	// Inspect runs one inspection of url with the given inspector
	// arguments and returns the raw structured output. The context
	// carries the caller's timeout; an expired context must abort the
	// subprocess.
	Inspect(ctx context.Context, url string, args ...string) ([]byte, error)
}

// FFProbeRunner invokes the ffprobe binary as a subprocess. The context
// deadline kills the process, which is the only cancellation mechanism a
// probe has.
type FFProbeRunner struct {
	Binary string // Path to the ffprobe binary, defaults to "ffprobe"
}

// NewFFProbeRunner returns a Runner backed by the given ffprobe binary.
func NewFFProbeRunner(binary string) *FFProbeRunner {
	bin := strings.TrimSpace(binary)
	if bin == "" {
		bin = "ffprobe"
	}
	return &FFProbeRunner{Binary: bin}
}

// Inspect executes ffprobe with args followed by "-i url" and returns its
// stdout. A non-zero exit is returned as an error carrying the trimmed
// stderr text, with stdout still returned for callers that can use partial
// output.
func (r *FFProbeRunner) Inspect(ctx context.Context, url string, args ...string) ([]byte, error) {
	full := make([]string, 0, len(args)+2)
	full = append(full, args...)
	full = append(full, "-i", url)

	cmd := exec.CommandContext(ctx, r.Binary, full...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return stdout.Bytes(), fmt.Errorf("ffprobe: %w", err)
		}
		return stdout.Bytes(), fmt.Errorf("ffprobe: %w: %s", err, msg)
	}

	return stdout.Bytes(), nil
}
