package probe

import "context"

// FailureStatus is the synthetic classification for transport failures
// (DNS, refused connection, timeout, TLS).
const FailureStatus = 500

// Result is the classified outcome of a single probe.
//
// Fields:
//   - StatusCode: the classification stored in history; redirects may be
//     normalized and transport failures map to FailureStatus.
//   - Observed: the raw HTTP status seen on the wire, 0 when none arrived.
//   - Err: transport error text, empty on any HTTP response.
type Result struct {
	StatusCode int
	Observed   int
	LatencyMS  float64
	Err        string
}

// Prober performs one check against a URL. Implementations never return an
// error: failures are folded into the classification.
type Prober interface {
	Probe(ctx context.Context, url string) Result
}
