package probe

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultTimeout = 5 * time.Second
	// some sites drop requests without a browser-like agent
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 uptimeadvisor"
)

type HTTPProber struct {
	Client             *http.Client
	UserAgent          string
	NormalizeRedirects bool
	DiagnoseDNS        bool
	// Resolver is used for failure diagnosis; nil means net.DefaultResolver.
	Resolver *net.Resolver
}

// NewHTTPProber returns a prober that does a single GET bounded by timeout.
// Redirects are not followed so 301/302 can be classified directly.
func NewHTTPProber(timeout time.Duration, normalizeRedirects bool) *HTTPProber {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPProber{
		Client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent:          DefaultUserAgent,
		NormalizeRedirects: normalizeRedirects,
		DiagnoseDNS:        true,
	}
}

func (p *HTTPProber) Probe(ctx context.Context, target string) Result {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Result{StatusCode: FailureStatus, Err: err.Error()}
	}
	if p.UserAgent != "" {
		req.Header.Set("User-Agent", p.UserAgent)
	}

	resp, err := p.Client.Do(req)
	latency := time.Since(start).Seconds() * 1000 // ms
	if err != nil {
		return Result{
			StatusCode: FailureStatus,
			LatencyMS:  latency,
			Err:        p.describe(ctx, start, target, err),
		}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return Result{
		StatusCode: Classify(resp.StatusCode, p.NormalizeRedirects),
		Observed:   resp.StatusCode,
		LatencyMS:  latency,
	}
}

// Classify maps an observed HTTP status to the stored classification.
func Classify(observed int, normalizeRedirects bool) int {
	if normalizeRedirects && (observed == http.StatusMovedPermanently || observed == http.StatusFound) {
		return http.StatusOK
	}
	return observed
}

// describe appends a DNS diagnosis to a transport error. The diagnosis shares
// the probe's deadline and the caller's ctx, and is skipped when neither
// leaves any time.
func (p *HTTPProber) describe(ctx context.Context, start time.Time, target string, err error) string {
	if !p.DiagnoseDNS || ctx.Err() != nil {
		return err.Error()
	}
	if p.Client.Timeout > 0 {
		deadline := start.Add(p.Client.Timeout)
		if !time.Now().Before(deadline) {
			return err.Error()
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}
	ctx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	r := p.Resolver
	if r == nil {
		r = net.DefaultResolver
	}
	dns := diagnose(ctx, r, extractHost(target))
	return fmt.Sprintf("%v dns=%s", err, dns.Class)
}

func extractHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}
