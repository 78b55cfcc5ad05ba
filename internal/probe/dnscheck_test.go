package probe

import (
	"context"
	"net"
	"testing"
)

func TestDiagnose_InvalidName(t *testing.T) {
	for _, in := range []string{"", "  ", "http://x", "a b"} {
		got := diagnose(context.Background(), net.DefaultResolver, in)
		if got.Class != DNSInvalidName {
			t.Fatalf("diagnose(%q) class=%s want %s", in, got.Class, DNSInvalidName)
		}
	}
}

func TestDiagnose_LiteralIPResolves(t *testing.T) {
	got := diagnose(context.Background(), net.DefaultResolver, "127.0.0.1")
	if got.Class != DNSResolves || len(got.IPs) == 0 {
		t.Fatalf("want RESOLVES for a literal ip, got %+v", got)
	}
}

func TestExtractHost(t *testing.T) {
	if h := extractHost("https://Example.com:8443/x"); h != "Example.com" {
		t.Fatalf("got %q", h)
	}
	if h := extractHost("not a url"); h != "not a url" {
		t.Fatalf("got %q", h)
	}
}
