package grpcx

import (
	"strings"
	"testing"

	"google.golang.org/grpc/metadata"
)

func TestRequestIDFromMetadata(t *testing.T) {
	if got := requestIDFromMetadata(metadata.Pairs(RequestIDMetadataKey, "req-7")); got != "req-7" {
		t.Fatalf("expected caller id, got %q", got)
	}
	md := metadata.Pairs(RequestIDMetadataKey, "bad id\n", RequestIDMetadataKey, "req-8")
	if got := requestIDFromMetadata(md); got != "req-8" {
		t.Fatalf("expected first acceptable id, got %q", got)
	}
	long := strings.Repeat("x", 200)
	if got := requestIDFromMetadata(metadata.Pairs(RequestIDMetadataKey, long)); got == long || got == "" {
		t.Fatalf("expected fresh id for oversized value, got %q", got)
	}
	if got := requestIDFromMetadata(nil); got == "" {
		t.Fatal("expected fresh id without metadata")
	}
}
