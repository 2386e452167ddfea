package grpcx

import (
	"context"

	"github.com/google/uuid"
	"github.com/medibook/medibook/libs/httpx"
	"google.golang.org/grpc/metadata"
)

type ctxKey int

const ctxKeyRequestID ctxKey = iota

// RequestIDMetadataKey carries httpx.RequestIDHeader over gRPC metadata,
// lower-cased as metadata keys are.
const RequestIDMetadataKey = "x-request-id"

func RequestIDFromContext(ctx context.Context) string {
	v, _ := ctx.Value(ctxKeyRequestID).(string)
	return v
}

func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

func NewRequestID() string {
	return uuid.NewString()
}

// requestIDFromMetadata returns the first acceptable id in md, or a new one.
func requestIDFromMetadata(md metadata.MD) string {
	for _, id := range md.Get(RequestIDMetadataKey) {
		if httpx.ValidRequestID(id) {
			return id
		}
	}
	return NewRequestID()
}
