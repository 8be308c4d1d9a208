package observability

import (
	"context"
)

// Context keys for observability data.
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	bundleKeyKey contextKey = "bundle_key"
	traceIDKey   contextKey = "trace_id"
	spanIDKey    contextKey = "span_id"
)

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext retrieves the request ID from context.
// Returns empty string if not present.
func RequestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

// WithBundleKey adds the identifier bundle cache key to the context.
func WithBundleKey(ctx context.Context, bundleKey string) context.Context {
	return context.WithValue(ctx, bundleKeyKey, bundleKey)
}

// BundleKeyFromContext retrieves the identifier bundle key from context.
// Returns empty string if not present.
func BundleKeyFromContext(ctx context.Context) string {
	if v := ctx.Value(bundleKeyKey); v != nil {
		if key, ok := v.(string); ok {
			return key
		}
	}
	return ""
}

// WithTraceSpan adds trace and span IDs to the context.
func WithTraceSpan(ctx context.Context, traceID, spanID string) context.Context {
	ctx = context.WithValue(ctx, traceIDKey, traceID)
	ctx = context.WithValue(ctx, spanIDKey, spanID)
	return ctx
}

// TraceSpanFromContext retrieves trace and span IDs from context.
// Returns empty strings if not present.
func TraceSpanFromContext(ctx context.Context) (traceID, spanID string) {
	if v := ctx.Value(traceIDKey); v != nil {
		if id, ok := v.(string); ok {
			traceID = id
		}
	}
	if v := ctx.Value(spanIDKey); v != nil {
		if id, ok := v.(string); ok {
			spanID = id
		}
	}
	return traceID, spanID
}

// RequestContext contains the context data for one discovery request.
type RequestContext struct {
	RequestID string
	BundleKey string
	TraceID   string
	SpanID    string
}

// WithRequestContext adds all discovery request context to the context.
func WithRequestContext(ctx context.Context, rc RequestContext) context.Context {
	if rc.RequestID != "" {
		ctx = WithRequestID(ctx, rc.RequestID)
	}
	if rc.BundleKey != "" {
		ctx = WithBundleKey(ctx, rc.BundleKey)
	}
	if rc.TraceID != "" || rc.SpanID != "" {
		ctx = WithTraceSpan(ctx, rc.TraceID, rc.SpanID)
	}
	return ctx
}

// RequestContextFromContext extracts all discovery request context from the context.
func RequestContextFromContext(ctx context.Context) RequestContext {
	traceID, spanID := TraceSpanFromContext(ctx)

	return RequestContext{
		RequestID: RequestIDFromContext(ctx),
		BundleKey: BundleKeyFromContext(ctx),
		TraceID:   traceID,
		SpanID:    spanID,
	}
}
