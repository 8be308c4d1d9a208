// Package observability provides logging, metrics, and tracing support for
// the publication discovery service.
//
// # Overview
//
// The observability package provides:
//
//   - Structured logging with zerolog
//   - Prometheus metrics for discovery, fan-out, merge, download, and cache
//   - Context helpers for propagating observability data
//
// # Logging
//
// Create a logger from configuration:
//
//	cfg := observability.LoggingConfig{
//	    Level:     "info",
//	    Format:    "json",
//	    Output:    "stdout",
//	    AddSource: true,
//	}
//
//	logger := observability.NewLogger(cfg)
//	logger.Info().Str("request_id", reqID).Msg("discovery started")
//
// Add discovery context to a logger:
//
//	logger = observability.WithDiscoveryContext(logger, requestID, bundleKey)
//
// # Metrics
//
// Initialize metrics:
//
//	metrics := observability.NewMetrics("pubfinder")
//
// Record metrics:
//
//	metrics.RecordDiscoveryStarted()
//	metrics.SourceQueriesTotal.WithLabelValues("openalex").Inc()
//	metrics.RecordCacheHit()
//
// The Metrics struct also satisfies the fan-out orchestrator's Observer
// interface, so per-source query outcomes can be recorded by passing it
// directly to the orchestrator.
//
// # Context Helpers
//
// Store and retrieve request context:
//
//	ctx = observability.WithRequestID(ctx, requestID)
//	ctx = observability.WithBundleKey(ctx, bundleKey)
//
//	reqID := observability.RequestIDFromContext(ctx)
//	bundleKey := observability.BundleKeyFromContext(ctx)
//
// # Standard Fields
//
// Common fields used across the service:
//
//   - request_id: Discovery request identifier
//   - bundle_key: Identifier bundle cache key
//   - source: Source provider name (openalex, pubmed, etc.)
//   - tier: Source priority tier
//   - record_id: Canonical record identifier
//   - doi: Digital object identifier
//   - trace_id: Distributed trace identifier
//
// # Thread Safety
//
// All components are safe for concurrent use from multiple goroutines.
package observability
