package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/meridianbio/publication-discovery-service/internal/acquire"
	"github.com/meridianbio/publication-discovery-service/internal/domain"
	"github.com/meridianbio/publication-discovery-service/internal/pipeline"
)

// ---------------------------------------------------------------------------
// Mock implementations
// ---------------------------------------------------------------------------

// mockDiscoverer implements Discoverer for HTTP handler tests.
type mockDiscoverer struct {
	discoverFn   func(ctx context.Context, bundle domain.IdentifierBundle, dataset domain.DatasetContext) (*pipeline.DiscoveryResult, error)
	invalidateFn func(ctx context.Context, bundle domain.IdentifierBundle) error
}

func (m *mockDiscoverer) Discover(ctx context.Context, bundle domain.IdentifierBundle, dataset domain.DatasetContext) (*pipeline.DiscoveryResult, error) {
	if m.discoverFn != nil {
		return m.discoverFn(ctx, bundle, dataset)
	}
	return &pipeline.DiscoveryResult{Key: bundle.Key(), GeneratedAt: time.Now().UTC()}, nil
}

func (m *mockDiscoverer) Invalidate(ctx context.Context, bundle domain.IdentifierBundle) error {
	if m.invalidateFn != nil {
		return m.invalidateFn(ctx, bundle)
	}
	return nil
}

// mockAcquirer implements Acquirer for HTTP handler tests.
type mockAcquirer struct {
	acquireFn func(ctx context.Context, record domain.CanonicalRecord) (*acquire.AcquisitionResult, error)
}

func (m *mockAcquirer) Acquire(ctx context.Context, record domain.CanonicalRecord) (*acquire.AcquisitionResult, error) {
	if m.acquireFn != nil {
		return m.acquireFn(ctx, record)
	}
	return &acquire.AcquisitionResult{RecordID: record.ID.String()}, nil
}

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

// newTestHTTPServer creates a Server configured for testing with mocked
// pipelines and no database.
func newTestHTTPServer(d Discoverer, a Acquirer) *Server {
	s := &Server{
		discovery:   d,
		acquisition: a,
		logger:      zerolog.Nop(),
	}
	s.router = s.buildRouter("")
	return s
}

// serveHTTP dispatches a request through the test server's router and returns
// the recorder.
func serveHTTP(s *Server, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	s.router.ServeHTTP(rr, r)
	return rr
}

// decodeJSON decodes a JSON response body into the given target.
func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(target); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
}

func postJSON(path, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func testRecord() domain.CanonicalRecord {
	return domain.CanonicalRecord{
		ID:    uuid.New(),
		IDs:   domain.IdentifierBundle{DOI: "10.1234/abc"},
		Title: "Single-cell atlas of the mouse cortex",
		Locations: []domain.Location{
			{URL: "https://example.org/paper.pdf", Type: domain.LocationPDFDirect, Source: "unpaywall"},
		},
	}
}

// ---------------------------------------------------------------------------
// Tests: runDiscovery
// ---------------------------------------------------------------------------

func TestRunDiscovery_Success(t *testing.T) {
	var capturedBundle domain.IdentifierBundle
	var capturedDataset domain.DatasetContext

	discoverer := &mockDiscoverer{
		discoverFn: func(_ context.Context, bundle domain.IdentifierBundle, dataset domain.DatasetContext) (*pipeline.DiscoveryResult, error) {
			capturedBundle = bundle
			capturedDataset = dataset
			return &pipeline.DiscoveryResult{
				Key: bundle.Key(),
				Records: []domain.ScoredRecord{
					{Record: testRecord(), Score: 0.82},
				},
				GeneratedAt: time.Now().UTC(),
			}, nil
		},
	}

	srv := newTestHTTPServer(discoverer, &mockAcquirer{})

	body := `{"bundle":{"doi":"10.1234/abc"},"dataset":{"dataset_id":"GSE12345","keywords":["cortex","single-cell"]}}`
	rr := serveHTTP(srv, postJSON("/api/v1/discoveries", body))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if capturedBundle.DOI != "10.1234/abc" {
		t.Errorf("expected bundle DOI to be forwarded, got %q", capturedBundle.DOI)
	}
	if capturedDataset.DatasetID != "GSE12345" {
		t.Errorf("expected dataset ID to be forwarded, got %q", capturedDataset.DatasetID)
	}

	var result pipeline.DiscoveryResult
	decodeJSON(t, rr, &result)
	if len(result.Records) != 1 {
		t.Fatalf("expected 1 record in response, got %d", len(result.Records))
	}
	if result.Records[0].Score != 0.82 {
		t.Errorf("expected score 0.82, got %v", result.Records[0].Score)
	}
}

func TestRunDiscovery_EmptyBundle(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries", `{"bundle":{},"dataset":{"dataset_id":"GSE1"}}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRunDiscovery_InvalidJSON(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries", `{not json`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRunDiscovery_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"no providers", domain.ErrNoProviders, http.StatusServiceUnavailable},
		{"deadline exceeded", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"cancelled", context.Canceled, http.StatusServiceUnavailable},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			discoverer := &mockDiscoverer{
				discoverFn: func(_ context.Context, _ domain.IdentifierBundle, _ domain.DatasetContext) (*pipeline.DiscoveryResult, error) {
					return nil, tt.err
				},
			}
			srv := newTestHTTPServer(discoverer, &mockAcquirer{})

			rr := serveHTTP(srv, postJSON("/api/v1/discoveries", `{"bundle":{"doi":"10.1/x"},"dataset":{}}`))

			if rr.Code != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, rr.Code)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Tests: invalidateDiscovery
// ---------------------------------------------------------------------------

func TestInvalidateDiscovery_Success(t *testing.T) {
	var invalidated domain.IdentifierBundle
	discoverer := &mockDiscoverer{
		invalidateFn: func(_ context.Context, bundle domain.IdentifierBundle) error {
			invalidated = bundle
			return nil
		},
	}
	srv := newTestHTTPServer(discoverer, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries/invalidate", `{"bundle":{"pmid":"12345"}}`))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if invalidated.PMID != "12345" {
		t.Errorf("expected PMID 12345 to be invalidated, got %q", invalidated.PMID)
	}

	var resp map[string]string
	decodeJSON(t, rr, &resp)
	if resp["status"] != "invalidated" {
		t.Errorf("expected status invalidated, got %q", resp["status"])
	}
	if resp["key"] == "" {
		t.Error("expected non-empty cache key in response")
	}
}

func TestInvalidateDiscovery_EmptyBundle(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries/invalidate", `{"bundle":{}}`))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestInvalidateDiscovery_Error(t *testing.T) {
	discoverer := &mockDiscoverer{
		invalidateFn: func(_ context.Context, _ domain.IdentifierBundle) error {
			return errors.New("store unavailable")
		},
	}
	srv := newTestHTTPServer(discoverer, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries/invalidate", `{"bundle":{"doi":"10.1/x"}}`))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: runAcquisition
// ---------------------------------------------------------------------------

func TestRunAcquisition_Success(t *testing.T) {
	record := testRecord()
	acquirer := &mockAcquirer{
		acquireFn: func(_ context.Context, rec domain.CanonicalRecord) (*acquire.AcquisitionResult, error) {
			return &acquire.AcquisitionResult{
				RecordID:    rec.ID.String(),
				Acquired:    true,
				FilePath:    "/data/pdfs/" + rec.ID.String() + ".pdf",
				ContentHash: "abc123",
				SizeBytes:   2048,
			}, nil
		},
	}
	srv := newTestHTTPServer(&mockDiscoverer{}, acquirer)

	payload, err := json.Marshal(map[string]interface{}{"record": record})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	rr := serveHTTP(srv, postJSON("/api/v1/acquisitions", string(payload)))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var result acquire.AcquisitionResult
	decodeJSON(t, rr, &result)
	if !result.Acquired {
		t.Error("expected acquired result")
	}
	if result.RecordID != record.ID.String() {
		t.Errorf("expected record ID %s, got %s", record.ID, result.RecordID)
	}
}

func TestRunAcquisition_MissingRecordID(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	body := `{"record":{"title":"no id","locations":[{"url":"https://example.org/p.pdf"}]}}`
	rr := serveHTTP(srv, postJSON("/api/v1/acquisitions", body))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRunAcquisition_NoLocations(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	record := testRecord()
	record.Locations = nil
	payload, err := json.Marshal(map[string]interface{}{"record": record})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	rr := serveHTTP(srv, postJSON("/api/v1/acquisitions", string(payload)))

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestRunAcquisition_WaterfallError(t *testing.T) {
	acquirer := &mockAcquirer{
		acquireFn: func(_ context.Context, _ domain.CanonicalRecord) (*acquire.AcquisitionResult, error) {
			return nil, errors.New("output dir not writable")
		},
	}
	srv := newTestHTTPServer(&mockDiscoverer{}, acquirer)

	payload, err := json.Marshal(map[string]interface{}{"record": testRecord()})
	if err != nil {
		t.Fatalf("failed to marshal request: %v", err)
	}
	rr := serveHTTP(srv, postJSON("/api/v1/acquisitions", string(payload)))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected status 500, got %d", rr.Code)
	}
}

// ---------------------------------------------------------------------------
// Tests: health and middleware
// ---------------------------------------------------------------------------

func TestHealthEndpoints_MemoryBackend(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusOK {
			t.Errorf("%s: expected status 200, got %d", path, rr.Code)
		}

		var resp map[string]string
		decodeJSON(t, rr, &resp)
		if resp["cache"] != "memory" {
			t.Errorf("%s: expected cache backend memory, got %q", path, resp["cache"])
		}
	}
}

func TestCorrelationIDMiddleware_EchoesHeader(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Correlation-ID", "corr-42")
	rr := serveHTTP(srv, req)

	if got := rr.Header().Get("X-Correlation-ID"); got != "corr-42" {
		t.Errorf("expected correlation ID corr-42 to be echoed, got %q", got)
	}
}

func TestCorrelationIDMiddleware_GeneratesWhenAbsent(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	rr := serveHTTP(srv, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Header().Get("X-Correlation-ID") == "" {
		t.Error("expected a generated correlation ID header")
	}
}

func TestJSONContentType(t *testing.T) {
	srv := newTestHTTPServer(&mockDiscoverer{}, &mockAcquirer{})

	rr := serveHTTP(srv, postJSON("/api/v1/discoveries", `{"bundle":{"doi":"10.1/x"},"dataset":{}}`))

	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json content type, got %q", ct)
	}
}
