package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/example/go-nowledge-encoder/internal/encoder"
	"github.com/example/go-nowledge-encoder/internal/metrics"
	"github.com/example/go-nowledge-encoder/internal/server"
)

// stubEncoder implements server.Encoder for tests.
type stubEncoder struct {
	ids   []uint32
	err   error
	ready bool
	calls atomic.Int32
}

func (s *stubEncoder) Encode(_ string) ([]uint32, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return append([]uint32(nil), s.ids...), nil
}

func (s *stubEncoder) Ready() bool     { return s.ready }
func (s *stubEncoder) ModelID() string { return "TaylorAI/bge-micro-v2" }

func newTestHandler(t *testing.T, enc server.Encoder, opts ...server.Option) http.Handler {
	t.Helper()

	h, err := server.NewHandler(enc, opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h
}

func postEncode(h http.Handler, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/encode", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	h.ServeHTTP(rec, req)
	return rec
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()

	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

type encodeBody struct {
	IDs   []uint32 `json:"ids"`
	Count int      `json:"count"`
}

// ---------------------------------------------------------------------------
// GET /health
// ---------------------------------------------------------------------------

func TestHealth_Returns200WithStatusOK(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	body := decodeMap(t, rec)
	if body["status"] != "ok" {
		t.Errorf("want status=ok, got %q", body["status"])
	}

	if _, ok := body["version"]; !ok {
		t.Error("want version field in response")
	}

	if body["model"] != "TaylorAI/bge-micro-v2" {
		t.Errorf("want model=TaylorAI/bge-micro-v2, got %q", body["model"])
	}
}

// ---------------------------------------------------------------------------
// GET /ready
// ---------------------------------------------------------------------------

func TestReady_503BeforeLoad(t *testing.T) {
	enc := &stubEncoder{ready: false}
	h := newTestHandler(t, enc)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("want 503, got %d", rec.Code)
	}

	if got := decodeMap(t, rec)["status"]; got != "not_ready" {
		t.Errorf("want status=not_ready, got %q", got)
	}

	if enc.calls.Load() != 0 {
		t.Error("/ready must not trigger an encode")
	}
}

func TestReady_200AfterLoad(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ready: true})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if got := decodeMap(t, rec)["status"]; got != "ready" {
		t.Errorf("want status=ready, got %q", got)
	}
}

// ---------------------------------------------------------------------------
// POST /encode
// ---------------------------------------------------------------------------

func TestEncode_ReturnsIDsAndCount(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{101, 7592, 2088, 102}})

	rec := postEncode(h, `{"text":"hello world"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}

	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("want Content-Type application/json, got %q", ct)
	}

	var got encodeBody
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	want := []uint32{101, 7592, 2088, 102}
	if fmt.Sprint(got.IDs) != fmt.Sprint(want) {
		t.Errorf("ids = %v; want %v", got.IDs, want)
	}

	if got.Count != 4 {
		t.Errorf("count = %d; want 4", got.Count)
	}
}

func TestEncode_EmptyTextIsAccepted(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{101, 102}})

	rec := postEncode(h, `{"text":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestEncode_EmptyResultIsJSONArray(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: nil})

	rec := postEncode(h, `{"text":""}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	if !strings.Contains(rec.Body.String(), `"ids":[]`) {
		t.Errorf("want ids as empty array, got %s", rec.Body.String())
	}
}

func TestEncode_MissingTextReturns400(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{})

	rec := postEncode(h, `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}

	if got := decodeMap(t, rec)["error"]; !strings.Contains(got, "text") {
		t.Errorf("error = %q; want mention of text", got)
	}
}

func TestEncode_InvalidJSONReturns400(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{})

	rec := postEncode(h, `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("want 400, got %d", rec.Code)
	}
}

func TestEncode_NonPOSTReturns405(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/encode", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rec.Code)
	}

	if allow := rec.Header().Get("Allow"); allow != http.MethodPost {
		t.Errorf("Allow = %q; want POST", allow)
	}
}

func TestEncode_TextTooLargeReturns413(t *testing.T) {
	enc := &stubEncoder{ids: []uint32{1}}
	h := newTestHandler(t, enc, server.WithMaxTextBytes(8))

	rec := postEncode(h, `{"text":"123456789"}`)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}

	if enc.calls.Load() != 0 {
		t.Error("oversized text must not reach the encoder")
	}
}

func TestEncode_BodyTooLargeReturns413(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{1}}, server.WithMaxTextBytes(8))

	// Larger than the limit plus the JSON envelope allowance.
	body := `{"text":"` + strings.Repeat("a", 8192) + `"}`
	rec := postEncode(h, body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("want 413, got %d", rec.Code)
	}
}

func TestEncode_TextAtLimitIsAccepted(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{1}}, server.WithMaxTextBytes(8))

	rec := postEncode(h, `{"text":"12345678"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}
}

func TestEncode_ErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"init failure", &encoder.InitError{ModelID: "m", Err: io.ErrUnexpectedEOF}, http.StatusServiceUnavailable},
		{"encode failure", &encoder.EncodeError{Err: io.ErrUnexpectedEOF}, http.StatusUnprocessableEntity},
		{"other failure", io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newTestHandler(t, &stubEncoder{err: tt.err})

			rec := postEncode(h, `{"text":"x"}`)
			if rec.Code != tt.want {
				t.Fatalf("want %d, got %d", tt.want, rec.Code)
			}

			if got := decodeMap(t, rec)["error"]; got != tt.err.Error() {
				t.Errorf("error = %q; want %q", got, tt.err.Error())
			}
		})
	}
}

func TestEncode_EchoesRequestID(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{1}})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/encode", bytes.NewBufferString(`{"text":"x"}`))
	req.Header.Set(server.RequestIDHeader, "req-42")
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(server.RequestIDHeader); got != "req-42" {
		t.Errorf("%s = %q; want req-42", server.RequestIDHeader, got)
	}
}

func TestEncode_GeneratesRequestID(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{ids: []uint32{1}})

	a := postEncode(h, `{"text":"x"}`).Header().Get(server.RequestIDHeader)
	b := postEncode(h, `{"text":"x"}`).Header().Get(server.RequestIDHeader)

	if a == "" || b == "" {
		t.Fatal("want generated request ids")
	}

	if a == b {
		t.Errorf("generated request ids must differ, both %q", a)
	}
}

// ---------------------------------------------------------------------------
// cache
// ---------------------------------------------------------------------------

func TestEncode_CacheServesRepeatText(t *testing.T) {
	enc := &stubEncoder{ids: []uint32{5, 6}}
	h := newTestHandler(t, enc, server.WithCacheSize(4))

	for range 3 {
		rec := postEncode(h, `{"text":"same"}`)
		if rec.Code != http.StatusOK {
			t.Fatalf("want 200, got %d", rec.Code)
		}
	}

	if got := enc.calls.Load(); got != 1 {
		t.Errorf("encoder calls = %d; want 1", got)
	}

	postEncode(h, `{"text":"other"}`)
	if got := enc.calls.Load(); got != 2 {
		t.Errorf("encoder calls = %d; want 2", got)
	}
}

func TestEncode_CacheDisabledByDefault(t *testing.T) {
	enc := &stubEncoder{ids: []uint32{5, 6}}
	h := newTestHandler(t, enc)

	postEncode(h, `{"text":"same"}`)
	postEncode(h, `{"text":"same"}`)

	if got := enc.calls.Load(); got != 2 {
		t.Errorf("encoder calls = %d; want 2", got)
	}
}

func TestEncode_FailuresAreNotCached(t *testing.T) {
	enc := &stubEncoder{err: &encoder.EncodeError{Err: io.EOF}}
	h := newTestHandler(t, enc, server.WithCacheSize(4))

	postEncode(h, `{"text":"x"}`)
	postEncode(h, `{"text":"x"}`)

	if got := enc.calls.Load(); got != 2 {
		t.Errorf("encoder calls = %d; want 2", got)
	}
}

// ---------------------------------------------------------------------------
// GET /metrics
// ---------------------------------------------------------------------------

func TestMetrics_ExposedWhenConfigured(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newTestHandler(t, &stubEncoder{ids: []uint32{1, 2, 3}},
		server.WithMetrics(m, reg),
		server.WithCacheSize(2),
	)

	postEncode(h, `{"text":"a"}`)
	postEncode(h, `{"text":"a"}`)
	postEncode(h, `{bad`)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", rec.Code)
	}

	out := rec.Body.String()
	for _, want := range []string{
		`nowledge_encode_requests_total{status="ok"} 2`,
		`nowledge_encode_requests_total{status="bad_request"} 1`,
		`nowledge_encode_tokens_total 6`,
		`nowledge_encode_cache_hits_total 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestMetrics_NotFoundWhenNotConfigured(t *testing.T) {
	h := newTestHandler(t, &stubEncoder{})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rec.Code)
	}
}
