package proxy

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-gateway/config"
)

func newTestForwarder(forwardAuthHeaders bool) *Forwarder {
	return NewForwarder(&config.Config{ForwardAuthHeaders: forwardAuthHeaders})
}

func testTarget(baseURL, path string) Target {
	return Target{
		BaseURL:      baseURL,
		UpstreamPath: path,
		Service:      "ollama",
		Action:       "chat",
	}
}

func TestForwarder_PreservesRequest(t *testing.T) {
	var gotMethod, gotPath, gotQuery, gotBody string
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer upstream.Close()

	fwd := newTestForwarder(false)
	req := httptest.NewRequest(http.MethodPost, "/v1/ollama/api/chat?stream=true", strings.NewReader(`{"model":"llama3"}`))
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/api/chat"))

	if gotMethod != http.MethodPost {
		t.Errorf("expected POST, got %s", gotMethod)
	}
	if gotPath != "/api/chat" {
		t.Errorf("expected upstream path /api/chat, got %s", gotPath)
	}
	if gotQuery != "stream=true" {
		t.Errorf("expected query to be preserved, got %q", gotQuery)
	}
	if gotBody != `{"model":"llama3"}` {
		t.Errorf("expected body to be preserved, got %q", gotBody)
	}

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.String() != `{"ok":true}` {
		t.Errorf("expected upstream body to be relayed, got %q", rec.Body.String())
	}
	if rec.Header().Get("Content-Type") != "application/json" {
		t.Errorf("expected Content-Type to be relayed, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestForwarder_StripsCredentialHeaders(t *testing.T) {
	var gotHeaders http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	fwd := newTestForwarder(false)
	req := httptest.NewRequest(http.MethodGet, "/v1/ollama/api/tags", nil)
	req.Header.Set("x-api-key", "client-secret")
	req.Header.Set("Authorization", "Bearer something")
	req.Header.Set("Cookie", "session=abc")
	req.Header.Set("X-Forwarded-For", "10.0.0.1")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/api/tags"))

	for _, name := range []string{"x-api-key", "Authorization", "Cookie", "X-Forwarded-For"} {
		if gotHeaders.Get(name) != "" {
			t.Errorf("expected header %s to be stripped", name)
		}
	}
	if gotHeaders.Get("Accept") != "application/json" {
		t.Error("expected non-sensitive headers to be forwarded")
	}
}

func TestForwarder_ForwardAuthHeadersEnabled(t *testing.T) {
	var gotHeaders http.Header
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeaders = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	fwd := newTestForwarder(true)
	req := httptest.NewRequest(http.MethodGet, "/v1/ollama/api/tags", nil)
	req.Header.Set("x-api-key", "client-secret")
	req.Header.Set("Authorization", "Bearer something")
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/api/tags"))

	// 設定を有効にしてもゲートウェイ自身の資格情報ヘッダーは転送されない
	if gotHeaders.Get("x-api-key") != "" {
		t.Error("expected x-api-key to be stripped regardless of configuration")
	}
	if gotHeaders.Get("Authorization") != "Bearer something" {
		t.Error("expected Authorization to be forwarded when enabled")
	}
}

func TestForwarder_StreamsChunks(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		for _, chunk := range []string{`{"token":"a"}`, `{"token":"b"}`, `{"token":"c"}`} {
			w.Write([]byte(chunk + "\n"))
			flusher.Flush()
		}
	}))
	defer upstream.Close()

	fwd := newTestForwarder(false)
	req := httptest.NewRequest(http.MethodPost, "/v1/ollama/api/generate", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/api/generate"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !rec.Flushed {
		t.Error("expected response to be flushed during streaming")
	}
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	if len(lines) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(lines))
	}
}

func TestForwarder_UpstreamErrorStatus(t *testing.T) {
	tests := []struct {
		name           string
		upstreamStatus int
		wantStatus     int
		wantCode       string
	}{
		{"internal error maps to 502", http.StatusInternalServerError, http.StatusBadGateway, "BAD_GATEWAY"},
		{"not found maps to 502", http.StatusNotFound, http.StatusBadGateway, "BAD_GATEWAY"},
		{"unavailable maps to 503", http.StatusServiceUnavailable, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
		{"gateway timeout maps to 503", http.StatusGatewayTimeout, http.StatusServiceUnavailable, "UPSTREAM_UNAVAILABLE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.upstreamStatus)
				w.Write([]byte(`{"error":"upstream failed"}`))
			}))
			defer upstream.Close()

			fwd := newTestForwarder(false)
			req := httptest.NewRequest(http.MethodPost, "/v1/ollama/api/chat", strings.NewReader(`{}`))
			rec := httptest.NewRecorder()

			fwd.Forward(rec, req, testTarget(upstream.URL, "/api/chat"))

			if rec.Code != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, rec.Code)
			}

			var errResp struct {
				Code    string `json:"code"`
				Message string `json:"message"`
				Details struct {
					UpstreamStatus int    `json:"upstreamStatus"`
					UpstreamBody   string `json:"upstreamBody"`
				} `json:"details"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
				t.Fatalf("failed to parse error response: %v", err)
			}
			if errResp.Code != tt.wantCode {
				t.Errorf("expected code %s, got %s", tt.wantCode, errResp.Code)
			}
			if errResp.Details.UpstreamStatus != tt.upstreamStatus {
				t.Errorf("expected upstreamStatus %d, got %d", tt.upstreamStatus, errResp.Details.UpstreamStatus)
			}
			if errResp.Details.UpstreamBody != `{"error":"upstream failed"}` {
				t.Errorf("expected upstream body in details, got %q", errResp.Details.UpstreamBody)
			}
		})
	}
}

func TestForwarder_ConnectionRefused(t *testing.T) {
	// 確実に接続できないアドレスを使う
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	fwd := newTestForwarder(false)
	req := httptest.NewRequest(http.MethodPost, "/v1/ollama/api/chat", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/api/chat"))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}

	var errResp struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("failed to parse error response: %v", err)
	}
	if errResp.Code != "BAD_GATEWAY" {
		t.Errorf("expected code BAD_GATEWAY, got %s", errResp.Code)
	}
}

func TestForwarder_Head(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
	}))
	defer upstream.Close()

	fwd := newTestForwarder(false)
	req := httptest.NewRequest(http.MethodHead, "/v1/speech/models", nil)
	rec := httptest.NewRecorder()

	fwd.Forward(rec, req, testTarget(upstream.URL, "/v1/models"))

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body for HEAD, got %d bytes", rec.Body.Len())
	}
}

func TestTarget_URL(t *testing.T) {
	tests := []struct {
		name     string
		target   Target
		rawQuery string
		want     string
	}{
		{
			"plain path",
			Target{BaseURL: "http://127.0.0.1:11434", UpstreamPath: "/api/chat"},
			"",
			"http://127.0.0.1:11434/api/chat",
		},
		{
			"trailing slash in base",
			Target{BaseURL: "http://127.0.0.1:11434/", UpstreamPath: "/api/chat"},
			"",
			"http://127.0.0.1:11434/api/chat",
		},
		{
			"with query",
			Target{BaseURL: "http://127.0.0.1:8000", UpstreamPath: "/v1/models"},
			"task=transcribe",
			"http://127.0.0.1:8000/v1/models?task=transcribe",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.target.URL(tt.rawQuery); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}
