package proxy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"ai-gateway/config"
	"ai-gateway/pkg/httputil"
)

// maxErrorBodyBytes はアップストリームのエラーボディを読み取る上限。
const maxErrorBodyBytes = 4096

// hopByHopHeaders は転送してはならないホップバイホップヘッダーの集合。
var hopByHopHeaders = map[string]struct{}{
	"connection":          {},
	"transfer-encoding":   {},
	"keep-alive":          {},
	"proxy-authenticate":  {},
	"proxy-authorization": {},
	"te":                  {},
	"trailer":             {},
	"upgrade":             {},
}

// sensitiveHeaders はデフォルトでアップストリームに渡さない資格情報系ヘッダー。
var sensitiveHeaders = map[string]struct{}{
	"x-api-key":     {},
	"authorization": {},
	"cookie":        {},
	"set-cookie":    {},
	"forwarded":     {},
}

// Forwarder はリクエスト単位の透過転送エンジン。状態を持たず並行に安全。
type Forwarder struct {
	client             *http.Client
	forwardAuthHeaders bool
}

// NewForwarder は新しいForwarderを生成する。
// ストリーミング応答を妨げないためクライアント全体のタイムアウトは設定せず、
// 呼び出し元コンテキストのキャンセルで打ち切る。
func NewForwarder(cfg *config.Config) *Forwarder {
	return &Forwarder{
		client: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		forwardAuthHeaders: cfg.ForwardAuthHeaders,
	}
}

func isHopByHop(name string) bool {
	_, ok := hopByHopHeaders[strings.ToLower(name)]
	return ok
}

func (f *Forwarder) isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if lower == "x-api-key" {
		// ゲートウェイ自身の資格情報ヘッダーは設定に関わらず常に落とす
		return true
	}
	if f.forwardAuthHeaders {
		return false
	}
	if _, ok := sensitiveHeaders[lower]; ok {
		return true
	}
	return strings.HasPrefix(lower, "x-forwarded-")
}

// Forward は受信リクエストをtargetへ転送し、応答をそのまま呼び出し元へ中継する。
// 応答ボディはバッファリングせずチャンクごとに書き戻す。
func (f *Forwarder) Forward(w http.ResponseWriter, r *http.Request, target Target) {
	ctx := r.Context()

	var body io.Reader
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		body = r.Body
	}

	req, err := http.NewRequestWithContext(ctx, r.Method, target.URL(r.URL.RawQuery), body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to build upstream request",
			"service", target.Service,
			"action", target.Action,
			"error", err,
		)
		httputil.Error(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "failed to build upstream request")
		return
	}
	if body != nil {
		// Content-Lengthヘッダーではなくトランスポートに長さを伝える（-1はチャンク転送）
		req.ContentLength = r.ContentLength
	}

	f.copyRequestHeaders(req.Header, r.Header)

	resp, err := f.client.Do(req)
	if err != nil {
		f.writeTransportError(w, r, target, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		f.writeUpstreamError(w, r, target, resp)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	if resp.ContentLength >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(resp.ContentLength, 10))
	}
	w.WriteHeader(resp.StatusCode)

	if r.Method == http.MethodHead {
		return
	}

	// ここから先は応答が開始済みのため、失敗してもエラーボディは書かない
	if err := relayBody(w, resp.Body); err != nil {
		slog.WarnContext(ctx, "response relay interrupted",
			"service", target.Service,
			"action", target.Action,
			"error", err,
		)
	}
}

// copyRequestHeaders は受信ヘッダーをポリシーに従ってアップストリーム向けにコピーする。
func (f *Forwarder) copyRequestHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		if f.isSensitive(name) {
			continue
		}
		lower := strings.ToLower(name)
		if lower == "host" || lower == "content-length" {
			// トランスポート層が再計算する
			continue
		}
		dst[name] = values
	}
}

// copyResponseHeaders はアップストリーム応答ヘッダーを呼び出し元へコピーする。
func copyResponseHeaders(dst, src http.Header) {
	for name, values := range src {
		if isHopByHop(name) {
			continue
		}
		if strings.EqualFold(name, "Content-Length") {
			continue
		}
		dst[name] = values
	}
}

// relayBody は応答ボディをチャンクごとに中継し、チャンクごとにフラッシュする。
// トークン単位のストリーミング応答を即座に流すための実装。
func relayBody(w http.ResponseWriter, body io.Reader) error {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return writeErr
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// writeUpstreamError は非2xx応答をゲートウェイのエラーに変換する。
// アップストリームの503/504は503、それ以外は502として返す。
func (f *Forwarder) writeUpstreamError(w http.ResponseWriter, r *http.Request, target Target, resp *http.Response) {
	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		bodyBytes = []byte("<unable to read upstream body>")
	}

	slog.WarnContext(r.Context(), "upstream returned error status",
		"service", target.Service,
		"action", target.Action,
		"upstream_status", resp.StatusCode,
		"upstream_body", string(bodyBytes),
	)

	details := map[string]any{
		"upstreamStatus": resp.StatusCode,
		"upstreamBody":   string(bodyBytes),
	}

	switch resp.StatusCode {
	case http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		httputil.ErrorWithDetails(w, r, http.StatusServiceUnavailable,
			"UPSTREAM_UNAVAILABLE", "upstream service unavailable", details)
	default:
		httputil.ErrorWithDetails(w, r, http.StatusBadGateway,
			"BAD_GATEWAY", "upstream returned an error response", details)
	}
}

// writeTransportError は送信時の例外をゲートウェイのエラーに変換する。
// 接続失敗は502、キャンセル・タイムアウトは503として返す。
func (f *Forwarder) writeTransportError(w http.ResponseWriter, r *http.Request, target Target, err error) {
	ctx := r.Context()

	slog.ErrorContext(ctx, "upstream request failed",
		"service", target.Service,
		"action", target.Action,
		"error", err,
	)

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		httputil.Error(w, r, http.StatusServiceUnavailable,
			"UPSTREAM_UNAVAILABLE", "upstream request canceled or timed out")
		return
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		httputil.Error(w, r, http.StatusServiceUnavailable,
			"UPSTREAM_UNAVAILABLE", "upstream request timed out")
		return
	}

	httputil.Error(w, r, http.StatusBadGateway,
		"BAD_GATEWAY", "failed to connect to upstream service")
}
